// Package apptest runs the full storefront application on an in-memory database
// behind an httptest.Server, for end-to-end tests of the HTTP API and its clients.
package apptest

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nexe/nexe-backend/config"
	"github.com/nexe/nexe-backend/internal/app"
	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/db"
	"github.com/nexe/nexe-backend/internal/storage"
	"github.com/nexe/nexe-backend/pkg/util"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const jwtSecret = "apptest-jwt-secret"

type Server struct {
	*httptest.Server
	App *app.App
	DB  *gorm.DB
}

func Config() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{GinMode: "test", Environment: "test"},
		JWT:    config.JWTConfig{Secret: jwtSecret, AccessTokenExpiry: time.Hour},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		Checkout: config.CheckoutConfig{
			TokenRetention: time.Hour,
			SweepSchedule:  "@hourly",
			LockTTL:        time.Second,
		},
		Catalog: config.CatalogConfig{ImageFolder: "productsImage", SheetName: "Products"},
	}
}

// NewServer starts the application without redis. Presigning works offline with
// static credentials, so uploads are exercised without AWS access.
func NewServer(t testing.TB) *Server {
	t.Helper()

	testDB, err := db.SetupTestDB()
	require.NoError(t, err)

	cfg := Config()
	images := storage.NewS3Storage("ap-southeast-1", "apptest", "AKIATEST", "apptest", "https://cdn.example.com", cfg.Catalog.ImageFolder)
	a := app.New(app.Options{Config: cfg, DB: testDB, Images: images})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, a.Start(ctx))

	srv := httptest.NewServer(a.Engine)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		db.CleanupTestDB(testDB)
	})

	return &Server{Server: srv, App: a, DB: testDB}
}

// Token mints a session token for userID with role.
func (s *Server) Token(t testing.TB, userID string, role model.UserRole) string {
	t.Helper()
	token, err := util.GenerateToken(userID, string(role), jwtSecret, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *Server) SeedProduct(t testing.TB, id, name, price string) model.Product {
	t.Helper()
	p := model.Product{
		ID:               id,
		Name:             name,
		ShortDescription: name,
		Price:            decimal.RequireFromString(price),
		ImageRef:         "https://cdn.example.com/" + id + ".png",
	}
	require.NoError(t, s.DB.Create(&p).Error)
	return p
}
