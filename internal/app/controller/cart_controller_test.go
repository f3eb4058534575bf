package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/app/repository"
	"github.com/nexe/nexe-backend/internal/app/service"
	"github.com/nexe/nexe-backend/internal/db"
	apperrors "github.com/nexe/nexe-backend/internal/errors"
	"github.com/nexe/nexe-backend/internal/middleware"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cartBody struct {
	OwnerID string `json:"owner_id"`
	Version int64  `json:"version"`
	Count   int    `json:"count"`
	Total   string `json:"total"`
	Lines   []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"lines"`
}

func setupCartControllerTest(t *testing.T) *gin.Engine {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	require.NoError(t, testDB.Create(&model.Product{
		ID:       "shirt-1",
		Name:     "Linen Shirt",
		Price:    decimal.RequireFromString("25.50"),
		ImageRef: "shirt.png",
	}).Error)

	cartService := service.NewCartService(
		repository.NewCartRepository(testDB),
		repository.NewProductRepository(testDB),
	)
	ctrl := NewCartController(cartService)

	gin.SetMode(gin.TestMode)
	router := gin.New()

	// X-Test-User stands in for the session resolver
	withIdentity := func(c *gin.Context) {
		if id := c.GetHeader("X-Test-User"); id != "" {
			c.Set(middleware.UserIDKey, id)
			c.Set(middleware.UserRoleKey, model.UserRole(c.GetHeader("X-Test-Role")))
		}
	}
	cart := router.Group("/cart", withIdentity)
	cart.GET("", ctrl.GetCart)
	cart.POST("/items", ctrl.AddLine)
	cart.DELETE("/items/:productId", ctrl.RemoveLine)
	cart.POST("/clear", ctrl.ClearCart)
	return router
}

type cartRequest struct {
	method, path, body string
	user, role         string
	ifMatch            string
}

func (r cartRequest) do(router *gin.Engine) *httptest.ResponseRecorder {
	var body *bytes.Buffer
	if r.body != "" {
		body = bytes.NewBufferString(r.body)
	} else {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(r.method, r.path, body)
	req.Header.Set("Content-Type", "application/json")
	if r.user != "" {
		req.Header.Set("X-Test-User", r.user)
		role := r.role
		if role == "" {
			role = string(model.RoleUser)
		}
		req.Header.Set("X-Test-Role", role)
	}
	if r.ifMatch != "" {
		req.Header.Set("If-Match", r.ifMatch)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) cartBody {
	var body cartBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestCartController_AddIncrementRemove(t *testing.T) {
	router := setupCartControllerTest(t)

	w := cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"productId":"shirt-1","qty":2}`, user: "user-1"}.do(router)
	require.Equal(t, http.StatusOK, w.Code)
	cart := decodeCart(t, w)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 2, cart.Lines[0].Quantity)
	assert.Equal(t, `"1"`, w.Header().Get("ETag"))

	// snake_case with default quantity
	w = cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"product_id":"shirt-1"}`, user: "user-1"}.do(router)
	require.Equal(t, http.StatusOK, w.Code)
	cart = decodeCart(t, w)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, 3, cart.Lines[0].Quantity)
	assert.Equal(t, 3, cart.Count)
	assert.Equal(t, "76.5", cart.Total)

	w = cartRequest{method: http.MethodDelete, path: "/cart/items/shirt-1", user: "user-1"}.do(router)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeCart(t, w).Lines)

	w = cartRequest{method: http.MethodGet, path: "/cart", user: "user-1"}.do(router)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeCart(t, w).Lines)
}

func TestCartController_IdempotentRemoveAndClear(t *testing.T) {
	router := setupCartControllerTest(t)

	w := cartRequest{method: http.MethodDelete, path: "/cart/items/never-added", user: "user-1"}.do(router)
	assert.Equal(t, http.StatusOK, w.Code)

	for i := 0; i < 2; i++ {
		w = cartRequest{method: http.MethodPost, path: "/cart/clear", user: "user-1"}.do(router)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeCart(t, w).Lines)
	}
}

func TestCartController_Errors(t *testing.T) {
	router := setupCartControllerTest(t)

	tests := []struct {
		name       string
		req        cartRequest
		wantStatus int
		wantCode   string
	}{
		{"get unauthenticated", cartRequest{method: http.MethodGet, path: "/cart"}, http.StatusUnauthorized, apperrors.AuthUnauthorized},
		{"add unauthenticated", cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"productId":"shirt-1"}`}, http.StatusUnauthorized, apperrors.AuthUnauthorized},
		{"remove unauthenticated", cartRequest{method: http.MethodDelete, path: "/cart/items/shirt-1"}, http.StatusUnauthorized, apperrors.AuthUnauthorized},
		{"clear unauthenticated", cartRequest{method: http.MethodPost, path: "/cart/clear"}, http.StatusUnauthorized, apperrors.AuthUnauthorized},
		{"admin add", cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"productId":"shirt-1"}`, user: "admin-1", role: "admin"}, http.StatusForbidden, apperrors.AuthzForbidden},
		{"unknown product", cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"productId":"nope"}`, user: "user-1"}, http.StatusNotFound, apperrors.CartProductNotFound},
		{"missing product id", cartRequest{method: http.MethodPost, path: "/cart/items", body: `{}`, user: "user-1"}, http.StatusBadRequest, apperrors.ValidationInvalidInput},
		{"zero quantity", cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"productId":"shirt-1","qty":0}`, user: "user-1"}, http.StatusBadRequest, apperrors.CartInvalidQuantity},
		{"malformed body", cartRequest{method: http.MethodPost, path: "/cart/items", body: `{`, user: "user-1"}, http.StatusBadRequest, apperrors.ValidationInvalidInput},
		{"malformed If-Match", cartRequest{method: http.MethodPost, path: "/cart/clear", user: "user-1", ifMatch: "abc"}, http.StatusBadRequest, apperrors.CartInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.req.do(router)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decodeErrorCode(t, w))
		})
	}
}

func TestCartController_IfMatch(t *testing.T) {
	router := setupCartControllerTest(t)

	w := cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"productId":"shirt-1"}`, user: "user-1"}.do(router)
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")

	w = cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"productId":"shirt-1"}`, user: "user-1", ifMatch: `"0"`}.do(router)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.CartVersionConflict, decodeErrorCode(t, w))

	w = cartRequest{method: http.MethodPost, path: "/cart/items", body: `{"productId":"shirt-1"}`, user: "user-1", ifMatch: etag}.do(router)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), decodeCart(t, w).Version)

	w = cartRequest{method: http.MethodPost, path: "/cart/clear", user: "user-1", ifMatch: "*"}.do(router)
	assert.Equal(t, http.StatusOK, w.Code)
}
