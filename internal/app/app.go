// Package app assembles repositories, services, controllers and the router into
// one storefront HTTP application. cmd/server and the end-to-end tests share it.
package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/nexe/nexe-backend/config"
	"github.com/nexe/nexe-backend/internal/app/controller"
	"github.com/nexe/nexe-backend/internal/app/repository"
	"github.com/nexe/nexe-backend/internal/app/service"
	"github.com/nexe/nexe-backend/internal/middleware"
	"github.com/nexe/nexe-backend/internal/router"
	"github.com/nexe/nexe-backend/internal/storage"
	"github.com/nexe/nexe-backend/internal/websocket"
	pkgredis "github.com/nexe/nexe-backend/pkg/redis"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options are the external resources the application runs on. Redis is optional:
// with a nil client cart events stay in-process and checkout relies on the
// database status guard alone.
type Options struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  redis.UniversalClient
	Images storage.ImageStore
}

type App struct {
	Engine          *gin.Engine
	Hub             *websocket.Hub
	CartService     service.CartService
	ProductService  service.ProductService
	CheckoutService service.CheckoutService

	redis redis.UniversalClient
}

func New(opts Options) *App {
	cfg := opts.Config

	productRepo := repository.NewProductRepository(opts.DB)
	cartRepo := repository.NewCartRepository(opts.DB)
	checkoutRepo := repository.NewCheckoutRepository(opts.DB)

	hub := websocket.NewHub()

	// Cart changes reach the hub directly, or through redis so every instance sees them
	var notifier service.CartNotifier = hub
	var locker service.TokenLocker
	if opts.Redis != nil {
		notifier = websocket.NewRelay(pkgredis.NewCartEventPublisher(opts.Redis))
		locker = pkgredis.NewTokenLocker(opts.Redis)
	}

	productService := service.NewProductService(productRepo)
	cartService := service.NewCartService(cartRepo, productRepo, notifier)
	checkoutService := service.NewCheckoutService(checkoutRepo, cartService, locker, cfg.Checkout.LockTTL)

	r := router.NewRouter(
		controller.NewSessionController(),
		controller.NewProductController(productService, opts.Images, cfg.Catalog.SheetName),
		controller.NewUploadController(opts.Images),
		controller.NewCartController(cartService),
		controller.NewStreamController(hub, cartService, cfg.CORS.AllowedOrigins),
		controller.NewCheckoutController(checkoutService),
		controller.NewStorefrontController(productService, cartService),
		middleware.NewAuthMiddleware(cfg.JWT.Secret),
		cfg,
	)

	return &App{
		Engine:          r.Setup(),
		Hub:             hub,
		CartService:     cartService,
		ProductService:  productService,
		CheckoutService: checkoutService,
		redis:           opts.Redis,
	}
}

// Start runs the websocket hub and, with redis, the cart event subscription.
// Both stop when ctx is done.
func (a *App) Start(ctx context.Context) error {
	go a.Hub.Run(ctx)

	if a.redis != nil {
		if err := pkgredis.SubscribeCartEvents(ctx, a.redis, a.Hub.Deliver); err != nil {
			return err
		}
	}
	return nil
}
