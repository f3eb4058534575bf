package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexe/nexe-backend/config"
	"github.com/nexe/nexe-backend/internal/app/controller"
	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/middleware"
)

type Router struct {
	sessionController    *controller.SessionController
	productController    *controller.ProductController
	uploadController     *controller.UploadController
	cartController       *controller.CartController
	streamController     *controller.StreamController
	checkoutController   *controller.CheckoutController
	storefrontController *controller.StorefrontController
	authMiddleware       *middleware.AuthMiddleware
	config               *config.Config
}

func NewRouter(
	sessionController *controller.SessionController,
	productController *controller.ProductController,
	uploadController *controller.UploadController,
	cartController *controller.CartController,
	streamController *controller.StreamController,
	checkoutController *controller.CheckoutController,
	storefrontController *controller.StorefrontController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		sessionController:    sessionController,
		productController:    productController,
		uploadController:     uploadController,
		cartController:       cartController,
		streamController:     streamController,
		checkoutController:   checkoutController,
		storefrontController: storefrontController,
		authMiddleware:       authMiddleware,
		config:               cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "NEXE storefront API is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/session", r.authMiddleware.OptionalAuthenticate(), r.sessionController.GetSession)
		v1.GET("/storefront", r.authMiddleware.OptionalAuthenticate(), r.storefrontController.GetStorefront)

		products := v1.Group("/products")
		{
			products.GET("", r.productController.ListProducts)
			products.GET("/export", r.adminOnly(r.productController.ExportProducts)...)
			products.GET("/:id", r.productController.GetProduct)

			products.POST("", r.adminOnly(r.productController.CreateProduct)...)
			products.POST("/import", r.adminOnly(r.productController.ImportProducts)...)
			products.POST("/images/presign", r.adminOnly(r.uploadController.PresignProductImage)...)
			products.DELETE("/:id", r.adminOnly(r.productController.DeleteProduct)...)
		}

		cart := v1.Group("/cart")
		cart.Use(r.authMiddleware.Authenticate())
		{
			cart.GET("", r.cartController.GetCart)
			cart.GET("/stream", r.streamController.StreamCart)
			cart.POST("/items", r.cartController.AddLine)
			cart.DELETE("/items/:productId", r.cartController.RemoveLine)
			cart.POST("/clear", r.cartController.ClearCart)
		}

		checkout := v1.Group("/checkout")
		checkout.Use(r.authMiddleware.Authenticate())
		{
			checkout.POST("/complete", r.checkoutController.Complete)
		}
	}

	return router
}

// adminOnly prefixes handler with authentication and the admin role check.
func (r *Router) adminOnly(handler gin.HandlerFunc) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		r.authMiddleware.Authenticate(),
		r.authMiddleware.RequireRole(model.RoleAdmin),
		handler,
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, If-Match, X-Request-ID, accept, origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, DELETE")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "ETag, X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
