package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/app/service"
	apperrors "github.com/nexe/nexe-backend/internal/errors"
	"github.com/nexe/nexe-backend/internal/middleware"
	"github.com/nexe/nexe-backend/pkg/storefront/view"
)

const (
	storefrontViewProducts = "products"
	storefrontViewCart     = "cart"
)

type StorefrontController struct {
	productService service.ProductService
	cartService    service.CartService
}

func NewStorefrontController(productService service.ProductService, cartService service.CartService) *StorefrontController {
	return &StorefrontController{
		productService: productService,
		cartService:    cartService,
	}
}

type StorefrontResponse struct {
	Session    SessionResponse     `json:"session"`
	Navigation []view.NavEntry     `json:"navigation"`
	View       string              `json:"view"`
	Items      []view.RenderedItem `json:"items"`
	Cart       *model.Cart         `json:"cart,omitempty"`
}

// GetStorefront renders the product listing or the cart for the resolved identity
// GET /api/v1/storefront?view=products|cart
func (ctrl *StorefrontController) GetStorefront(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	identity := middleware.GetIdentity(c)
	ctx := c.Request.Context()

	resp := StorefrontResponse{
		Session: SessionResponse{
			Authenticated: identity.Authenticated(),
			ID:            identity.ID,
			Role:          identity.Role,
		},
		Navigation: view.Navigation(identity),
		View:       c.DefaultQuery("view", storefrontViewProducts),
	}

	var items []view.RenderItem
	switch resp.View {
	case storefrontViewProducts:
		products, err := ctrl.productService.ListProducts(ctx)
		if err != nil {
			log.Error("Failed to fetch products for storefront", err)
			apperrors.InternalError(c, "")
			return
		}
		items = productItems(products)

	case storefrontViewCart:
		cart, err := ctrl.cartService.GetCart(ctx, identity)
		if err != nil {
			if errors.Is(err, service.ErrUnauthenticated) {
				apperrors.Unauthorized(c, "")
				return
			}
			log.Error("Failed to fetch cart for storefront", err)
			apperrors.InternalError(c, "")
			return
		}
		resp.Cart = cart
		items = cartItems(cart)

	default:
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "view must be products or cart")
		return
	}

	rendered, err := view.RenderAll(items, identity.Role)
	if err != nil {
		log.Error("Failed to render storefront items", err)
		apperrors.InternalError(c, "")
		return
	}
	resp.Items = rendered

	c.JSON(http.StatusOK, resp)
}

func productFields(p model.Product) view.ProductFields {
	return view.ProductFields{
		ID:               p.ID,
		Name:             p.Name,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		ImageRef:         p.ImageRef,
	}
}

func productItems(products []model.Product) []view.RenderItem {
	items := make([]view.RenderItem, 0, len(products))
	for _, p := range products {
		items = append(items, view.ProductItem(productFields(p)))
	}
	return items
}

// cartItems keeps lines whose product is gone, identified by id only.
func cartItems(cart *model.Cart) []view.RenderItem {
	items := make([]view.RenderItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		fields := view.ProductFields{ID: line.ProductID}
		if line.Product != nil {
			fields = productFields(*line.Product)
		}
		items = append(items, view.CartItem(fields, line.Quantity))
	}
	return items
}
