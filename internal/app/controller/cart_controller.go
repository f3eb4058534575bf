package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/app/service"
	apperrors "github.com/nexe/nexe-backend/internal/errors"
	"github.com/nexe/nexe-backend/internal/middleware"
)

type CartController struct {
	cartService service.CartService
}

func NewCartController(cartService service.CartService) *CartController {
	return &CartController{
		cartService: cartService,
	}
}

// AddLineRequest accepts both camelCase and snake_case field names.
type AddLineRequest struct {
	ProductID      string `json:"product_id"`
	ProductIDCamel string `json:"productId"`
	Qty            *int   `json:"qty"`
	Quantity       *int   `json:"quantity"`
}

func (r AddLineRequest) productID() string {
	if r.ProductID != "" {
		return strings.TrimSpace(r.ProductID)
	}
	return strings.TrimSpace(r.ProductIDCamel)
}

// quantity defaults to 1 when omitted.
func (r AddLineRequest) quantity() int {
	switch {
	case r.Qty != nil:
		return *r.Qty
	case r.Quantity != nil:
		return *r.Quantity
	}
	return 1
}

// GetCart returns the caller's cart
// GET /api/v1/cart
func (ctrl *CartController) GetCart(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	cart, err := ctrl.cartService.GetCart(c.Request.Context(), identity)
	if err != nil {
		respondCartError(c, err, "get cart")
		return
	}
	respondCart(c, cart)
}

// AddLine adds qty of a product, incrementing an existing line
// POST /api/v1/cart/items
func (ctrl *CartController) AddLine(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	identity := middleware.GetIdentity(c)

	var req AddLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add to cart request", map[string]interface{}{
			"owner_id": identity.ID,
			"error":    err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request body")
		return
	}
	if req.productID() == "" {
		apperrors.RespondWithValidationError(c, map[string]string{"productId": "required"})
		return
	}

	expected, ok := expectedVersion(c)
	if !ok {
		return
	}

	cart, err := ctrl.cartService.AddLine(c.Request.Context(), identity, req.productID(), req.quantity(), expected)
	if err != nil {
		respondCartError(c, err, "add cart line")
		return
	}
	respondCart(c, cart)
}

// RemoveLine deletes the whole line for a product. Removing an absent line succeeds.
// DELETE /api/v1/cart/items/:productId
func (ctrl *CartController) RemoveLine(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	expected, ok := expectedVersion(c)
	if !ok {
		return
	}

	cart, err := ctrl.cartService.RemoveLine(c.Request.Context(), identity, c.Param("productId"), expected)
	if err != nil {
		respondCartError(c, err, "remove cart line")
		return
	}
	respondCart(c, cart)
}

// ClearCart empties the cart. Clearing an empty cart succeeds.
// POST /api/v1/cart/clear
func (ctrl *CartController) ClearCart(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	expected, ok := expectedVersion(c)
	if !ok {
		return
	}

	cart, err := ctrl.cartService.ClearCart(c.Request.Context(), identity, expected)
	if err != nil {
		respondCartError(c, err, "clear cart")
		return
	}
	respondCart(c, cart)
}

// expectedVersion parses an optional If-Match header carrying a cart version.
// It writes a 400 and returns ok=false on a malformed value.
func expectedVersion(c *gin.Context) (*int64, bool) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" || raw == "*" {
		return nil, true
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		apperrors.BadRequest(c, apperrors.CartInvalidVersion, "If-Match must be a cart version")
		return nil, false
	}
	return &v, true
}

func respondCart(c *gin.Context, cart *model.Cart) {
	c.Header("ETag", strconv.Quote(strconv.FormatInt(cart.Version, 10)))
	c.JSON(http.StatusOK, cart)
}

func respondCartError(c *gin.Context, err error, op string) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		apperrors.Unauthorized(c, "")
	case errors.Is(err, service.ErrForbidden):
		apperrors.Forbidden(c, "This role cannot add items to a cart")
	case errors.Is(err, service.ErrProductNotFound):
		apperrors.NotFound(c, apperrors.CartProductNotFound, "Product not found")
	case errors.Is(err, service.ErrInvalidQuantity):
		apperrors.BadRequest(c, apperrors.CartInvalidQuantity, "Quantity must be at least 1")
	case errors.Is(err, service.ErrCartConflict):
		apperrors.Conflict(c, apperrors.CartVersionConflict, "The cart changed, refetch and retry")
	default:
		middleware.GetLoggerFromContext(c).Error("Cart request failed", err, map[string]interface{}{
			"operation": op,
		})
		info := apperrors.ParseError(err, op)
		apperrors.RespondWithError(c, statusFor(info.Code), info.Code, info.Message)
	}
}

// statusFor picks the HTTP status for a code produced by ParseError.
func statusFor(code string) int {
	switch code {
	case apperrors.ResourceNotFound, apperrors.CatalogProductNotFound:
		return http.StatusNotFound
	case apperrors.ResourceConflict, apperrors.ResourceAlreadyExists, apperrors.CartVersionConflict:
		return http.StatusConflict
	case apperrors.ValidationRequired, apperrors.ValidationInvalidInput:
		return http.StatusBadRequest
	case apperrors.InternalExternalAPI:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
