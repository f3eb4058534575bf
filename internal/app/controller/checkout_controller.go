package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexe/nexe-backend/internal/app/service"
	apperrors "github.com/nexe/nexe-backend/internal/errors"
	"github.com/nexe/nexe-backend/internal/middleware"
)

type CheckoutController struct {
	checkoutService service.CheckoutService
}

func NewCheckoutController(checkoutService service.CheckoutService) *CheckoutController {
	return &CheckoutController{
		checkoutService: checkoutService,
	}
}

type CompleteCheckoutRequest struct {
	SessionID string `json:"session_id"`
}

// Complete consumes a payment confirmation token and clears the cart once per token.
// A failed clear still answers 200 with status PENDING; payment already succeeded.
// POST /api/v1/checkout/complete
func (ctrl *CheckoutController) Complete(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	identity := middleware.GetIdentity(c)

	var req CompleteCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request body")
		return
	}

	result, err := ctrl.checkoutService.Complete(c.Request.Context(), identity, req.SessionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnauthenticated):
			apperrors.Unauthorized(c, "")
		case errors.Is(err, service.ErrInvalidCheckoutToken):
			apperrors.BadRequest(c, apperrors.CheckoutTokenRequired, "session_id is required")
		case errors.Is(err, service.ErrCheckoutTokenOwner):
			apperrors.RespondWithError(c, http.StatusForbidden, apperrors.CheckoutTokenOwner, "This confirmation belongs to another account")
		case errors.Is(err, service.ErrCheckoutInProgress):
			apperrors.Conflict(c, apperrors.CheckoutInProgress, "This confirmation is already being processed")
		default:
			log.Error("Checkout completion failed", err)
			apperrors.InternalError(c, "")
		}
		return
	}

	if result.ClearError != "" {
		log.Warn("Checkout confirmed but cart not cleared", map[string]interface{}{
			"owner_id": identity.ID,
		})
	}
	c.JSON(http.StatusOK, result)
}
