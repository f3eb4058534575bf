package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/middleware"
)

type SessionResponse struct {
	Authenticated bool           `json:"authenticated"`
	ID            string         `json:"id,omitempty"`
	Role          model.UserRole `json:"role,omitempty"`
}

type SessionController struct{}

func NewSessionController() *SessionController {
	return &SessionController{}
}

// GetSession reports the identity resolved from the request's token
// GET /api/v1/session
func (ctrl *SessionController) GetSession(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	c.JSON(http.StatusOK, SessionResponse{
		Authenticated: identity.Authenticated(),
		ID:            identity.ID,
		Role:          identity.Role,
	})
}
