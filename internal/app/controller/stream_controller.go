package controller

import (
	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/nexe/nexe-backend/internal/app/service"
	"github.com/nexe/nexe-backend/internal/middleware"
	"github.com/nexe/nexe-backend/internal/websocket"
)

type StreamController struct {
	hub         *websocket.Hub
	cartService service.CartService
	upgrader    *gorillaws.Upgrader
}

func NewStreamController(hub *websocket.Hub, cartService service.CartService, allowedOrigins []string) *StreamController {
	return &StreamController{
		hub:         hub,
		cartService: cartService,
		upgrader:    websocket.NewUpgrader(allowedOrigins),
	}
}

// StreamCart upgrades to a websocket that first sends the committed cart and then
// every later committed snapshot of it.
// GET /api/v1/cart/stream
func (ctrl *StreamController) StreamCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	identity := middleware.GetIdentity(c)

	cart, err := ctrl.cartService.GetCart(c.Request.Context(), identity)
	if err != nil {
		respondCartError(c, err, "stream cart")
		return
	}
	initial, err := websocket.EncodeCartEvent(cart)
	if err != nil {
		log.Error("Failed to encode initial cart event", err)
		return
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		log.Warn("Cart stream upgrade failed", map[string]interface{}{
			"owner_id": identity.ID,
			"error":    err.Error(),
		})
		return
	}

	client := websocket.NewClient(ctrl.hub, &websocket.Conn{Conn: conn}, identity.ID)
	client.Send <- initial
	ctrl.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
