package websocket

import (
	"context"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/pkg/logger"
)

// Publisher carries encoded cart events to every instance's hub.
type Publisher interface {
	Publish(ctx context.Context, ownerID string, event []byte)
}

// Relay notifies through a Publisher instead of this process's hub. The
// publisher's subscription delivers the event back to every hub, this one too.
type Relay struct {
	pub Publisher
}

func NewRelay(pub Publisher) *Relay {
	return &Relay{pub: pub}
}

func (r *Relay) CartChanged(ctx context.Context, cart *model.Cart) {
	data, err := EncodeCartEvent(cart)
	if err != nil {
		logger.Error("Failed to encode cart event", err, map[string]interface{}{
			"owner_id": cart.OwnerID,
		})
		return
	}
	r.pub.Publish(ctx, cart.OwnerID, data)
}
