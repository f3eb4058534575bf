package redis

import (
	"context"
	"encoding/json"

	"github.com/nexe/nexe-backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const CartEventsChannel = "cart:events"

// cartEnvelope carries an already-encoded stream event with its owner, so
// subscribers can route it without decoding the cart.
type cartEnvelope struct {
	OwnerID string          `json:"owner_id"`
	Event   json.RawMessage `json:"event"`
}

// CartEventPublisher fans encoded cart events out to every server instance,
// which push them to their own websocket sessions.
type CartEventPublisher struct {
	client redis.UniversalClient
}

func NewCartEventPublisher(client redis.UniversalClient) *CartEventPublisher {
	return &CartEventPublisher{client: client}
}

// Publish never fails the cart mutation that already committed; errors are logged.
func (p *CartEventPublisher) Publish(ctx context.Context, ownerID string, event []byte) {
	payload, err := json.Marshal(cartEnvelope{OwnerID: ownerID, Event: event})
	if err != nil {
		logger.Error("Failed to encode cart envelope", err, map[string]interface{}{
			"owner_id": ownerID,
		})
		return
	}

	if err := p.client.Publish(context.WithoutCancel(ctx), CartEventsChannel, payload).Err(); err != nil {
		logger.Warn("Failed to publish cart event", map[string]interface{}{
			"owner_id": ownerID,
			"error":    err.Error(),
		})
	}
}

// SubscribeCartEvents delivers every published cart event to deliver until ctx is done.
func SubscribeCartEvents(ctx context.Context, client redis.UniversalClient, deliver func(ownerID string, event []byte)) error {
	sub := client.Subscribe(ctx, CartEventsChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env cartEnvelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					logger.Warn("Dropping malformed cart event", map[string]interface{}{
						"error": err.Error(),
					})
					continue
				}
				deliver(env.OwnerID, env.Event)
			}
		}
	}()

	logger.Info("Subscribed to cart events", map[string]interface{}{
		"channel": CartEventsChannel,
	})
	return nil
}
