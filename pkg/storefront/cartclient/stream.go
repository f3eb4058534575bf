package cartclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

const eventCartUpdated = "cart.updated"

type streamEvent struct {
	Type string `json:"type"`
	Cart *Cart  `json:"cart"`
}

// Stream receives committed cart snapshots pushed by the server. The first
// snapshot is the cart at connection time.
type Stream struct {
	conn *websocket.Conn
}

// OpenStream dials the cart stream for the client's session.
func (c *Client) OpenStream(ctx context.Context) (*Stream, error) {
	wsURL := c.endpoint("/cart/stream")
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error(), class: classify(resp.StatusCode)}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &APIError{Message: err.Error(), class: ErrTransient}
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next snapshot arrives. Unknown event types are skipped.
func (s *Stream) Next() (*Cart, error) {
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return nil, &APIError{Message: err.Error(), class: ErrTransient}
		}
		var event streamEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return nil, fmt.Errorf("malformed cart event: %w", err)
		}
		if event.Type == eventCartUpdated && event.Cart != nil {
			return event.Cart, nil
		}
	}
}

func (s *Stream) Close() error {
	return s.conn.Close()
}
