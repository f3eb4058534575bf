// Package checkout reacts to payment confirmations on the client by clearing the
// shopper's cart once per confirmation token.
package checkout

import (
	"context"
	"errors"
	"sync"

	"github.com/nexe/nexe-backend/pkg/logger"
)

type State string

const (
	Pending State = "PENDING"
	Cleared State = "CLEARED"
)

var ErrMissingToken = errors.New("confirmation token is required")

// CartClearer issues the durable clear. cartsync.Store satisfies it.
type CartClearer interface {
	ClearCart(ctx context.Context) error
}

// Outcome is what the confirmation page shows. Payment already succeeded
// upstream, so a failed clear is reported through ClearErr and never as a
// checkout failure.
type Outcome struct {
	Token    string
	State    State
	ClearErr error
	// Fired is true only for the call that issued the clear.
	Fired bool
}

type tokenState struct {
	mu    sync.Mutex
	state State
}

// CompletionHandler tracks confirmation tokens for the lifetime of one page or
// process. Handling a token again after it cleared issues no further request.
type CompletionHandler struct {
	clearer CartClearer
	log     *logger.Logger

	mu     sync.Mutex
	tokens map[string]*tokenState
}

func NewCompletionHandler(clearer CartClearer, log *logger.Logger) *CompletionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CompletionHandler{
		clearer: clearer,
		log:     log,
		tokens:  make(map[string]*tokenState),
	}
}

func (h *CompletionHandler) token(token string) *tokenState {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts, ok := h.tokens[token]
	if !ok {
		ts = &tokenState{state: Pending}
		h.tokens[token] = ts
	}
	return ts
}

// Handle moves token from PENDING to CLEARED by clearing the cart. Concurrent
// calls for one token wait for each other, so at most one clear is in flight and
// none is issued once the token is CLEARED. A failed clear keeps the token
// PENDING so a later Handle retries it.
func (h *CompletionHandler) Handle(ctx context.Context, token string) (Outcome, error) {
	if token == "" {
		return Outcome{}, ErrMissingToken
	}

	ts := h.token(token)
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.state == Cleared {
		return Outcome{Token: token, State: Cleared}, nil
	}

	if err := h.clearer.ClearCart(ctx); err != nil {
		h.log.Error("Cart clear after checkout failed", err, map[string]interface{}{
			"token": token,
		})
		return Outcome{Token: token, State: Pending, ClearErr: err, Fired: true}, nil
	}

	ts.state = Cleared
	h.log.Info("Cart cleared after checkout", map[string]interface{}{
		"token": token,
	})
	return Outcome{Token: token, State: Cleared, Fired: true}, nil
}

// State reports where token stands; unknown tokens are PENDING.
func (h *CompletionHandler) State(token string) State {
	h.mu.Lock()
	ts, ok := h.tokens[token]
	h.mu.Unlock()
	if !ok {
		return Pending
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.state
}
