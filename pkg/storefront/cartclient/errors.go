package cartclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes of the cart API. Every error returned by Client wraps exactly one
// of them (or a context error when the caller cancelled).
var (
	ErrUnauthorized = errors.New("not signed in")
	ErrForbidden    = errors.New("not allowed for this role")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("cart changed concurrently")
	ErrBadRequest   = errors.New("invalid request")
	ErrTransient    = errors.New("temporarily unavailable")
)

// APIError carries the server's error code and message alongside its class.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	class      error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %s", e.class, e.Message)
	}
	return fmt.Sprintf("%v (%d %s): %s", e.class, e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.class
}

// classify maps a response status to an error class. 5xx and unexpected statuses
// are transient: the caller may offer a retry.
func classify(status int) error {
	switch status {
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrBadRequest
	}
	return ErrTransient
}

func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
