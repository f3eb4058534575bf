// Package cartclient is a Go client for the storefront cart API.
package cartclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// BaseURL is the API root, e.g. https://shop.example.com/api/v1
	BaseURL string

	// Token is the bearer session token; empty for anonymous calls.
	Token string

	// Timeout bounds every request. Defaults to 10s.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL is required", ErrBadRequest)
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: httpClient,
	}, nil
}

// WithToken returns a copy of the client bound to another session token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// MutationOption tunes a cart mutation.
type MutationOption func(*http.Request)

// IfVersion makes the mutation conditional on the committed cart version.
// The server answers ErrConflict when the cart moved on.
func IfVersion(version int64) MutationOption {
	return func(r *http.Request) {
		r.Header.Set("If-Match", strconv.Quote(strconv.FormatInt(version, 10)))
	}
}

func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodGet, "/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) ListProducts(ctx context.Context) ([]Product, error) {
	var body productsBody
	if err := c.do(ctx, http.MethodGet, "/products", nil, &body); err != nil {
		return nil, err
	}
	return body.Products, nil
}

func (c *Client) GetCart(ctx context.Context) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodGet, "/cart", nil, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) AddLine(ctx context.Context, productID string, qty int, opts ...MutationOption) (*Cart, error) {
	var cart Cart
	body := addLineBody{ProductID: productID, Qty: qty}
	if err := c.do(ctx, http.MethodPost, "/cart/items", body, &cart, opts...); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) RemoveLine(ctx context.Context, productID string, opts ...MutationOption) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(productID), nil, &cart, opts...); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) ClearCart(ctx context.Context, opts ...MutationOption) (*Cart, error) {
	var cart Cart
	if err := c.do(ctx, http.MethodPost, "/cart/clear", nil, &cart, opts...); err != nil {
		return nil, err
	}
	return &cart, nil
}

// CompleteCheckout reports a payment confirmation token to the server, which
// clears the cart at most once per token.
func (c *Client) CompleteCheckout(ctx context.Context, sessionID string) (*CheckoutResult, error) {
	var result CheckoutResult
	if err := c.do(ctx, http.MethodPost, "/checkout/complete", completeBody{SessionID: sessionID}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}, opts ...MutationOption) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, opt := range opts {
		opt(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &APIError{Message: err.Error(), class: ErrTransient}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "failed to read response body", class: ErrTransient}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, class: classify(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Code, apiErr.Message = eb.Error, eb.Message
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed response: %v", err), class: ErrTransient}
	}
	return nil
}

// IsCanceled reports whether err came from the caller's own context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
