package cartclient

import (
	"github.com/nexe/nexe-backend/pkg/access"
	"github.com/shopspring/decimal"
)

type Session struct {
	Authenticated bool        `json:"authenticated"`
	ID            string      `json:"id,omitempty"`
	Role          access.Role `json:"role,omitempty"`
}

func (s Session) Identity() access.Identity {
	if !s.Authenticated {
		return access.Anonymous
	}
	return access.Identity{ID: s.ID, Role: s.Role}
}

type Product struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ShortDescription string          `json:"short_description"`
	Price            decimal.Decimal `json:"price"`
	ImageRef         string          `json:"image_ref"`
}

type Line struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

// Cart is a committed cart as returned by the server. Version orders snapshots
// of one owner's cart: a higher version is always newer.
type Cart struct {
	OwnerID string          `json:"owner_id"`
	Version int64           `json:"version"`
	Lines   []Line          `json:"lines"`
	Count   int             `json:"count"`
	Total   decimal.Decimal `json:"total"`
}

func (c *Cart) Quantity(productID string) int {
	if c == nil {
		return 0
	}
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

type CheckoutResult struct {
	Token       string `json:"token"`
	Status      string `json:"status"`
	CartCleared bool   `json:"cart_cleared"`
	ClearError  string `json:"clear_error,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type productsBody struct {
	Products []Product `json:"products"`
}

type addLineBody struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"qty"`
}

type completeBody struct {
	SessionID string `json:"session_id"`
}
