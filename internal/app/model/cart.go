package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// CartHeader is the per-identity row every cart write bumps. Upserting it takes the
// row lock that serializes writers of one identity's cart.
type CartHeader struct {
	OwnerID   string    `gorm:"primaryKey;type:varchar(64)" json:"owner_id"`
	Version   int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CartHeader) TableName() string {
	return "carts"
}

// CartLine is unique per (owner, product); adding an existing product increments Quantity.
type CartLine struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	OwnerID   string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_cart_lines_owner_product" json:"-"`
	ProductID string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_cart_lines_owner_product" json:"product_id"`
	Quantity  int       `gorm:"not null;default:1" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (CartLine) TableName() string {
	return "cart_lines"
}

// Cart is the committed state of one identity's cart. Version 0 means no write has
// ever been committed for this owner.
type Cart struct {
	OwnerID string     `json:"owner_id"`
	Version int64      `json:"version"`
	Lines   []CartLine `json:"lines"`
}

func EmptyCart(ownerID string) *Cart {
	return &Cart{OwnerID: ownerID, Lines: []CartLine{}}
}

func (c *Cart) Line(productID string) (CartLine, bool) {
	for _, l := range c.Lines {
		if l.ProductID == productID {
			return l, true
		}
	}
	return CartLine{}, false
}

// Count returns the total number of units across lines.
func (c *Cart) Count() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Quantity
	}
	return n
}

// Total sums price * quantity over lines whose product is loaded.
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		if l.Product == nil {
			continue
		}
		total = total.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// MarshalJSON adds the derived count and total so every transport ships the same view.
func (c Cart) MarshalJSON() ([]byte, error) {
	type plain Cart
	lines := c.Lines
	if lines == nil {
		lines = []CartLine{}
	}
	p := plain(c)
	p.Lines = lines
	return json.Marshal(struct {
		plain
		Count int             `json:"count"`
		Total decimal.Decimal `json:"total"`
	}{p, c.Count(), c.Total()})
}
