// Package view derives what the storefront shows for a resolved identity: the
// affordance on each listed item and the navigation entries. Everything here is
// a pure function of its inputs.
package view

import (
	"errors"
	"fmt"

	"github.com/nexe/nexe-backend/pkg/access"
	"github.com/nexe/nexe-backend/pkg/storefront/cartclient"
	"github.com/shopspring/decimal"
)

var ErrUnknownKind = errors.New("unknown render item kind")

// Kind discriminates a RenderItem.
type Kind string

const (
	KindProduct Kind = "product"
	KindCart    Kind = "cart"
)

// ProductFields is the product data needed to display either kind of item.
type ProductFields struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	ShortDescription string          `json:"short_description"`
	Price            decimal.Decimal `json:"price"`
	ImageRef         string          `json:"image_ref"`
}

// RenderItem is a tagged union: Kind decides which payload is meaningful.
// Quantity is set only for KindCart.
type RenderItem struct {
	Kind     Kind          `json:"type"`
	Product  ProductFields `json:"product"`
	Quantity int           `json:"quantity,omitempty"`
}

func ProductItem(p ProductFields) RenderItem {
	return RenderItem{Kind: KindProduct, Product: p}
}

func CartItem(p ProductFields, quantity int) RenderItem {
	return RenderItem{Kind: KindCart, Product: p, Quantity: quantity}
}

// Affordance is the mutation control offered next to an item.
type Affordance string

const (
	AffordanceNone   Affordance = "none"
	AffordanceAdd    Affordance = "add"
	AffordanceRemove Affordance = "remove"
)

// Action is the access action the affordance triggers, empty for AffordanceNone.
func (a Affordance) Action() access.Action {
	switch a {
	case AffordanceAdd:
		return access.AddToCart
	case AffordanceRemove:
		return access.RemoveFromCart
	}
	return ""
}

type RenderedItem struct {
	RenderItem
	Affordance Affordance `json:"affordance"`
}

// Render decides the affordance for item as seen by role. The item kind and
// the role are separate axes: products offer "add" when the role may add to a
// cart, cart lines always offer "remove".
func Render(item RenderItem, role access.Role) (RenderedItem, error) {
	out := RenderedItem{RenderItem: item, Affordance: AffordanceNone}

	switch item.Kind {
	case KindProduct:
		if access.Can(access.AddToCart, role) {
			out.Affordance = AffordanceAdd
		}
	case KindCart:
		out.Affordance = AffordanceRemove
	default:
		return RenderedItem{}, fmt.Errorf("%w: %q", ErrUnknownKind, item.Kind)
	}
	return out, nil
}

// RenderAll renders items in order, stopping at the first unknown kind.
func RenderAll(items []RenderItem, role access.Role) ([]RenderedItem, error) {
	out := make([]RenderedItem, 0, len(items))
	for _, item := range items {
		r, err := Render(item, role)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ClientProductItems lists a catalog fetched through cartclient.
func ClientProductItems(products []cartclient.Product) []RenderItem {
	items := make([]RenderItem, 0, len(products))
	for _, p := range products {
		items = append(items, ProductItem(clientFields(p)))
	}
	return items
}

// ClientCartItems lists the lines of a cart projection. Lines whose product is
// not known yet (still tentative) carry only the product id.
func ClientCartItems(cart *cartclient.Cart) []RenderItem {
	if cart == nil {
		return []RenderItem{}
	}
	items := make([]RenderItem, 0, len(cart.Lines))
	for _, line := range cart.Lines {
		fields := ProductFields{ID: line.ProductID}
		if line.Product != nil {
			fields = clientFields(*line.Product)
		}
		items = append(items, CartItem(fields, line.Quantity))
	}
	return items
}

func clientFields(p cartclient.Product) ProductFields {
	return ProductFields{
		ID:               p.ID,
		Name:             p.Name,
		ShortDescription: p.ShortDescription,
		Price:            p.Price,
		ImageRef:         p.ImageRef,
	}
}
