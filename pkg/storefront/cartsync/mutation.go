package cartsync

import (
	"github.com/nexe/nexe-backend/pkg/storefront/cartclient"
	"github.com/shopspring/decimal"
)

type mutationKind int

const (
	mutationAdd mutationKind = iota
	mutationRemove
)

func (k mutationKind) String() string {
	if k == mutationAdd {
		return "add"
	}
	return "remove"
}

// MutationState is the phase of one optimistic mutation. A mutation starts
// Tentative and ends either Confirmed or RolledBack, never both.
type MutationState int

const (
	Tentative MutationState = iota
	Confirmed
	RolledBack
)

func (s MutationState) String() string {
	switch s {
	case Tentative:
		return "tentative"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled_back"
	}
	return "unknown"
}

type mutation struct {
	id        uint64
	kind      mutationKind
	productID string
	qty       int
	state     MutationState
}

// settle moves a tentative mutation to its final state. It reports false when the
// mutation had already settled.
func (m *mutation) settle(to MutationState) bool {
	if m.state != Tentative {
		return false
	}
	m.state = to
	return true
}

// project applies the deltas of unpromoted mutations in initiation order on top
// of the confirmed cart. The confirmed cart is never modified.
func project(confirmed *cartclient.Cart, pending []*mutation) *cartclient.Cart {
	out := &cartclient.Cart{
		OwnerID: confirmed.OwnerID,
		Version: confirmed.Version,
		Lines:   make([]cartclient.Line, 0, len(confirmed.Lines)),
	}
	out.Lines = append(out.Lines, confirmed.Lines...)

	for _, m := range pending {
		if m.state == RolledBack {
			continue
		}
		idx := -1
		for i, l := range out.Lines {
			if l.ProductID == m.productID {
				idx = i
				break
			}
		}
		switch m.kind {
		case mutationAdd:
			if idx >= 0 {
				out.Lines[idx].Quantity += m.qty
			} else {
				out.Lines = append(out.Lines, cartclient.Line{ProductID: m.productID, Quantity: m.qty})
			}
		case mutationRemove:
			if idx >= 0 {
				out.Lines = append(out.Lines[:idx:idx], out.Lines[idx+1:]...)
			}
		}
	}

	out.Total = decimal.Zero
	for _, l := range out.Lines {
		out.Count += l.Quantity
		if l.Product != nil {
			out.Total = out.Total.Add(l.Product.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
		}
	}
	return out
}
