package view

import (
	"testing"

	"github.com/nexe/nexe-backend/pkg/access"
	"github.com/nexe/nexe-backend/pkg/storefront/cartclient"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var roles = []access.Role{access.RoleNone, access.RoleUser, access.RoleAdmin}

func catalog() []cartclient.Product {
	return []cartclient.Product{
		{ID: "shirt-1", Name: "Linen Shirt", Price: decimal.RequireFromString("25.50")},
		{ID: "mug-1", Name: "Stoneware Mug", Price: decimal.NewFromInt(12)},
	}
}

func TestRender_ProductAffordanceByRole(t *testing.T) {
	tests := []struct {
		role access.Role
		want Affordance
	}{
		{access.RoleNone, AffordanceAdd},
		{access.RoleUser, AffordanceAdd},
		{access.RoleAdmin, AffordanceNone},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			rendered, err := RenderAll(ClientProductItems(catalog()), tt.role)
			require.NoError(t, err)
			require.Len(t, rendered, 2)
			for _, r := range rendered {
				assert.Equal(t, tt.want, r.Affordance)
			}
		})
	}
}

func TestRender_CartLineAlwaysRemovable(t *testing.T) {
	p := catalog()[0]
	item := ClientCartItems(&cartclient.Cart{Lines: []cartclient.Line{{ProductID: p.ID, Quantity: 2, Product: &p}}})[0]

	for _, role := range roles {
		r, err := Render(item, role)
		require.NoError(t, err)
		assert.Equal(t, AffordanceRemove, r.Affordance)
		assert.Equal(t, access.RemoveFromCart, r.Affordance.Action())
		assert.Equal(t, 2, r.Quantity)
		assert.Equal(t, "Linen Shirt", r.Product.Name)
	}
}

func TestRender_UnknownKind(t *testing.T) {
	_, err := Render(RenderItem{Kind: "wishlist"}, access.RoleUser)
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = RenderAll([]RenderItem{ClientProductItems(catalog())[0], {}}, access.RoleUser)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestClientCartItems(t *testing.T) {
	assert.Empty(t, ClientCartItems(nil))

	// a tentative line has no product details yet
	cart := &cartclient.Cart{OwnerID: "user-1", Lines: []cartclient.Line{{ProductID: "pending", Quantity: 1}}}
	items := ClientCartItems(cart)
	require.Len(t, items, 1)
	assert.Equal(t, KindCart, items[0].Kind)
	assert.Equal(t, "pending", items[0].Product.ID)
}

func TestNavigation(t *testing.T) {
	tests := []struct {
		name     string
		identity access.Identity
		want     []NavKey
	}{
		{"anonymous", access.Anonymous, []NavKey{NavHome, NavProducts, NavSignIn}},
		{"user", access.Identity{ID: "u1", Role: access.RoleUser}, []NavKey{NavHome, NavProducts, NavCart, NavCheckout, NavSignOut}},
		{"admin", access.Identity{ID: "a1", Role: access.RoleAdmin}, []NavKey{NavHome, NavProducts, NavAdmin, NavSignOut}},
		{"role without id", access.Identity{Role: access.RoleUser}, []NavKey{NavHome, NavProducts, NavSignIn}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Keys(Navigation(tt.identity)))
		})
	}
}
