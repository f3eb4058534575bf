package cartsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/apptest"
	"github.com/nexe/nexe-backend/pkg/storefront/cartclient"
	"github.com/nexe/nexe-backend/pkg/storefront/cartsync"
	"github.com/nexe/nexe-backend/pkg/storefront/checkout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AgainstServer(t *testing.T) {
	srv := apptest.NewServer(t)
	srv.SeedProduct(t, "shirt-1", "Shirt", "25.50")
	srv.SeedProduct(t, "hat-1", "Hat", "12.00")
	ctx := context.Background()

	api, err := cartclient.NewClient(cartclient.Config{
		BaseURL: srv.URL + "/api/v1",
		Token:   srv.Token(t, "user-1", model.RoleUser),
	})
	require.NoError(t, err)

	store := cartsync.NewStore(api)
	defer store.Close()
	require.NoError(t, store.Load(ctx))

	require.NoError(t, store.AddToCart(ctx, "shirt-1"))
	require.NoError(t, store.AddToCart(ctx, "shirt-1"))
	require.NoError(t, store.AddToCart(ctx, "hat-1"))

	snap := store.Snapshot()
	assert.Equal(t, 2, snap.Cart.Quantity("shirt-1"))
	assert.Equal(t, "63", snap.Cart.Total.String())
	assert.Equal(t, int64(3), snap.Cart.Version)

	err = store.AddToCart(ctx, "missing")
	assert.ErrorIs(t, err, cartclient.ErrNotFound)
	assert.Equal(t, snap.Cart, store.Snapshot().Cart)

	// another tab changes the cart; the push stream brings this store up to date
	stream, err := api.OpenStream(ctx)
	require.NoError(t, err)
	defer stream.Close()
	initial, err := stream.Next()
	require.NoError(t, err)
	assert.False(t, store.Reconcile(&cartclient.Cart{OwnerID: "user-1", Version: initial.Version - 1}))
	require.Eventually(t, func() bool { return srv.App.Hub.IsOnline("user-1") }, 2*time.Second, 10*time.Millisecond)

	_, err = api.RemoveLine(ctx, "hat-1")
	require.NoError(t, err)
	pushed, err := stream.Next()
	require.NoError(t, err)
	assert.True(t, store.Reconcile(pushed))
	assert.Equal(t, 0, store.Snapshot().Cart.Quantity("hat-1"))

	handler := checkout.NewCompletionHandler(store, nil)
	out, err := handler.Handle(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, checkout.Cleared, out.State)
	assert.Empty(t, store.Snapshot().Cart.Lines)

	// a later purchase survives a replay of the old confirmation
	require.NoError(t, store.AddToCart(ctx, "hat-1"))
	out, err = handler.Handle(ctx, "cs_test_1")
	require.NoError(t, err)
	assert.False(t, out.Fired)
	require.NoError(t, store.Refresh(ctx))
	assert.Equal(t, 1, store.Snapshot().Cart.Quantity("hat-1"))
}

func TestStore_AdminCannotMutate(t *testing.T) {
	srv := apptest.NewServer(t)
	srv.SeedProduct(t, "shirt-1", "Shirt", "25.50")
	ctx := context.Background()

	api, err := cartclient.NewClient(cartclient.Config{
		BaseURL: srv.URL + "/api/v1",
		Token:   srv.Token(t, "admin-1", model.RoleAdmin),
	})
	require.NoError(t, err)

	store := cartsync.NewStore(api)
	defer store.Close()

	require.NoError(t, store.Load(ctx))
	assert.Equal(t, model.RoleAdmin, store.Snapshot().Session.Role)

	err = store.AddToCart(ctx, "shirt-1")
	assert.ErrorIs(t, err, cartclient.ErrForbidden)
	assert.Empty(t, store.Snapshot().Cart.Lines)
	assert.True(t, store.Snapshot().Session.Authenticated, "forbidden is not a sign-out")
}
