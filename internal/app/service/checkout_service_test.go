package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/app/repository"
	"github.com/nexe/nexe-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingCartService counts clears and fails the first failFirst of them.
type countingCartService struct {
	CartService
	clears    atomic.Int32
	failFirst int32
}

func (c *countingCartService) ClearCart(ctx context.Context, identity model.Identity, expectedVersion *int64) (*model.Cart, error) {
	n := c.clears.Add(1)
	if n <= c.failFirst {
		return nil, errors.New("store unavailable")
	}
	return model.EmptyCart(identity.ID), nil
}

type stubLocker struct {
	acquired bool
	err      error
	released atomic.Int32
}

func (l *stubLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return func() { l.released.Add(1) }, l.acquired, l.err
}

func setupCheckoutServiceTest(t *testing.T, carts *countingCartService, locker TokenLocker) (CheckoutService, repository.CheckoutRepository) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	repo := repository.NewCheckoutRepository(testDB)
	return NewCheckoutService(repo, carts, locker, time.Second), repo
}

func TestCheckoutService_Complete_ClearsOncePerToken(t *testing.T) {
	carts := &countingCartService{}
	svc, _ := setupCheckoutServiceTest(t, carts, nil)
	ctx := context.Background()

	result, err := svc.Complete(ctx, shopper, "cs_test_1")
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationCleared, result.Status)
	assert.True(t, result.CartCleared)

	for i := 0; i < 3; i++ {
		result, err = svc.Complete(ctx, shopper, "cs_test_1")
		require.NoError(t, err)
		assert.Equal(t, model.ConfirmationCleared, result.Status)
		assert.False(t, result.CartCleared)
	}

	assert.Equal(t, int32(1), carts.clears.Load())
}

func TestCheckoutService_Complete_ClearFailureStaysRetryable(t *testing.T) {
	carts := &countingCartService{failFirst: 1}
	svc, _ := setupCheckoutServiceTest(t, carts, nil)
	ctx := context.Background()

	result, err := svc.Complete(ctx, shopper, "cs_test_2")
	require.NoError(t, err, "clear failure is not a checkout failure")
	assert.Equal(t, model.ConfirmationPending, result.Status)
	assert.NotEmpty(t, result.ClearError)

	result, err = svc.Complete(ctx, shopper, "cs_test_2")
	require.NoError(t, err)
	assert.Equal(t, model.ConfirmationCleared, result.Status)
	assert.True(t, result.CartCleared)
	assert.Equal(t, int32(2), carts.clears.Load())
}

func TestCheckoutService_Complete_Rejections(t *testing.T) {
	carts := &countingCartService{}
	svc, _ := setupCheckoutServiceTest(t, carts, nil)
	ctx := context.Background()

	_, err := svc.Complete(ctx, model.Anonymous, "cs_test_3")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = svc.Complete(ctx, shopper, "   ")
	assert.ErrorIs(t, err, ErrInvalidCheckoutToken)

	_, err = svc.Complete(ctx, shopper, "cs_test_3")
	require.NoError(t, err)

	other := model.Identity{ID: "user-2", Role: model.RoleUser}
	_, err = svc.Complete(ctx, other, "cs_test_3")
	assert.ErrorIs(t, err, ErrCheckoutTokenOwner)

	assert.Equal(t, int32(1), carts.clears.Load())
}

func TestCheckoutService_Complete_Locking(t *testing.T) {
	t.Run("held lock rejects", func(t *testing.T) {
		carts := &countingCartService{}
		svc, _ := setupCheckoutServiceTest(t, carts, &stubLocker{acquired: false})

		_, err := svc.Complete(context.Background(), shopper, "cs_lock_1")
		assert.ErrorIs(t, err, ErrCheckoutInProgress)
		assert.Equal(t, int32(0), carts.clears.Load())
	})

	t.Run("acquired lock is released", func(t *testing.T) {
		carts := &countingCartService{}
		locker := &stubLocker{acquired: true}
		svc, _ := setupCheckoutServiceTest(t, carts, locker)

		_, err := svc.Complete(context.Background(), shopper, "cs_lock_2")
		require.NoError(t, err)
		assert.Equal(t, int32(1), locker.released.Load())
	})

	t.Run("lock backend failure falls back to status guard", func(t *testing.T) {
		carts := &countingCartService{}
		svc, _ := setupCheckoutServiceTest(t, carts, &stubLocker{err: errors.New("redis down")})

		result, err := svc.Complete(context.Background(), shopper, "cs_lock_3")
		require.NoError(t, err)
		assert.Equal(t, model.ConfirmationCleared, result.Status)
	})
}

func TestCheckoutService_SweepConfirmations(t *testing.T) {
	carts := &countingCartService{}
	svc, repo := setupCheckoutServiceTest(t, carts, nil)
	ctx := context.Background()

	_, err := repo.FindOrCreate(ctx, "cs_old", "user-1")
	require.NoError(t, err)

	deleted, err := svc.SweepConfirmations(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	deleted, err = svc.SweepConfirmations(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}
