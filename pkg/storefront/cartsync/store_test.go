package cartsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nexe/nexe-backend/pkg/storefront/cartclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// fakeAPI is an in-memory cart server. AddLine can be made to fail or to block
// until released.
type fakeAPI struct {
	mu           sync.Mutex
	session      cartclient.Session
	lines        map[string]int
	version      int64
	sessionCalls int
	cartCalls    int
	addCalls     int
	addErr       error
	getBlock     chan struct{}
	addBlock     chan struct{}
	entered      chan string
}

func newFakeAPI(userID string) *fakeAPI {
	f := &fakeAPI{lines: map[string]int{}}
	if userID != "" {
		f.session = cartclient.Session{Authenticated: true, ID: userID, Role: "user"}
	}
	return f
}

func (f *fakeAPI) cartLocked() *cartclient.Cart {
	cart := &cartclient.Cart{OwnerID: f.session.ID, Version: f.version, Lines: []cartclient.Line{}}
	for id, qty := range f.lines {
		cart.Lines = append(cart.Lines, cartclient.Line{ProductID: id, Quantity: qty})
		cart.Count += qty
	}
	return cart
}

func (f *fakeAPI) GetSession(ctx context.Context) (*cartclient.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessionCalls++
	s := f.session
	return &s, nil
}

func (f *fakeAPI) GetCart(ctx context.Context) (*cartclient.Cart, error) {
	f.mu.Lock()
	f.cartCalls++
	block := f.getBlock
	f.mu.Unlock()

	if block != nil {
		f.entered <- "get"
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cartLocked(), nil
}

func (f *fakeAPI) AddLine(ctx context.Context, productID string, qty int, opts ...cartclient.MutationOption) (*cartclient.Cart, error) {
	f.mu.Lock()
	f.addCalls++
	block := f.addBlock
	f.mu.Unlock()

	if block != nil {
		f.entered <- productID
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return nil, f.addErr
	}
	f.lines[productID] += qty
	f.version++
	return f.cartLocked(), nil
}

func (f *fakeAPI) RemoveLine(ctx context.Context, productID string, opts ...cartclient.MutationOption) (*cartclient.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.lines[productID]; ok {
		delete(f.lines, productID)
		f.version++
	}
	return f.cartLocked(), nil
}

func (f *fakeAPI) ClearCart(ctx context.Context, opts ...cartclient.MutationOption) (*cartclient.Cart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lines) > 0 {
		f.lines = map[string]int{}
		f.version++
	}
	return f.cartLocked(), nil
}

// blockCalls holds GetCart and AddLine until the returned channel is closed.
func (f *fakeAPI) blockCalls() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	block := make(chan struct{})
	f.getBlock, f.addBlock = block, block
	f.entered = make(chan string, 8)
	return block
}

// blockGets holds only GetCart.
func (f *fakeAPI) blockGets() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getBlock = make(chan struct{})
	f.entered = make(chan string, 8)
	return f.getBlock
}

func (f *fakeAPI) setAddErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addErr = err
}

func loadedStore(t *testing.T, api *fakeAPI) *Store {
	t.Helper()
	s := NewStore(api)
	require.NoError(t, s.Load(context.Background()))
	t.Cleanup(s.Close)
	return s
}

func TestStore_LoadResolvesOnce(t *testing.T) {
	api := newFakeAPI("user-1")
	api.lines["shirt-1"] = 2
	api.version = 4

	s := NewStore(api)
	var seen []*Snapshot
	s.Subscribe(func(snap *Snapshot) { seen = append(seen, snap) })

	require.NoError(t, s.Load(context.Background()))

	snap := s.Snapshot()
	assert.True(t, snap.Session.Authenticated)
	assert.False(t, snap.IsLoading)
	assert.Equal(t, 2, snap.Cart.Quantity("shirt-1"))
	assert.Equal(t, int64(4), snap.Cart.Version)
	assert.Equal(t, 1, api.sessionCalls)
	assert.Equal(t, 1, api.cartCalls)

	require.Len(t, seen, 2)
	assert.True(t, seen[0].IsLoading)
	assert.Same(t, snap, seen[1])
}

func TestStore_AnonymousSkipsCartFetch(t *testing.T) {
	api := newFakeAPI("")
	s := loadedStore(t, api)

	snap := s.Snapshot()
	assert.False(t, snap.Session.Authenticated)
	assert.Empty(t, snap.Cart.Lines)
	assert.Equal(t, 0, api.cartCalls)

	assert.ErrorIs(t, s.AddToCart(context.Background(), "shirt-1"), ErrSignedOut)
	assert.Equal(t, 0, api.addCalls)
}

func TestStore_OptimisticAddThenConfirm(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)
	release := api.blockCalls()

	done := make(chan error, 1)
	go func() { done <- s.AddToCart(context.Background(), "shirt-1") }()
	<-api.entered

	during := s.Snapshot()
	assert.Equal(t, 1, during.Cart.Quantity("shirt-1"))
	assert.Equal(t, 1, during.Pending)
	assert.Equal(t, int64(0), during.Cart.Version)

	close(release)
	require.NoError(t, <-done)

	after := s.Snapshot()
	assert.Equal(t, 1, after.Cart.Quantity("shirt-1"))
	assert.Equal(t, 0, after.Pending)
	assert.Equal(t, int64(1), after.Cart.Version)
}

func TestStore_FailedAddRollsBack(t *testing.T) {
	api := newFakeAPI("user-1")
	api.lines["shirt-1"] = 2
	api.version = 1
	s := loadedStore(t, api)
	before := s.Snapshot().Cart

	api.setAddErr(fmt.Errorf("%w: connection reset", cartclient.ErrTransient))
	err := s.AddToCart(context.Background(), "shirt-1")

	var mutErr *MutationError
	require.ErrorAs(t, err, &mutErr)
	assert.Equal(t, "add", mutErr.Op)
	assert.ErrorIs(t, err, cartclient.ErrTransient)

	after := s.Snapshot()
	assert.Equal(t, before, after.Cart)
	assert.Equal(t, err, after.Err)
	assert.Equal(t, 1, api.addCalls, "failed mutations are not retried")

	api.setAddErr(nil)
	require.NoError(t, s.AddToCart(context.Background(), "shirt-1"))
	assert.Nil(t, s.Snapshot().Err)
	assert.Equal(t, 3, s.Snapshot().Cart.Quantity("shirt-1"))
}

func TestStore_SubscribersShareSnapshot(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)

	var navbar, listing *Snapshot
	unsubNav := s.Subscribe(func(snap *Snapshot) { navbar = snap })
	s.Subscribe(func(snap *Snapshot) { listing = snap })

	require.NoError(t, s.AddToCart(context.Background(), "shirt-1"))
	assert.Same(t, navbar, listing)
	assert.Same(t, s.Snapshot(), navbar)

	unsubNav()
	unsubNav()
	require.NoError(t, s.RemoveFromCart(context.Background(), "shirt-1"))
	assert.NotSame(t, navbar, listing)
	assert.Same(t, s.Snapshot(), listing)
}

// Remove deletes the whole line rather than decrementing it.
func TestStore_RemoveDeletesWholeLine(t *testing.T) {
	api := newFakeAPI("user-1")
	api.lines["shirt-1"] = 3
	api.version = 3
	s := loadedStore(t, api)

	require.NoError(t, s.RemoveFromCart(context.Background(), "shirt-1"))
	assert.Equal(t, 0, s.Snapshot().Cart.Quantity("shirt-1"))
	assert.Empty(t, s.Snapshot().Cart.Lines)

	// stale remove after a reload is still a success
	require.NoError(t, s.RemoveFromCart(context.Background(), "shirt-1"))
}

func TestStore_SameProductMutationsQueue(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)
	release := api.blockCalls()

	var g errgroup.Group
	g.Go(func() error { return s.AddToCart(context.Background(), "shirt-1") })
	<-api.entered
	g.Go(func() error { return s.AddToCart(context.Background(), "shirt-1") })

	require.Eventually(t, func() bool { return s.Snapshot().Pending == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, s.Snapshot().Cart.Quantity("shirt-1"))
	select {
	case <-api.entered:
		t.Fatal("second mutation reached the server while the first was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, g.Wait())

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Cart.Quantity("shirt-1"))
	assert.Equal(t, int64(2), snap.Cart.Version)
	assert.Equal(t, 0, snap.Pending)
}

func TestStore_UnauthorizedEndsSession(t *testing.T) {
	api := newFakeAPI("user-1")
	api.lines["shirt-1"] = 1
	api.version = 1
	s := loadedStore(t, api)

	api.setAddErr(fmt.Errorf("%w: token expired", cartclient.ErrUnauthorized))
	err := s.AddToCart(context.Background(), "hat-1")
	assert.ErrorIs(t, err, cartclient.ErrUnauthorized)

	snap := s.Snapshot()
	assert.False(t, snap.Session.Authenticated)
	assert.Empty(t, snap.Cart.Lines)
	assert.ErrorIs(t, snap.Err, cartclient.ErrUnauthorized)

	assert.ErrorIs(t, s.AddToCart(context.Background(), "hat-1"), ErrSignedOut)
	assert.ErrorIs(t, s.RemoveFromCart(context.Background(), "shirt-1"), ErrSignedOut)
	assert.Equal(t, 1, api.addCalls)

	// signing in again restores the cart
	api.setAddErr(nil)
	require.NoError(t, s.SetSession(context.Background(), api))
	assert.Equal(t, 1, s.Snapshot().Cart.Quantity("shirt-1"))
}

func TestStore_LateResponseAfterSessionChange(t *testing.T) {
	first := newFakeAPI("user-1")
	s := loadedStore(t, first)
	release := first.blockCalls()

	done := make(chan error, 1)
	go func() { done <- s.AddToCart(context.Background(), "shirt-1") }()
	<-first.entered

	second := newFakeAPI("user-2")
	second.lines["hat-1"] = 1
	second.version = 1
	require.NoError(t, s.SetSession(context.Background(), second))

	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)

	snap := s.Snapshot()
	assert.Equal(t, "user-2", snap.Session.ID)
	assert.Equal(t, 0, snap.Cart.Quantity("shirt-1"))
	assert.Equal(t, 1, snap.Cart.Quantity("hat-1"))
}

func TestStore_CloseDropsInFlightLoad(t *testing.T) {
	api := newFakeAPI("user-1")
	release := api.blockCalls()
	s := NewStore(api)

	var calls int
	s.Subscribe(func(*Snapshot) { calls++ })

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background()) }()
	<-api.entered
	s.Close()
	before := s.Snapshot()

	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Same(t, before, s.Snapshot())
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, s.Load(context.Background()), ErrClosed)
}

func TestStore_ReconcileKeepsNewestVersion(t *testing.T) {
	api := newFakeAPI("user-1")
	api.lines["shirt-1"] = 2
	api.version = 5
	s := loadedStore(t, api)

	stale := &cartclient.Cart{OwnerID: "user-1", Version: 3, Lines: []cartclient.Line{{ProductID: "shirt-1", Quantity: 9}}}
	assert.False(t, s.Reconcile(stale))
	assert.Equal(t, 2, s.Snapshot().Cart.Quantity("shirt-1"))

	foreign := &cartclient.Cart{OwnerID: "user-2", Version: 9}
	assert.False(t, s.Reconcile(foreign))

	newer := &cartclient.Cart{OwnerID: "user-1", Version: 6, Lines: []cartclient.Line{{ProductID: "shirt-1", Quantity: 4}}}
	assert.True(t, s.Reconcile(newer))
	assert.Equal(t, 4, s.Snapshot().Cart.Quantity("shirt-1"))
}

func TestStore_ConflictRefetches(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)
	require.Equal(t, 1, api.cartCalls)

	api.setAddErr(fmt.Errorf("%w: version 3 expected", cartclient.ErrConflict))
	err := s.AddToCart(context.Background(), "shirt-1")
	assert.ErrorIs(t, err, cartclient.ErrConflict)
	assert.Equal(t, 2, api.cartCalls)
	assert.Equal(t, 0, s.Snapshot().Cart.Quantity("shirt-1"))
}

func TestStore_ClearCart(t *testing.T) {
	api := newFakeAPI("user-1")
	api.lines["shirt-1"] = 2
	api.lines["hat-1"] = 1
	api.version = 2
	s := loadedStore(t, api)

	require.NoError(t, s.ClearCart(context.Background()))
	assert.Empty(t, s.Snapshot().Cart.Lines)
	assert.Equal(t, int64(3), s.Snapshot().Cart.Version)

	require.NoError(t, s.ClearCart(context.Background()))
	assert.Empty(t, s.Snapshot().Cart.Lines)
}

func TestStore_PushContainingPendingAddIsNotDoubleCounted(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)
	release := api.blockCalls()

	done := make(chan error, 1)
	go func() { done <- s.AddToCart(context.Background(), "shirt-1") }()
	<-api.entered

	// the server's push for this very add lands before the HTTP reply
	pushed := &cartclient.Cart{OwnerID: "user-1", Version: 1, Lines: []cartclient.Line{{ProductID: "shirt-1", Quantity: 1}}}
	assert.True(t, s.Reconcile(pushed))
	assert.Equal(t, 1, s.Snapshot().Cart.Quantity("shirt-1"))
	assert.Equal(t, 1, s.Snapshot().Pending)

	close(release)
	require.NoError(t, <-done)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Cart.Quantity("shirt-1"))
	assert.Equal(t, int64(1), snap.Cart.Version)
	assert.Equal(t, 0, snap.Pending)
}

func TestStore_ResponseContainingOtherPendingAdd(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)
	release := api.blockCalls()

	var (
		mu      sync.Mutex
		maxSeen int
	)
	s.Subscribe(func(snap *Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		for _, l := range snap.Cart.Lines {
			if l.Quantity > maxSeen {
				maxSeen = l.Quantity
			}
		}
	})

	var g errgroup.Group
	g.Go(func() error { return s.AddToCart(context.Background(), "shirt-1") })
	<-api.entered
	g.Go(func() error { return s.AddToCart(context.Background(), "hat-1") })
	<-api.entered

	close(release)
	require.NoError(t, g.Wait())

	// whichever reply landed first already contained the other add
	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Cart.Quantity("shirt-1"))
	assert.Equal(t, 1, snap.Cart.Quantity("hat-1"))
	assert.Equal(t, int64(2), snap.Cart.Version)
	mu.Lock()
	assert.Equal(t, 1, maxSeen, "no snapshot may count an add twice")
	mu.Unlock()
}

func TestStore_HeldPushPromotedAfterSettle(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)
	release := api.blockCalls()
	api.setAddErr(fmt.Errorf("%w: timeout", cartclient.ErrTransient))

	done := make(chan error, 1)
	go func() { done <- s.AddToCart(context.Background(), "shirt-1") }()
	<-api.entered

	// another tab adds a hat while this add is in flight
	other := &cartclient.Cart{OwnerID: "user-1", Version: 1, Lines: []cartclient.Line{{ProductID: "hat-1", Quantity: 1}}}
	assert.True(t, s.Reconcile(other))

	close(release)
	require.Error(t, <-done)

	snap := s.Snapshot()
	assert.Equal(t, 0, snap.Cart.Quantity("shirt-1"))
	assert.Equal(t, 1, snap.Cart.Quantity("hat-1"))
	assert.Equal(t, int64(1), snap.Cart.Version)
}

func TestStore_ReloadRacingWithAddKeepsCommittedLine(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)
	release := api.blockGets()

	loaded := make(chan error, 1)
	go func() { loaded <- s.Load(context.Background()) }()
	<-api.entered

	require.NoError(t, s.AddToCart(context.Background(), "shirt-1"))
	require.Equal(t, int64(1), s.Snapshot().Cart.Version)

	// the reload read the cart before the add committed; make it answer with that read
	api.mu.Lock()
	api.lines = map[string]int{}
	api.version = 0
	api.mu.Unlock()

	close(release)
	require.NoError(t, <-loaded)

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Cart.Quantity("shirt-1"))
	assert.Equal(t, int64(1), snap.Cart.Version)
	assert.False(t, snap.IsLoading)
}

func TestStore_SessionChangeResetsProductQueues(t *testing.T) {
	api := newFakeAPI("user-1")
	s := loadedStore(t, api)
	require.NoError(t, s.AddToCart(context.Background(), "shirt-1"))
	require.NoError(t, s.AddToCart(context.Background(), "hat-1"))

	s.mu.Lock()
	assert.Len(t, s.gates, 2)
	s.mu.Unlock()

	require.NoError(t, s.SetSession(context.Background(), newFakeAPI("user-2")))

	s.mu.Lock()
	assert.Empty(t, s.gates)
	s.mu.Unlock()
}
