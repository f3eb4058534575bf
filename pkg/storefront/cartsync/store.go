// Package cartsync keeps one process-wide projection of the signed-in session and
// its cart for every UI consumer. Mutations are applied optimistically and then
// confirmed against, or rolled back to, the server's committed cart.
package cartsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nexe/nexe-backend/pkg/access"
	"github.com/nexe/nexe-backend/pkg/logger"
	"github.com/nexe/nexe-backend/pkg/storefront/cartclient"
)

var (
	// ErrSignedOut is returned for mutations while no user session is resolved.
	ErrSignedOut = errors.New("sign in to use the cart")
	ErrClosed    = errors.New("cart store closed")
	// ErrSuperseded means the session changed while the call was in flight and
	// its result was discarded.
	ErrSuperseded = errors.New("superseded by a session change")
)

// API is the cart surface the store drives. *cartclient.Client implements it.
type API interface {
	GetSession(ctx context.Context) (*cartclient.Session, error)
	GetCart(ctx context.Context) (*cartclient.Cart, error)
	AddLine(ctx context.Context, productID string, qty int, opts ...cartclient.MutationOption) (*cartclient.Cart, error)
	RemoveLine(ctx context.Context, productID string, opts ...cartclient.MutationOption) (*cartclient.Cart, error)
	ClearCart(ctx context.Context, opts ...cartclient.MutationOption) (*cartclient.Cart, error)
}

// MutationError is the user-visible failure of one cart mutation. The change it
// describes has already been rolled back.
type MutationError struct {
	Op        string
	ProductID string
	Err       error
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.ProductID, e.Err)
}

func (e *MutationError) Unwrap() error {
	return e.Err
}

// Snapshot is an immutable view of the store. Every subscriber notified for a
// change receives the same pointer; callers must not modify it.
type Snapshot struct {
	Session   cartclient.Session
	Cart      *cartclient.Cart
	IsLoading bool
	// Pending counts mutations still awaiting the server.
	Pending int
	// Err is the latest failure, cleared by the next successful load or mutation.
	Err error
}

func (s *Snapshot) Identity() access.Identity {
	return s.Session.Identity()
}

type Option func(*Store)

func WithLogger(l *logger.Logger) Option {
	return func(s *Store) {
		s.log = l
	}
}

type Store struct {
	mu        sync.Mutex
	api       API
	log       *logger.Logger
	epoch     uint64
	closed    bool
	session   cartclient.Session
	confirmed *cartclient.Cart
	// held is the newest committed cart received while mutations were tentative.
	// It may already contain their commits, so it replaces confirmed only once
	// none is tentative.
	held    *cartclient.Cart
	pending []*mutation
	nextID  uint64
	loading bool
	err     error
	current *Snapshot
	gates   map[string]chan struct{}

	// notifyMu orders deliveries so subscribers see snapshots in publish order.
	notifyMu sync.Mutex
	subs     map[uint64]func(*Snapshot)
	nextSub  uint64
}

func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:       api,
		log:       logger.Nop(),
		confirmed: emptyCart(""),
		gates:     make(map[string]chan struct{}),
		subs:      make(map[uint64]func(*Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.current = s.buildLocked()
	return s
}

func emptyCart(ownerID string) *cartclient.Cart {
	return &cartclient.Cart{OwnerID: ownerID, Lines: []cartclient.Line{}}
}

// Snapshot returns the current projection.
func (s *Store) Snapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers fn for every later snapshot. Callbacks run synchronously on
// the goroutine that changed the store and must not call mutating methods.
func (s *Store) Subscribe(fn func(*Snapshot)) (unsubscribe func()) {
	s.notifyMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.notifyMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.notifyMu.Lock()
			delete(s.subs, id)
			s.notifyMu.Unlock()
		})
	}
}

func (s *Store) buildLocked() *Snapshot {
	pending := 0
	for _, m := range s.pending {
		if m.state == Tentative {
			pending++
		}
	}
	return &Snapshot{
		Session:   s.session,
		Cart:      project(s.confirmed, s.pending),
		IsLoading: s.loading,
		Pending:   pending,
		Err:       s.err,
	}
}

// publishLocked rebuilds the snapshot and delivers it. It must be called with mu
// held and releases it.
func (s *Store) publishLocked() {
	snap := s.buildLocked()
	s.current = snap
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	for _, fn := range s.subs {
		fn(snap)
	}
}

// Load resolves the session once and, for a signed-in user, fetches the cart once.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	epoch := s.epoch
	api := s.api
	s.loading = true
	s.publishLocked()

	session, err := api.GetSession(ctx)
	if err != nil {
		return s.finishLoad(epoch, nil, nil, err)
	}
	if !session.Authenticated {
		return s.finishLoad(epoch, session, emptyCart(""), nil)
	}

	cart, err := api.GetCart(ctx)
	return s.finishLoad(epoch, session, cart, err)
}

func (s *Store) finishLoad(epoch uint64, session *cartclient.Session, cart *cartclient.Cart, err error) error {
	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		s.mu.Unlock()
		return ErrSuperseded
	}
	s.loading = false

	if err != nil {
		if errors.Is(err, cartclient.ErrUnauthorized) {
			s.signOutLocked(err)
			s.publishLocked()
			return err
		}
		if session != nil {
			s.session = *session
		}
		s.err = err
		s.log.Warn("Cart load failed", map[string]interface{}{"error": err.Error()})
		s.publishLocked()
		return err
	}

	sameOwner := s.session.Authenticated && session.Authenticated && s.session.ID == session.ID
	s.session = *session
	if sameOwner {
		// a reload racing with mutations must not drop what they committed
		s.acceptLocked(cart)
	} else {
		s.resetCartLocked(cart)
	}
	s.err = nil
	s.publishLocked()
	return nil
}

// signOutLocked drops to the unauthenticated projection and discards everything
// in flight.
func (s *Store) signOutLocked(cause error) {
	s.epoch++
	s.session = cartclient.Session{}
	s.resetCartLocked(emptyCart(""))
	s.loading = false
	s.err = cause
	s.log.Info("Cart session ended", map[string]interface{}{"reason": cause.Error()})
}

// SetSession tears down the current identity's projection and loads the identity
// behind api. Responses still in flight for the previous identity are dropped.
func (s *Store) SetSession(ctx context.Context, api API) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.epoch++
	s.api = api
	s.session = cartclient.Session{}
	s.resetCartLocked(emptyCart(""))
	s.err = nil
	s.mu.Unlock()

	return s.Load(ctx)
}

// Close detaches every subscriber and drops late responses.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.epoch++
	s.mu.Unlock()

	s.notifyMu.Lock()
	s.subs = make(map[uint64]func(*Snapshot))
	s.notifyMu.Unlock()
}

// Refresh re-fetches the committed cart.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	epoch, api := s.epoch, s.api
	s.mu.Unlock()

	cart, err := api.GetCart(ctx)

	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, cartclient.ErrUnauthorized) {
			s.signOutLocked(err)
		} else {
			s.err = err
		}
		s.publishLocked()
		return err
	}
	s.acceptLocked(cart)
	s.publishLocked()
	return nil
}

// Reconcile applies a committed cart pushed by the server. Older versions and
// carts of another owner are ignored.
func (s *Store) Reconcile(cart *cartclient.Cart) bool {
	s.mu.Lock()
	if s.closed || !s.session.Authenticated || cart == nil || cart.OwnerID != s.session.ID {
		s.mu.Unlock()
		return false
	}
	if !s.acceptLocked(cart) {
		s.mu.Unlock()
		return false
	}
	s.publishLocked()
	return true
}

// resetCartLocked starts over from cart, abandoning everything in flight.
// Mutations still running hold their own gate and finish against the old epoch.
func (s *Store) resetCartLocked(cart *cartclient.Cart) {
	for _, m := range s.pending {
		m.settle(RolledBack)
	}
	s.pending = nil
	s.held = nil
	s.confirmed = cart
	s.gates = make(map[string]chan struct{})
}

// acceptLocked takes cart as committed state unless a newer one is already known.
// While any mutation is tentative the cart is held back, since it may already
// contain that mutation's commit and would count its delta twice.
func (s *Store) acceptLocked(cart *cartclient.Cart) bool {
	newest := s.confirmed
	if s.held != nil {
		newest = s.held
	}
	if cart.Version < newest.Version {
		return false
	}
	if cart.Lines == nil {
		cart.Lines = []cartclient.Line{}
	}
	s.held = cart
	s.foldLocked()
	return true
}

// foldLocked promotes the held cart once no mutation is tentative. Confirmed
// mutations are contained in it and stop being projected.
func (s *Store) foldLocked() {
	for _, m := range s.pending {
		if m.state == Tentative {
			return
		}
	}
	if s.held != nil {
		s.confirmed = s.held
		s.held = nil
	}
	s.pending = nil
}

func (s *Store) usableLocked() error {
	if s.closed {
		return ErrClosed
	}
	if !s.session.Authenticated {
		return ErrSignedOut
	}
	return nil
}

// AddToCart adds one unit of productID.
func (s *Store) AddToCart(ctx context.Context, productID string) error {
	return s.mutate(ctx, mutationAdd, productID, 1)
}

// RemoveFromCart removes the whole line for productID.
func (s *Store) RemoveFromCart(ctx context.Context, productID string) error {
	return s.mutate(ctx, mutationRemove, productID, 0)
}

func (s *Store) mutate(ctx context.Context, kind mutationKind, productID string, qty int) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.nextID++
	m := &mutation{id: s.nextID, kind: kind, productID: productID, qty: qty}
	s.pending = append(s.pending, m)
	epoch, api := s.epoch, s.api
	gate := s.gateLocked(productID)
	s.publishLocked()

	// Mutations of one product reach the server one at a time, in initiation order.
	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		s.settle(epoch, m, nil, ctx.Err())
		return ctx.Err()
	}
	defer func() { <-gate }()

	var (
		cart *cartclient.Cart
		err  error
	)
	if kind == mutationAdd {
		cart, err = api.AddLine(ctx, productID, qty)
	} else {
		cart, err = api.RemoveLine(ctx, productID)
	}
	return s.settle(epoch, m, cart, err)
}

func (s *Store) gateLocked(productID string) chan struct{} {
	gate, ok := s.gates[productID]
	if !ok {
		gate = make(chan struct{}, 1)
		s.gates[productID] = gate
	}
	return gate
}

// settle confirms or rolls back m with the server's answer.
func (s *Store) settle(epoch uint64, m *mutation, cart *cartclient.Cart, err error) error {
	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err == nil {
		// stays projected until a cart containing it is promoted
		m.settle(Confirmed)
		s.acceptLocked(cart)
		s.foldLocked()
		s.err = nil
		s.publishLocked()
		return nil
	}

	m.settle(RolledBack)
	s.dropLocked(m)
	s.foldLocked()
	if errors.Is(err, cartclient.ErrUnauthorized) {
		s.signOutLocked(err)
		s.publishLocked()
		return err
	}

	mutErr := &MutationError{Op: m.kind.String(), ProductID: m.productID, Err: err}
	s.err = mutErr
	s.log.Warn("Cart mutation rolled back", map[string]interface{}{
		"op":         m.kind.String(),
		"product_id": m.productID,
		"error":      err.Error(),
	})
	conflict := errors.Is(err, cartclient.ErrConflict)
	s.publishLocked()

	if conflict {
		// the committed cart moved on; pick it up before the user retries
		if rerr := s.Refresh(context.Background()); rerr != nil && !errors.Is(rerr, ErrSuperseded) {
			s.log.Warn("Cart refresh after conflict failed", map[string]interface{}{"error": rerr.Error()})
		}
	}
	return mutErr
}

func (s *Store) dropLocked(m *mutation) {
	for i, p := range s.pending {
		if p == m {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			return
		}
	}
}

// ClearCart empties the cart. It is not optimistic: the projection changes only
// once the server has committed the clear.
func (s *Store) ClearCart(ctx context.Context) error {
	s.mu.Lock()
	if err := s.usableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	epoch, api := s.epoch, s.api
	s.mu.Unlock()

	cart, err := api.ClearCart(ctx)

	s.mu.Lock()
	if s.epoch != epoch || s.closed {
		s.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		if errors.Is(err, cartclient.ErrUnauthorized) {
			s.signOutLocked(err)
		} else {
			err = &MutationError{Op: "clear", Err: err}
			s.err = err
		}
		s.publishLocked()
		return err
	}
	s.acceptLocked(cart)
	s.err = nil
	s.publishLocked()
	return nil
}
