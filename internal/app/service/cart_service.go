package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/app/repository"
	"github.com/nexe/nexe-backend/pkg/access"
	"github.com/nexe/nexe-backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrUnauthenticated = errors.New("identity is not authenticated")
	ErrForbidden       = errors.New("identity is not allowed to perform this action")
	ErrProductNotFound = errors.New("product not found")
	ErrCartConflict    = errors.New("cart was modified concurrently")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// IsAuthError reports whether err belongs to the authorization class (no or insufficient identity).
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrForbidden)
}

// CartNotifier is told about every committed cart change.
type CartNotifier interface {
	CartChanged(ctx context.Context, cart *model.Cart)
}

// CartService is the only writer of durable cart state. expectedVersion, when non-nil,
// makes a mutation conditional on the committed version (ErrCartConflict otherwise).
type CartService interface {
	GetCart(ctx context.Context, identity model.Identity) (*model.Cart, error)
	AddLine(ctx context.Context, identity model.Identity, productID string, quantity int, expectedVersion *int64) (*model.Cart, error)
	RemoveLine(ctx context.Context, identity model.Identity, productID string, expectedVersion *int64) (*model.Cart, error)
	ClearCart(ctx context.Context, identity model.Identity, expectedVersion *int64) (*model.Cart, error)
}

type cartService struct {
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	notifiers   []CartNotifier
}

func NewCartService(
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	notifiers ...CartNotifier,
) CartService {
	return &cartService{
		cartRepo:    cartRepo,
		productRepo: productRepo,
		notifiers:   notifiers,
	}
}

func (s *cartService) GetCart(ctx context.Context, identity model.Identity) (*model.Cart, error) {
	if !identity.Authenticated() {
		return nil, ErrUnauthenticated
	}

	cart, err := s.cartRepo.FindByOwner(ctx, identity.ID)
	if err != nil {
		logger.Error("Failed to fetch cart", err, map[string]interface{}{
			"owner_id": identity.ID,
		})
		return nil, err
	}

	logger.Debug("Cart fetched", map[string]interface{}{
		"owner_id": identity.ID,
		"lines":    len(cart.Lines),
		"version":  cart.Version,
	})
	return cart, nil
}

func (s *cartService) AddLine(ctx context.Context, identity model.Identity, productID string, quantity int, expectedVersion *int64) (*model.Cart, error) {
	if !identity.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !access.Can(access.AddToCart, identity.Role) {
		logger.Warn("Add to cart denied for role", map[string]interface{}{
			"owner_id": identity.ID,
			"role":     identity.Role,
		})
		return nil, ErrForbidden
	}
	if quantity < 1 {
		return nil, ErrInvalidQuantity
	}

	logger.Info("Adding line to cart", map[string]interface{}{
		"owner_id":   identity.ID,
		"product_id": productID,
		"quantity":   quantity,
	})

	if _, err := s.productRepo.FindByID(ctx, productID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Cannot add to cart: product not found", map[string]interface{}{
				"owner_id":   identity.ID,
				"product_id": productID,
			})
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to resolve product: %w", err)
	}

	cart, err := s.cartRepo.AddLine(ctx, identity.ID, productID, quantity, expectedVersion)
	if err != nil {
		return nil, s.mutationError("add", identity, err)
	}

	logger.Info("Cart line added", map[string]interface{}{
		"owner_id":   identity.ID,
		"product_id": productID,
		"version":    cart.Version,
	})
	s.notify(ctx, cart)
	return cart, nil
}

func (s *cartService) RemoveLine(ctx context.Context, identity model.Identity, productID string, expectedVersion *int64) (*model.Cart, error) {
	if !identity.Authenticated() {
		return nil, ErrUnauthenticated
	}

	logger.Info("Removing line from cart", map[string]interface{}{
		"owner_id":   identity.ID,
		"product_id": productID,
	})

	before, err := s.cartRepo.FindByOwner(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	cart, err := s.cartRepo.RemoveLine(ctx, identity.ID, productID, expectedVersion)
	if err != nil {
		return nil, s.mutationError("remove", identity, err)
	}

	if cart.Version != before.Version {
		s.notify(ctx, cart)
	}
	return cart, nil
}

func (s *cartService) ClearCart(ctx context.Context, identity model.Identity, expectedVersion *int64) (*model.Cart, error) {
	if !identity.Authenticated() {
		return nil, ErrUnauthenticated
	}

	logger.Info("Clearing cart", map[string]interface{}{
		"owner_id": identity.ID,
	})

	before, err := s.cartRepo.FindByOwner(ctx, identity.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	cart, err := s.cartRepo.Clear(ctx, identity.ID, expectedVersion)
	if err != nil {
		return nil, s.mutationError("clear", identity, err)
	}

	if cart.Version != before.Version {
		s.notify(ctx, cart)
	}
	logger.Info("Cart cleared", map[string]interface{}{
		"owner_id": identity.ID,
		"version":  cart.Version,
	})
	return cart, nil
}

func (s *cartService) mutationError(op string, identity model.Identity, err error) error {
	if errors.Is(err, repository.ErrVersionConflict) {
		logger.Warn("Cart mutation rejected: version conflict", map[string]interface{}{
			"owner_id":  identity.ID,
			"operation": op,
		})
		return ErrCartConflict
	}
	logger.Error("Cart mutation failed", err, map[string]interface{}{
		"owner_id":  identity.ID,
		"operation": op,
	})
	return fmt.Errorf("failed to %s cart line: %w", op, err)
}

func (s *cartService) notify(ctx context.Context, cart *model.Cart) {
	for _, n := range s.notifiers {
		n.CartChanged(ctx, cart)
	}
}
