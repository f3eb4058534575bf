package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/internal/app/repository"
	"github.com/nexe/nexe-backend/pkg/logger"
)

var (
	ErrInvalidCheckoutToken = errors.New("checkout token is required")
	ErrCheckoutTokenOwner   = errors.New("checkout token belongs to another identity")
	ErrCheckoutInProgress   = errors.New("checkout completion already in progress")
)

// TokenLocker guards a confirmation token across server instances.
// A nil locker leaves the database status transition as the only guard.
type TokenLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// CheckoutResult is returned even when clearing the cart failed: payment already
// succeeded upstream, so a failed clear is reported, not escalated.
type CheckoutResult struct {
	Token       string                   `json:"token"`
	Status      model.ConfirmationStatus `json:"status"`
	CartCleared bool                     `json:"cart_cleared"`
	ClearError  string                   `json:"clear_error,omitempty"`
}

type CheckoutService interface {
	Complete(ctx context.Context, identity model.Identity, token string) (*CheckoutResult, error)
	SweepConfirmations(ctx context.Context, retention time.Duration) (int64, error)
}

type checkoutService struct {
	checkoutRepo repository.CheckoutRepository
	cartService  CartService
	locker       TokenLocker
	lockTTL      time.Duration
}

func NewCheckoutService(
	checkoutRepo repository.CheckoutRepository,
	cartService CartService,
	locker TokenLocker,
	lockTTL time.Duration,
) CheckoutService {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &checkoutService{
		checkoutRepo: checkoutRepo,
		cartService:  cartService,
		locker:       locker,
		lockTTL:      lockTTL,
	}
}

// Complete handles one payment confirmation signal. The PENDING to CLEARED transition
// happens at most once per token and issues one cart clear. A failed clear leaves the
// confirmation PENDING so a repeated signal retries it.
func (s *checkoutService) Complete(ctx context.Context, identity model.Identity, token string) (*CheckoutResult, error) {
	if !identity.Authenticated() {
		return nil, ErrUnauthenticated
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidCheckoutToken
	}

	if s.locker != nil {
		release, acquired, err := s.locker.Acquire(ctx, "checkout:"+token, s.lockTTL)
		if err != nil {
			// Fall through to the status guard if the lock backend is down
			logger.Warn("Checkout lock unavailable", map[string]interface{}{
				"owner_id": identity.ID,
				"error":    err.Error(),
			})
		} else if !acquired {
			return nil, ErrCheckoutInProgress
		} else {
			defer release()
		}
	}

	confirmation, err := s.checkoutRepo.FindOrCreate(ctx, token, identity.ID)
	if err != nil {
		return nil, err
	}
	if confirmation.OwnerID != identity.ID {
		logger.Warn("Checkout token presented by another identity", map[string]interface{}{
			"owner_id":     confirmation.OwnerID,
			"presented_by": identity.ID,
		})
		return nil, ErrCheckoutTokenOwner
	}

	if confirmation.Status == model.ConfirmationCleared {
		logger.Debug("Duplicate checkout confirmation ignored", map[string]interface{}{
			"owner_id": identity.ID,
		})
		return &CheckoutResult{Token: token, Status: model.ConfirmationCleared}, nil
	}

	if err := s.checkoutRepo.RecordAttempt(ctx, token); err != nil {
		logger.Warn("Failed to record checkout attempt", map[string]interface{}{
			"owner_id": identity.ID,
			"error":    err.Error(),
		})
	}

	if _, err := s.cartService.ClearCart(ctx, identity, nil); err != nil {
		logger.Error("Cart clear after checkout failed", err, map[string]interface{}{
			"owner_id": identity.ID,
		})
		return &CheckoutResult{
			Token:      token,
			Status:     model.ConfirmationPending,
			ClearError: err.Error(),
		}, nil
	}

	cleared, err := s.checkoutRepo.MarkCleared(ctx, token)
	if err != nil {
		return nil, err
	}

	logger.Info("Checkout completed", map[string]interface{}{
		"owner_id":     identity.ID,
		"cart_cleared": cleared,
	})
	return &CheckoutResult{Token: token, Status: model.ConfirmationCleared, CartCleared: cleared}, nil
}

func (s *checkoutService) SweepConfirmations(ctx context.Context, retention time.Duration) (int64, error) {
	return s.checkoutRepo.DeleteOlderThan(ctx, time.Now().Add(-retention))
}
