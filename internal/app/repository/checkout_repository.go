package repository

import (
	"context"
	"time"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CheckoutRepository interface {
	// FindOrCreate returns the confirmation for token, inserting a PENDING one if absent.
	FindOrCreate(ctx context.Context, token, ownerID string) (*model.CheckoutConfirmation, error)
	RecordAttempt(ctx context.Context, token string) error
	// MarkCleared moves a PENDING confirmation to CLEARED. It reports false when the
	// confirmation was already CLEARED.
	MarkCleared(ctx context.Context, token string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type checkoutRepository struct {
	db *gorm.DB
}

func NewCheckoutRepository(db *gorm.DB) CheckoutRepository {
	return &checkoutRepository{db: db}
}

func (r *checkoutRepository) FindOrCreate(ctx context.Context, token, ownerID string) (*model.CheckoutConfirmation, error) {
	confirmation := model.CheckoutConfirmation{
		Token:   token,
		OwnerID: ownerID,
		Status:  model.ConfirmationPending,
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&confirmation).Error; err != nil {
		logger.Error("Failed to record checkout confirmation", err, map[string]interface{}{
			"owner_id": ownerID,
		})
		return nil, err
	}

	var stored model.CheckoutConfirmation
	if err := r.db.WithContext(ctx).Where("token = ?", token).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *checkoutRepository) RecordAttempt(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Model(&model.CheckoutConfirmation{}).
		Where("token = ?", token).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error
}

func (r *checkoutRepository) MarkCleared(ctx context.Context, token string) (bool, error) {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.CheckoutConfirmation{}).
		Where("token = ? AND status = ?", token, model.ConfirmationPending).
		Updates(map[string]interface{}{
			"status":     model.ConfirmationCleared,
			"cleared_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		logger.Error("Failed to mark checkout confirmation cleared", result.Error)
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *checkoutRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&model.CheckoutConfirmation{})
	if result.Error != nil {
		logger.Error("Failed to delete stale checkout confirmations", result.Error, map[string]interface{}{
			"cutoff": cutoff,
		})
		return 0, result.Error
	}

	logger.Debug("Stale checkout confirmations deleted", map[string]interface{}{
		"cutoff":  cutoff,
		"deleted": result.RowsAffected,
	})
	return result.RowsAffected, nil
}
