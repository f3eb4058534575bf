package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nexe/nexe-backend/internal/app/model"
	"github.com/nexe/nexe-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrVersionConflict is returned when a caller's expected cart version is not the committed one.
var ErrVersionConflict = errors.New("cart version conflict")

// CartRepository owns the durable cart of every identity. All writes for one owner
// take the owner's header row lock first, so they commit one after another; writes
// for different owners never touch the same rows.
//
// expectedVersion is optional; when set, the write is rejected with ErrVersionConflict
// unless the committed version still equals it.
type CartRepository interface {
	FindByOwner(ctx context.Context, ownerID string) (*model.Cart, error)
	AddLine(ctx context.Context, ownerID, productID string, quantity int, expectedVersion *int64) (*model.Cart, error)
	RemoveLine(ctx context.Context, ownerID, productID string, expectedVersion *int64) (*model.Cart, error)
	Clear(ctx context.Context, ownerID string, expectedVersion *int64) (*model.Cart, error)
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) FindByOwner(ctx context.Context, ownerID string) (*model.Cart, error) {
	logger.Debug("Finding cart by owner in database", map[string]interface{}{
		"owner_id": ownerID,
	})

	cart, err := loadCart(r.db.WithContext(ctx), ownerID)
	if err != nil {
		logger.Error("Failed to find cart by owner in database", err, map[string]interface{}{
			"owner_id": ownerID,
		})
		return nil, err
	}
	return cart, nil
}

func (r *cartRepository) AddLine(ctx context.Context, ownerID, productID string, quantity int, expectedVersion *int64) (*model.Cart, error) {
	logger.Debug("Upserting cart line in database", map[string]interface{}{
		"owner_id":   ownerID,
		"product_id": productID,
		"quantity":   quantity,
	})

	var cart *model.Cart
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		// Creating or bumping the header is what serializes this owner's writers.
		header := model.CartHeader{OwnerID: ownerID, Version: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"version":    gorm.Expr("carts.version + 1"),
				"updated_at": now,
			}),
		}).Create(&header).Error; err != nil {
			return err
		}

		var committed model.CartHeader
		if err := tx.Where("owner_id = ?", ownerID).First(&committed).Error; err != nil {
			return err
		}
		if expectedVersion != nil && committed.Version-1 != *expectedVersion {
			return ErrVersionConflict
		}

		line := model.CartLine{OwnerID: ownerID, ProductID: productID, Quantity: quantity}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_id"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   gorm.Expr("cart_lines.quantity + excluded.quantity"),
				"updated_at": now,
			}),
		}).Create(&line).Error; err != nil {
			return err
		}

		var err error
		cart, err = loadCart(tx, ownerID)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			logger.Error("Failed to upsert cart line in database", err, map[string]interface{}{
				"owner_id":   ownerID,
				"product_id": productID,
			})
		}
		return nil, err
	}

	logger.Debug("Cart line upserted in database", map[string]interface{}{
		"owner_id":   ownerID,
		"product_id": productID,
		"version":    cart.Version,
	})
	return cart, nil
}

func (r *cartRepository) RemoveLine(ctx context.Context, ownerID, productID string, expectedVersion *int64) (*model.Cart, error) {
	logger.Debug("Removing cart line from database", map[string]interface{}{
		"owner_id":   ownerID,
		"product_id": productID,
	})

	var cart *model.Cart
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := lockHeader(tx, ownerID, expectedVersion)
		if err != nil || !found {
			if err == nil {
				cart = model.EmptyCart(ownerID)
			}
			return err
		}

		result := tx.Where("owner_id = ? AND product_id = ?", ownerID, productID).Delete(&model.CartLine{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			if err := bumpVersion(tx, ownerID); err != nil {
				return err
			}
		}

		cart, err = loadCart(tx, ownerID)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			logger.Error("Failed to remove cart line from database", err, map[string]interface{}{
				"owner_id":   ownerID,
				"product_id": productID,
			})
		}
		return nil, err
	}
	return cart, nil
}

func (r *cartRepository) Clear(ctx context.Context, ownerID string, expectedVersion *int64) (*model.Cart, error) {
	logger.Debug("Clearing cart lines in database", map[string]interface{}{
		"owner_id": ownerID,
	})

	var cart *model.Cart
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		found, err := lockHeader(tx, ownerID, expectedVersion)
		if err != nil || !found {
			if err == nil {
				cart = model.EmptyCart(ownerID)
			}
			return err
		}

		result := tx.Where("owner_id = ?", ownerID).Delete(&model.CartLine{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			if err := bumpVersion(tx, ownerID); err != nil {
				return err
			}
		}

		cart, err = loadCart(tx, ownerID)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			logger.Error("Failed to clear cart in database", err, map[string]interface{}{
				"owner_id": ownerID,
			})
		}
		return nil, err
	}

	logger.Debug("Cart cleared in database", map[string]interface{}{
		"owner_id": ownerID,
		"version":  cart.Version,
	})
	return cart, nil
}

// lockHeader row-locks the owner's header. A missing header means the owner never
// committed a write, which counts as version 0.
func lockHeader(tx *gorm.DB, ownerID string, expectedVersion *int64) (bool, error) {
	var header model.CartHeader
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ?", ownerID).
		First(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if expectedVersion != nil && *expectedVersion != 0 {
			return false, ErrVersionConflict
		}
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if expectedVersion != nil && header.Version != *expectedVersion {
		return true, ErrVersionConflict
	}
	return true, nil
}

func bumpVersion(tx *gorm.DB, ownerID string) error {
	return tx.Model(&model.CartHeader{}).
		Where("owner_id = ?", ownerID).
		UpdateColumns(map[string]interface{}{
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now(),
		}).Error
}

func loadCart(tx *gorm.DB, ownerID string) (*model.Cart, error) {
	cart := model.EmptyCart(ownerID)

	var header model.CartHeader
	err := tx.Where("owner_id = ?", ownerID).First(&header).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return cart, nil
	}
	if err != nil {
		return nil, err
	}
	cart.Version = header.Version

	// Lines of since-deleted products keep their product so count and total agree
	// and the shopper can still see and remove them.
	if err := tx.Where("owner_id = ?", ownerID).
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Order("created_at ASC, id ASC").
		Find(&cart.Lines).Error; err != nil {
		return nil, err
	}
	return cart, nil
}
