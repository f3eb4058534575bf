package model

import "time"

type ConfirmationStatus string

const (
	ConfirmationPending ConfirmationStatus = "PENDING"
	ConfirmationCleared ConfirmationStatus = "CLEARED"
)

// CheckoutConfirmation records one payment confirmation token and whether the
// owner's cart has been cleared for it.
type CheckoutConfirmation struct {
	Token     string             `gorm:"primaryKey;type:varchar(255)" json:"token"`
	OwnerID   string             `gorm:"type:varchar(64);not null;index" json:"owner_id"`
	Status    ConfirmationStatus `gorm:"type:varchar(16);not null;default:'PENDING'" json:"status"`
	Attempts  int                `gorm:"not null;default:0" json:"attempts"`
	ClearedAt *time.Time         `json:"cleared_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (CheckoutConfirmation) TableName() string {
	return "checkout_confirmations"
}
