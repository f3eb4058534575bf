package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const MaxShortDescriptionLength = 150

// MinProductPrice is the lowest listing price the catalog form accepts.
var MinProductPrice = decimal.NewFromInt(5)

type Product struct {
	ID               string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name             string          `gorm:"not null" json:"name"`
	ShortDescription string          `gorm:"type:varchar(150)" json:"short_description"`
	Price            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	ImageRef         string          `json:"image_ref"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Product) TableName() string {
	return "products"
}
