package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item is a stocked product or consumable that invoice lines can reference.
type Item struct {
	ID          string          `gorm:"primaryKey;type:text" json:"id"`
	SKU         *string         `gorm:"type:text;uniqueIndex:ux_inventory_items_sku" json:"sku,omitempty"`
	Name        string          `gorm:"type:text;not null" json:"name"`
	StockOnHand decimal.Decimal `gorm:"type:numeric(14,3);not null;default:0" json:"stock_on_hand"`
	MinStock    decimal.Decimal `gorm:"type:numeric(14,3);not null;default:0" json:"min_stock"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (Item) TableName() string { return "inventory_items" }

// IsLow reports whether the item is at or below its reorder threshold.
func (i Item) IsLow() bool {
	return i.StockOnHand.LessThanOrEqual(i.MinStock)
}
