package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, item *Item) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Item, error)
	List(ctx context.Context, db *gorm.DB) ([]Item, error)
	ListLowStock(ctx context.Context, db *gorm.DB) ([]Item, error)
	// Adjust applies delta only when the resulting stock stays non-negative and
	// reports whether a row changed.
	Adjust(ctx context.Context, db *gorm.DB, id string, delta decimal.Decimal, now time.Time) (bool, error)
}
