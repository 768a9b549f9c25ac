package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/vetbill/internal/inventory/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO inventory_items (id, sku, name, stock_on_hand, min_stock, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.SKU,
		item.Name,
		item.StockOnHand,
		item.MinStock,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, sku, name, stock_on_hand, min_stock, created_at, updated_at
		 FROM inventory_items WHERE id = ?`,
		id,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, sku, name, stock_on_hand, min_stock, created_at, updated_at
		 FROM inventory_items ORDER BY name ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListLowStock(ctx context.Context, db *gorm.DB) ([]domain.Item, error) {
	var items []domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, sku, name, stock_on_hand, min_stock, created_at, updated_at
		 FROM inventory_items WHERE stock_on_hand <= min_stock ORDER BY name ASC, id ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Adjust(ctx context.Context, db *gorm.DB, id string, delta decimal.Decimal, now time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE inventory_items
		 SET stock_on_hand = stock_on_hand + ?, updated_at = ?
		 WHERE id = ? AND stock_on_hand + ? >= 0`,
		delta,
		now,
		id,
		delta,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
