package domain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

type CreateItemRequest struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	StockOnHand decimal.Decimal `json:"stock_on_hand"`
	MinStock    decimal.Decimal `json:"min_stock"`
}

type Service interface {
	Create(ctx context.Context, req CreateItemRequest) (Item, error)
	GetByID(ctx context.Context, id string) (Item, error)
	List(ctx context.Context) ([]Item, error)
	// Deduct adds delta (negative to consume) to the stock on hand.
	Deduct(ctx context.Context, itemID string, delta decimal.Decimal) (Item, error)
	Restock(ctx context.Context, itemID string, quantity decimal.Decimal) (Item, error)
	LowStockItems(ctx context.Context) ([]Item, error)
}

var (
	ErrInvalidItemID     = errors.New("invalid_item_id")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidQuantity   = errors.New("invalid_quantity")
	ErrItemNotFound      = errors.New("inventory_item_not_found")
	ErrItemAlreadyExists = errors.New("inventory_item_already_exists")
	ErrInsufficientStock = errors.New("insufficient_stock")
)
