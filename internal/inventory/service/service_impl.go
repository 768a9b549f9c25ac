package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/vetbill/internal/clock"
	"github.com/smallbiznis/vetbill/internal/inventory/domain"
	"github.com/smallbiznis/vetbill/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("inventory.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateItemRequest) (domain.Item, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Item{}, domain.ErrInvalidName
	}
	if req.StockOnHand.IsNegative() || req.MinStock.IsNegative() {
		return domain.Item{}, domain.ErrInvalidQuantity
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = s.genID.Generate().String()
	}

	now := s.clock.Now()
	item := domain.Item{
		ID:          id,
		Name:        name,
		StockOnHand: req.StockOnHand,
		MinStock:    req.MinStock,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if sku := strings.TrimSpace(req.SKU); sku != "" {
		item.SKU = &sku
	}

	if err := s.repo.Insert(ctx, s.db, &item); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Item{}, domain.ErrItemAlreadyExists
		}
		return domain.Item{}, err
	}
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Item, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Item{}, domain.ErrInvalidItemID
	}
	item, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Item{}, err
	}
	if item == nil {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return *item, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Item, error) {
	return s.repo.List(ctx, s.db)
}

func (s *Service) Deduct(ctx context.Context, itemID string, delta decimal.Decimal) (domain.Item, error) {
	itemID = strings.TrimSpace(itemID)
	if itemID == "" {
		return domain.Item{}, domain.ErrInvalidItemID
	}
	if delta.IsZero() {
		return domain.Item{}, domain.ErrInvalidQuantity
	}

	updated, err := s.repo.Adjust(ctx, s.db, itemID, delta, s.clock.Now())
	if err != nil {
		return domain.Item{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	if item == nil {
		return domain.Item{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	if !updated {
		return domain.Item{}, fmt.Errorf("%w: %s has %s, needs %s",
			domain.ErrInsufficientStock, item.Name, item.StockOnHand.String(), delta.Neg().String())
	}

	if item.IsLow() {
		s.log.Info("inventory item at or below minimum stock",
			zap.String("item_id", item.ID),
			zap.String("stock_on_hand", item.StockOnHand.String()),
			zap.String("min_stock", item.MinStock.String()),
		)
	}
	return *item, nil
}

func (s *Service) Restock(ctx context.Context, itemID string, quantity decimal.Decimal) (domain.Item, error) {
	if !quantity.IsPositive() {
		return domain.Item{}, domain.ErrInvalidQuantity
	}
	return s.Deduct(ctx, itemID, quantity)
}

func (s *Service) LowStockItems(ctx context.Context) ([]domain.Item, error) {
	return s.repo.ListLowStock(ctx, s.db)
}
