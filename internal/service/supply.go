package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"kaspi-sync/internal/models"
	"kaspi-sync/internal/util"
)

// SupplyStore is the persistence surface for applying received supplies.
type SupplyStore interface {
	ListSupplyItems(ctx context.Context, supplyID int64) ([]models.SupplyItem, error)
	AdjustStock(ctx context.Context, productID int64, delta int) (int, error)
	MarkSupplyStockApplied(ctx context.Context, supplyID int64) error
}

// SupplyService applies received supply orders to warehouse stock.
type SupplyService struct {
	store  SupplyStore
	cache  StockCache
	logger *zap.Logger
}

// NewSupplyService creates a new supply service
func NewSupplyService(store SupplyStore, cache StockCache) *SupplyService {
	return &SupplyService{
		store:  store,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// ApplyReceivedSupply increments stock for every item of a received supply
// order. The is_stock_applied flag makes the increment idempotent against
// repeated status saves: a supply is applied at most once.
func (s *SupplyService) ApplyReceivedSupply(ctx context.Context, supply *models.SupplyOrder) error {
	ctx, span := util.StartSpan(ctx, "SupplyService.ApplyReceivedSupply")
	defer span.End()

	if supply.Status != models.SupplyStatusReceived {
		return nil
	}
	if supply.IsStockApplied {
		return nil
	}

	items, err := s.store.ListSupplyItems(ctx, supply.ID)
	if err != nil {
		return fmt.Errorf("list supply items for %d: %w", supply.ID, err)
	}

	for _, item := range items {
		quantity, err := s.store.AdjustStock(ctx, item.ProductID, item.Quantity)
		if err != nil {
			return fmt.Errorf("apply stock for product %d: %w", item.ProductID, err)
		}
		if s.cache != nil {
			if cacheErr := s.cache.SetStockQuantity(ctx, item.ProductID, quantity); cacheErr != nil {
				s.logger.Warn("Failed to mirror stock quantity to cache",
					zap.Int64("product_id", item.ProductID),
					zap.Error(cacheErr))
			}
		}
	}

	if err := s.store.MarkSupplyStockApplied(ctx, supply.ID); err != nil {
		return fmt.Errorf("mark supply %d applied: %w", supply.ID, err)
	}
	supply.IsStockApplied = true

	s.logger.Info("Received supply applied to stock",
		zap.Int64("supply_id", supply.ID),
		zap.Int("items", len(items)))
	return nil
}
