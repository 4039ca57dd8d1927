package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kaspi-sync/internal/models"
	"kaspi-sync/internal/util"
)

// StockStore is the warehouse surface the cascade writes through.
type StockStore interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetOrCreateProductBySKU(ctx context.Context, sku, name, category string) (*models.Product, error)
	GetOrCreateStock(ctx context.Context, productID int64) (*models.WarehouseStock, error)
	AdjustStock(ctx context.Context, productID int64, delta int) (int, error)
	HasOpenSupplyForProduct(ctx context.Context, productID int64) (bool, error)
	CreateSupplyOrder(ctx context.Context, supply *models.SupplyOrder) error
	CreateSupplyItem(ctx context.Context, item *models.SupplyItem) error
}

// FinanceStore is the finance surface the cascade writes through.
type FinanceStore interface {
	ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	UpsertFinanceSnapshot(ctx context.Context, snap *models.OrderFinanceSnapshot) error
	GetOrCreateFinanceEvent(ctx context.Context, event *models.FinanceEvent) (bool, error)
}

// EventPublisher publishes domain events after cascade effects. Best-effort:
// publish failures are logged, never propagated.
type EventPublisher interface {
	PublishOrderImported(ctx context.Context, event *models.OrderImportedEvent) error
	PublishStockLow(ctx context.Context, event *models.StockLowEvent) error
	PublishSupplyCreated(ctx context.Context, event *models.SupplyCreatedEvent) error
}

// StockCache mirrors stock quantities for fast dashboard reads. Best-effort.
type StockCache interface {
	SetStockQuantity(ctx context.Context, productID int64, quantity int) error
}

// Cascade recomputes derived state whenever an order or item is written.
// Hooks run synchronously, inline with the triggering write, in a fixed
// order; there is no ambient registration.
type Cascade struct {
	stock     StockStore
	finance   FinanceStore
	publisher EventPublisher
	cache     StockCache
	logger    *zap.Logger
	now       func() time.Time
}

// NewCascade creates the derived-state cascade. publisher and cache may be
// nil; their effects are then skipped.
func NewCascade(stock StockStore, finance FinanceStore, publisher EventPublisher, cache StockCache) *Cascade {
	return &Cascade{
		stock:     stock,
		finance:   finance,
		publisher: publisher,
		cache:     cache,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// OnOrderCreated recomputes finance and emits the two cash-flow events for
// a newly observed order.
func (c *Cascade) OnOrderCreated(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "Cascade.OnOrderCreated")
	defer span.End()

	if err := c.recomputeFinance(ctx, order); err != nil {
		return err
	}
	if err := c.createCashflowEvents(ctx, order); err != nil {
		return err
	}
	c.publishOrderImported(ctx, order, true)
	return nil
}

// OnOrderUpdated recomputes finance only.
func (c *Cascade) OnOrderUpdated(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "Cascade.OnOrderUpdated")
	defer span.End()

	if err := c.recomputeFinance(ctx, order); err != nil {
		return err
	}
	c.publishOrderImported(ctx, order, false)
	return nil
}

// OnItemCreated deducts stock, checks the reorder threshold and recomputes
// finance, in that order.
func (c *Cascade) OnItemCreated(ctx context.Context, order *models.Order, item *models.OrderItem) error {
	ctx, span := util.StartSpan(ctx, "Cascade.OnItemCreated")
	defer span.End()

	if err := c.deductStock(ctx, item); err != nil {
		return err
	}
	return c.recomputeFinance(ctx, order)
}

// OnItemUpdated recomputes finance only.
func (c *Cascade) OnItemUpdated(ctx context.Context, order *models.Order, item *models.OrderItem) error {
	ctx, span := util.StartSpan(ctx, "Cascade.OnItemUpdated")
	defer span.End()

	return c.recomputeFinance(ctx, order)
}

func (c *Cascade) recomputeFinance(ctx context.Context, order *models.Order) error {
	items, err := c.finance.ListOrderItems(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("list items for order %d: %w", order.ID, err)
	}

	snap := CalculateOrderFinance(order, items)
	if err := c.finance.UpsertFinanceSnapshot(ctx, &snap); err != nil {
		return fmt.Errorf("upsert finance snapshot for order %d: %w", order.ID, err)
	}

	util.FinanceRecomputesTotal.Inc()
	return nil
}

// createCashflowEvents emits the planned inflow (three business days out)
// and the immediate factoring outflow. Both are keyed by (order, type) and
// stay frozen afterwards even if the order total changes.
func (c *Cascade) createCashflowEvents(ctx context.Context, order *models.Order) error {
	now := c.now()

	inflow := &models.FinanceEvent{
		OrderID:     &order.ID,
		EventType:   models.FinanceEventInflow,
		Amount:      order.TotalPrice,
		PlannedAt:   AddBusinessDays(now, 3),
		Description: fmt.Sprintf("Payment for order %s", order.Code),
	}
	if _, err := c.finance.GetOrCreateFinanceEvent(ctx, inflow); err != nil {
		return fmt.Errorf("create inflow event for order %d: %w", order.ID, err)
	}

	outflow := &models.FinanceEvent{
		OrderID:     &order.ID,
		EventType:   models.FinanceEventOutflow,
		Amount:      FactoringFee(order.TotalPrice),
		PlannedAt:   now,
		Description: fmt.Sprintf("Factoring fee for order %s", order.Code),
	}
	if _, err := c.finance.GetOrCreateFinanceEvent(ctx, outflow); err != nil {
		return fmt.Errorf("create outflow event for order %d: %w", order.ID, err)
	}

	return nil
}

// deductStock decrements warehouse stock for the item's product and runs
// the reorder check. Items without a product link or SKU carry no warehouse
// identity yet and are skipped; they are revisited once enrichment fills
// the SKU in.
func (c *Cascade) deductStock(ctx context.Context, item *models.OrderItem) error {
	product, err := c.resolveProduct(ctx, item)
	if err != nil {
		return err
	}
	if product == nil {
		return nil
	}

	quantity, err := c.stock.AdjustStock(ctx, product.ID, -item.Quantity)
	if err != nil {
		return err
	}
	util.StockDeductionsTotal.Inc()

	c.mirrorStock(ctx, product.ID, quantity)

	return c.checkReorder(ctx, product, quantity)
}

func (c *Cascade) resolveProduct(ctx context.Context, item *models.OrderItem) (*models.Product, error) {
	if item.ProductID != nil {
		return c.stock.GetProductByID(ctx, *item.ProductID)
	}
	if item.SKU == "" {
		return nil, nil
	}
	return c.stock.GetOrCreateProductBySKU(ctx, item.SKU, item.Name, item.Category)
}

// checkReorder auto-creates a supply order when stock dropped below the
// product's minimum and no open supply already covers it.
func (c *Cascade) checkReorder(ctx context.Context, product *models.Product, quantity int) error {
	stock, err := c.stock.GetOrCreateStock(ctx, product.ID)
	if err != nil {
		return err
	}
	minQuantity := stock.MinQuantity

	if quantity >= minQuantity {
		return nil
	}

	c.publishStockLow(ctx, product, quantity, minQuantity)

	covered, err := c.stock.HasOpenSupplyForProduct(ctx, product.ID)
	if err != nil {
		return err
	}
	if covered {
		return nil
	}

	supply := &models.SupplyOrder{
		SupplierID: product.SupplierID,
		Status:     models.SupplyStatusNew,
	}
	if err := c.stock.CreateSupplyOrder(ctx, supply); err != nil {
		return fmt.Errorf("create supply order for product %d: %w", product.ID, err)
	}

	reorderQty := 2 * minQuantity
	if reorderQty < 10 {
		reorderQty = 10
	}
	supplyItem := &models.SupplyItem{
		SupplyID:      supply.ID,
		ProductID:     product.ID,
		Quantity:      reorderQty,
		PurchasePrice: product.PurchasePrice,
	}
	if err := c.stock.CreateSupplyItem(ctx, supplyItem); err != nil {
		return fmt.Errorf("create supply item for product %d: %w", product.ID, err)
	}

	util.SupplyOrdersCreatedTotal.Inc()
	c.logger.Info("Auto-created supply order",
		zap.Int64("product_id", product.ID),
		zap.String("sku", product.SKU),
		zap.Int("quantity", reorderQty))

	c.publishSupplyCreated(ctx, supply, supplyItem)
	return nil
}

func (c *Cascade) mirrorStock(ctx context.Context, productID int64, quantity int) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetStockQuantity(ctx, productID, quantity); err != nil {
		c.logger.Warn("Failed to mirror stock quantity to cache",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
}

func (c *Cascade) publishOrderImported(ctx context.Context, order *models.Order, created bool) {
	if c.publisher == nil {
		return
	}
	err := c.publisher.PublishOrderImported(ctx, &models.OrderImportedEvent{
		OrderID:    order.ID,
		ExternalID: order.ExternalID,
		Code:       order.Code,
		Status:     order.Status,
		TotalPrice: order.TotalPrice,
		Created:    created,
	})
	if err != nil {
		c.logger.Warn("Failed to publish order imported event",
			zap.String("external_id", order.ExternalID),
			zap.Error(err))
	}
}

func (c *Cascade) publishStockLow(ctx context.Context, product *models.Product, quantity, minQuantity int) {
	if c.publisher == nil {
		return
	}
	err := c.publisher.PublishStockLow(ctx, &models.StockLowEvent{
		ProductID:   product.ID,
		SKU:         product.SKU,
		Quantity:    quantity,
		MinQuantity: minQuantity,
	})
	if err != nil {
		c.logger.Warn("Failed to publish stock low event",
			zap.Int64("product_id", product.ID),
			zap.Error(err))
	}
}

func (c *Cascade) publishSupplyCreated(ctx context.Context, supply *models.SupplyOrder, item *models.SupplyItem) {
	if c.publisher == nil {
		return
	}
	err := c.publisher.PublishSupplyCreated(ctx, &models.SupplyCreatedEvent{
		SupplyID:  supply.ID,
		ProductID: item.ProductID,
		Quantity:  item.Quantity,
	})
	if err != nil {
		c.logger.Warn("Failed to publish supply created event",
			zap.Int64("supply_id", supply.ID),
			zap.Error(err))
	}
}

// AddBusinessDays advances t by n weekdays, skipping Saturdays and Sundays.
func AddBusinessDays(t time.Time, n int) time.Time {
	for added := 0; added < n; {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return t
}
