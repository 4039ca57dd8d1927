package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"kaspi-sync/internal/kaspi"
	"kaspi-sync/internal/models"
	"kaspi-sync/internal/util"
)

// EntriesAPI is the marketplace surface the enricher reads from.
type EntriesAPI interface {
	GetOrderEntries(ctx context.Context, orderID string) ([]kaspi.EntryPayload, error)
	GetEntryProduct(ctx context.Context, entryID string) (*kaspi.ProductPayload, error)
}

// ItemStore is the persistence surface the enricher writes through.
type ItemStore interface {
	GetOrderItemByExternalID(ctx context.Context, orderID int64, externalID string) (*models.OrderItem, error)
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
	UpdateOrderItem(ctx context.Context, item *models.OrderItem) error
}

// Enricher fetches per-entry product detail (SKU, name, category, price)
// for items not yet enriched. Product lookups are the slowest, most
// rate-limited marketplace calls, so an item that already carries SKU and
// name is never fetched again: re-running over an enriched order is a no-op
// after the existence check.
type Enricher struct {
	api     EntriesAPI
	store   ItemStore
	cascade CascadeHooks
	logger  *zap.Logger
}

// NewEnricher creates a new entry/product enricher
func NewEnricher(api EntriesAPI, store ItemStore, cascade CascadeHooks) *Enricher {
	return &Enricher{
		api:     api,
		store:   store,
		cascade: cascade,
		logger:  util.GetLogger(),
	}
}

// EnrichOrder fetches the order's entries and enriches every item that
// still lacks product detail. A missing product response for one entry is
// logged and skipped; the item stays un-enriched and is retried on the next
// pass.
func (e *Enricher) EnrichOrder(ctx context.Context, order *models.Order) error {
	ctx, span := util.StartSpan(ctx, "Enricher.EnrichOrder")
	defer span.End()

	entries, err := e.api.GetOrderEntries(ctx, order.ExternalID)
	if err != nil {
		return fmt.Errorf("fetch entries for order %s: %w", order.ExternalID, err)
	}

	for i := range entries {
		if err := e.enrichEntry(ctx, order, &entries[i]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enricher) enrichEntry(ctx context.Context, order *models.Order, entry *kaspi.EntryPayload) error {
	item, err := e.store.GetOrderItemByExternalID(ctx, order.ID, entry.ID)
	if err != nil {
		return fmt.Errorf("lookup item %s: %w", entry.ID, err)
	}

	created := false
	if item == nil {
		item = &models.OrderItem{
			OrderID:    order.ID,
			ExternalID: entry.ID,
			Quantity:   quantityOrOne(entry.Attributes.Quantity),
			RawData:    entry.Raw,
		}
		if err := e.store.CreateOrderItem(ctx, item); err != nil {
			return fmt.Errorf("create item %s: %w", entry.ID, err)
		}
		created = true
	}

	if !created && item.IsEnriched() {
		util.EnrichmentSkippedTotal.Inc()
		return nil
	}

	product, err := e.api.GetEntryProduct(ctx, entry.ID)
	if err != nil {
		util.EnrichmentFailuresTotal.Inc()
		e.logger.Warn("Failed to fetch product for entry, will retry next pass",
			zap.String("entry_id", entry.ID),
			zap.String("order", order.Code),
			zap.Error(err))
		return nil
	}
	if product == nil {
		util.EnrichmentFailuresTotal.Inc()
		e.logger.Warn("Empty product for entry",
			zap.String("entry_id", entry.ID),
			zap.String("order", order.Code))
		return nil
	}

	// An item that never carried a SKU has no warehouse identity yet, so
	// its creation effects (stock deduction, reorder check) have not run.
	// That includes items created bare on an earlier pass whose product
	// fetch failed then; the first SKU fill owes them the creation hook.
	firstFill := created || item.SKU == ""

	attrs := product.Attributes
	item.SKU = attrs.Code
	item.Name = attrs.Name
	item.Category = attrs.Category
	item.UnitPrice = attrs.UnitPrice()
	item.TotalPrice = itemTotal(item.UnitPrice, item.Quantity)
	item.RawData = mergeRaw(entry.Raw, product.Raw)

	if err := e.store.UpdateOrderItem(ctx, item); err != nil {
		return fmt.Errorf("update item %s: %w", entry.ID, err)
	}
	util.ItemsEnrichedTotal.Inc()

	if firstFill {
		return e.cascade.OnItemCreated(ctx, order, item)
	}
	return e.cascade.OnItemUpdated(ctx, order, item)
}

// itemTotal is unit price × quantity, null when the unit price is absent.
func itemTotal(unitPrice decimal.NullDecimal, quantity int) decimal.NullDecimal {
	if !unitPrice.Valid {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{
		Valid:   true,
		Decimal: unitPrice.Decimal.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// mergeRaw keeps both the entry and product payloads on the item for replay.
func mergeRaw(entry, product []byte) []byte {
	raw, _ := json.Marshal(map[string]json.RawMessage{
		"entry":   entry,
		"product": product,
	})
	return raw
}
