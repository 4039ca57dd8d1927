package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kaspi-sync/internal/kaspi"
	"kaspi-sync/internal/models"
	"kaspi-sync/internal/util"
)

// OrderWriter is the persistence surface the importer writes through.
type OrderWriter interface {
	UpsertOrder(ctx context.Context, order *models.Order) (bool, error)
	LatestOrderStatus(ctx context.Context, orderID int64) (string, error)
	AppendStatusHistory(ctx context.Context, h *models.OrderStatusHistory) error
	UpsertCustomerSnapshot(ctx context.Context, snap *models.CustomerSnapshot) error
	UpsertDeliverySnapshot(ctx context.Context, snap *models.DeliverySnapshot) error
	DeleteOrderItems(ctx context.Context, orderID int64) error
	CreateOrderItem(ctx context.Context, item *models.OrderItem) error
}

// CascadeHooks are the ordered derived-state recomputations invoked after
// every order or item write.
type CascadeHooks interface {
	OnOrderCreated(ctx context.Context, order *models.Order) error
	OnOrderUpdated(ctx context.Context, order *models.Order) error
	OnItemCreated(ctx context.Context, order *models.Order, item *models.OrderItem) error
	OnItemUpdated(ctx context.Context, order *models.Order, item *models.OrderItem) error
}

// Importer upserts orders and their satellites from raw marketplace
// payloads. Every write is keyed by a natural external identifier, so
// re-importing the same payload is idempotent.
type Importer struct {
	store   OrderWriter
	cascade CascadeHooks
	logger  *zap.Logger
	now     func() time.Time
}

// NewImporter creates a new order importer
func NewImporter(store OrderWriter, cascade CascadeHooks) *Importer {
	return &Importer{
		store:   store,
		cascade: cascade,
		logger:  util.GetLogger(),
		now:     time.Now,
	}
}

// ImportOrder upserts one order from a raw payload, overwriting every mapped
// field, then appends status history (only on change), refreshes the
// customer/delivery snapshots and runs the cascade. Returns the order and
// whether it was created.
func (im *Importer) ImportOrder(ctx context.Context, payload *kaspi.OrderPayload) (*models.Order, bool, error) {
	ctx, span := util.StartSpan(ctx, "Importer.ImportOrder")
	defer span.End()

	attrs := payload.Attributes

	order := &models.Order{
		ExternalID:        payload.ID,
		Source:            models.OrderSourceKaspi,
		Code:              attrs.Code,
		Status:            kaspi.ResolveStatus(attrs),
		MarketplaceStatus: orUnknown(attrs.Status),
		MarketplaceState:  orUnknown(attrs.State),
		TotalPrice:        attrs.TotalPrice,
		DeliveryCost:      attrs.DeliveryCost,
		PaymentMode:       attrs.PaymentMode,
		DeliveryMode:      attrs.DeliveryMode,
		IsPreorder:        attrs.PreOrder,
		SignatureRequired: attrs.SignatureRequired,
		CreatedAtSource:   kaspi.MillisToTime(attrs.CreationDate),
		ApprovedAtSource:  kaspi.MillisToTime(attrs.ApprovedByBankDate),
		PlannedDeliveryAt: kaspi.MillisToTime(attrs.PlannedDeliveryDate),
		RawData:           payload.Raw,
	}
	if attrs.KaspiDelivery != nil {
		order.IsExpress = attrs.KaspiDelivery.Express
	}

	created, err := im.store.UpsertOrder(ctx, order)
	if err != nil {
		util.OrdersImportedTotal.WithLabelValues("error").Inc()
		return nil, false, fmt.Errorf("upsert order %s: %w", payload.ID, err)
	}

	if err := im.syncStatusHistory(ctx, order); err != nil {
		return nil, false, err
	}
	if err := im.syncCustomer(ctx, order, attrs.Customer); err != nil {
		return nil, false, err
	}
	if err := im.syncDelivery(ctx, order, attrs.OriginAddress); err != nil {
		return nil, false, err
	}

	// Some payloads carry the full entry set inline; take it as
	// authoritative and skip the separate entries fetch for those items.
	if len(attrs.Entries) > 0 {
		if err := im.ImportItems(ctx, order, attrs.Entries); err != nil {
			return nil, false, err
		}
	}

	if created {
		err = im.cascade.OnOrderCreated(ctx, order)
	} else {
		err = im.cascade.OnOrderUpdated(ctx, order)
	}
	if err != nil {
		return nil, false, fmt.Errorf("cascade for order %s: %w", payload.ID, err)
	}

	util.OrdersImportedTotal.WithLabelValues("ok").Inc()
	im.logger.Debug("Order imported",
		zap.String("external_id", order.ExternalID),
		zap.String("code", order.Code),
		zap.String("status", order.Status),
		zap.Bool("created", created))

	return order, created, nil
}

// ImportItems destructively refreshes an order's items from an inline entry
// set. Used only when entries arrive with the order payload, a complete and
// authoritative set.
func (im *Importer) ImportItems(ctx context.Context, order *models.Order, entries []kaspi.EntryPayload) error {
	ctx, span := util.StartSpan(ctx, "Importer.ImportItems")
	defer span.End()

	if err := im.store.DeleteOrderItems(ctx, order.ID); err != nil {
		return fmt.Errorf("delete items for order %d: %w", order.ID, err)
	}

	for i := range entries {
		entry := &entries[i]
		attrs := entry.Attributes

		item := &models.OrderItem{
			OrderID:    order.ID,
			ExternalID: entry.ID,
			SKU:        attrs.Offer.Code,
			Name:       attrs.Offer.Name,
			Category:   attrs.Category.Title,
			Quantity:   quantityOrOne(attrs.Quantity),
			UnitPrice:  attrs.BasePrice,
			TotalPrice: attrs.TotalPrice,
			RawData:    entry.Raw,
		}
		if err := im.store.CreateOrderItem(ctx, item); err != nil {
			return fmt.Errorf("create item %s for order %d: %w", entry.ID, order.ID, err)
		}
		if err := im.cascade.OnItemCreated(ctx, order, item); err != nil {
			return fmt.Errorf("cascade for item %s: %w", entry.ID, err)
		}
	}
	return nil
}

// syncStatusHistory appends a history row only when the resolved status
// differs from the latest recorded one, so repeated syncs with an unchanged
// status never spam the log.
func (im *Importer) syncStatusHistory(ctx context.Context, order *models.Order) error {
	latest, err := im.store.LatestOrderStatus(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("latest status for order %d: %w", order.ID, err)
	}
	if latest == order.Status {
		return nil
	}
	return im.store.AppendStatusHistory(ctx, &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    order.Status,
		Source:    models.OrderSourceKaspi,
		ChangedAt: im.now(),
	})
}

// syncCustomer upserts the customer snapshot; a payload without the nested
// customer object is skipped silently.
func (im *Importer) syncCustomer(ctx context.Context, order *models.Order, customer *kaspi.CustomerAttributes) error {
	if customer == nil {
		return nil
	}
	raw, _ := json.Marshal(customer)
	return im.store.UpsertCustomerSnapshot(ctx, &models.CustomerSnapshot{
		OrderID:    order.ID,
		ExternalID: customer.ID,
		FirstName:  customer.FirstName,
		LastName:   customer.LastName,
		Phone:      customer.CellPhone,
		RawData:    raw,
	})
}

// syncDelivery upserts the delivery snapshot; a payload without the nested
// origin object is skipped silently.
func (im *Importer) syncDelivery(ctx context.Context, order *models.Order, origin *kaspi.OriginAddress) error {
	if origin == nil {
		return nil
	}
	raw, _ := json.Marshal(origin)
	return im.store.UpsertDeliverySnapshot(ctx, &models.DeliverySnapshot{
		OrderID:     order.ID,
		City:        origin.City.Name,
		Address:     origin.Address.FormattedAddress,
		Latitude:    origin.Address.Latitude,
		Longitude:   origin.Address.Longitude,
		PickupPoint: origin.DisplayName,
		RawData:     raw,
	})
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func quantityOrOne(q int) int {
	if q <= 0 {
		return 1
	}
	return q
}
