package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Canonical order statuses
const (
	OrderStatusNew       = "new"
	OrderStatusApproved  = "approved"
	OrderStatusPacking   = "packing"
	OrderStatusShipped   = "shipped"
	OrderStatusInTransit = "in_transit"
	OrderStatusDelivered = "delivered"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusReturned  = "returned"
)

// Order sources
const (
	OrderSourceKaspi = "kaspi"
)

// Supply order statuses
const (
	SupplyStatusNew      = "new"
	SupplyStatusOrdered  = "ordered"
	SupplyStatusShipped  = "shipped"
	SupplyStatusReceived = "received"
)

// Finance event types
const (
	FinanceEventInflow  = "in"
	FinanceEventOutflow = "out"
)

// Order represents one marketplace purchase. The external ID is the
// marketplace-assigned identifier and is the upsert key: an order is created
// on first sync observation and overwritten on every later pass. Orders are
// never deleted.
type Order struct {
	ID                int64           `db:"id" json:"id"`
	ExternalID        string          `db:"external_id" json:"external_id"`
	Source            string          `db:"source" json:"source"`
	Code              string          `db:"code" json:"code"`
	Status            string          `db:"status" json:"status"`
	MarketplaceStatus string          `db:"marketplace_status" json:"marketplace_status"`
	MarketplaceState  string          `db:"marketplace_state" json:"marketplace_state"`
	TotalPrice        decimal.Decimal `db:"total_price" json:"total_price"`
	DeliveryCost      decimal.Decimal `db:"delivery_cost" json:"delivery_cost"`
	PaymentMode       string          `db:"payment_mode" json:"payment_mode,omitempty"`
	DeliveryMode      string          `db:"delivery_mode" json:"delivery_mode,omitempty"`
	IsExpress         bool            `db:"is_express" json:"is_express"`
	IsPreorder        bool            `db:"is_preorder" json:"is_preorder"`
	SignatureRequired bool            `db:"signature_required" json:"signature_required"`
	CreatedAtSource   *time.Time      `db:"created_at_source" json:"created_at_source,omitempty"`
	ApprovedAtSource  *time.Time      `db:"approved_at_source" json:"approved_at_source,omitempty"`
	PlannedDeliveryAt *time.Time      `db:"planned_delivery_at" json:"planned_delivery_at,omitempty"`
	ShippedAt         *time.Time      `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt       *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
	RawData           []byte          `db:"raw_data" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// IsTerminal reports whether no further status transition is expected.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusReturned:
		return true
	}
	return false
}

// OrderItem represents one line entry of an order. (order_id, external_id)
// is unique. An item counts as enriched once both SKU and name are set;
// enrichment never re-fetches product data for an enriched item.
type OrderItem struct {
	ID            int64               `db:"id" json:"id"`
	OrderID       int64               `db:"order_id" json:"order_id"`
	ExternalID    string              `db:"external_id" json:"external_id"`
	SKU           string              `db:"sku" json:"sku,omitempty"`
	Name          string              `db:"name" json:"name,omitempty"`
	Category      string              `db:"category" json:"category,omitempty"`
	Quantity      int                 `db:"quantity" json:"quantity"`
	UnitPrice     decimal.NullDecimal `db:"unit_price" json:"unit_price,omitempty"`
	TotalPrice    decimal.NullDecimal `db:"total_price" json:"total_price,omitempty"`
	PurchasePrice decimal.Decimal     `db:"purchase_price" json:"purchase_price"`
	ProductID     *int64              `db:"product_id" json:"product_id,omitempty"`
	RawData       []byte              `db:"raw_data" json:"-"`
}

// IsEnriched reports whether product detail has already been fetched.
func (i *OrderItem) IsEnriched() bool {
	return i.SKU != "" && i.Name != ""
}

// OrderStatusHistory is an append-only log of canonical status changes.
// A row is written only when the resolved status differs from the most
// recent entry.
type OrderStatusHistory struct {
	ID        int64     `db:"id" json:"id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Status    string    `db:"status" json:"status"`
	Source    string    `db:"source" json:"source"`
	ChangedAt time.Time `db:"changed_at" json:"changed_at"`
}

// CustomerSnapshot is a denormalized copy of customer data as observed at
// the latest sync. Overwritten on every pass, not versioned.
type CustomerSnapshot struct {
	ID         int64  `db:"id" json:"id"`
	OrderID    int64  `db:"order_id" json:"order_id"`
	ExternalID string `db:"external_id" json:"external_id"`
	FirstName  string `db:"first_name" json:"first_name"`
	LastName   string `db:"last_name" json:"last_name,omitempty"`
	Phone      string `db:"phone" json:"phone"`
	RawData    []byte `db:"raw_data" json:"-"`
}

// DeliverySnapshot is a denormalized copy of delivery data as observed at
// the latest sync.
type DeliverySnapshot struct {
	ID          int64    `db:"id" json:"id"`
	OrderID     int64    `db:"order_id" json:"order_id"`
	City        string   `db:"city" json:"city,omitempty"`
	Address     string   `db:"address" json:"address,omitempty"`
	Latitude    *float64 `db:"latitude" json:"latitude,omitempty"`
	Longitude   *float64 `db:"longitude" json:"longitude,omitempty"`
	PickupPoint string   `db:"pickup_point" json:"pickup_point,omitempty"`
	RawData     []byte   `db:"raw_data" json:"-"`
}

// OrderFinanceSnapshot is the derived financial summary for one order.
// It is always recomputed in full from the order's current item set, never
// incrementally patched.
type OrderFinanceSnapshot struct {
	ID             int64           `db:"id" json:"id"`
	OrderID        int64           `db:"order_id" json:"order_id"`
	PurchaseCost   decimal.Decimal `db:"purchase_cost" json:"purchase_cost"`
	MarketplaceFee decimal.Decimal `db:"marketplace_fee" json:"marketplace_fee"`
	FactoringFee   decimal.Decimal `db:"factoring_fee" json:"factoring_fee"`
	DeliveryCost   decimal.Decimal `db:"delivery_cost" json:"delivery_cost"`
	GrossProfit    decimal.Decimal `db:"gross_profit" json:"gross_profit"`
	NetProfit      decimal.Decimal `db:"net_profit" json:"net_profit"`
	Margin         decimal.Decimal `db:"margin" json:"margin"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// FinanceEvent is a planned cash movement, optionally linked to an order.
// Created once per (order, event_type) and never regenerated, even if the
// order total later changes.
type FinanceEvent struct {
	ID          int64           `db:"id" json:"id"`
	OrderID     *int64          `db:"order_id" json:"order_id,omitempty"`
	EventType   string          `db:"event_type" json:"event_type"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	PlannedAt   time.Time       `db:"planned_at" json:"planned_at"`
	ActualAt    *time.Time      `db:"actual_at" json:"actual_at,omitempty"`
	Description string          `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Product is a catalog product, matched to order items by SKU.
type Product struct {
	ID            int64           `db:"id" json:"id"`
	SKU           string          `db:"sku" json:"sku"`
	Name          string          `db:"name" json:"name"`
	Category      string          `db:"category" json:"category,omitempty"`
	Price         decimal.Decimal `db:"price" json:"price"`
	PurchasePrice decimal.Decimal `db:"purchase_price" json:"purchase_price"`
	MinQuantity   int             `db:"min_quantity" json:"min_quantity"`
	SupplierID    *int64          `db:"supplier_id" json:"supplier_id,omitempty"`
}

// WarehouseStock tracks the on-hand quantity for one product. Quantity may
// go negative: oversell is recorded, not prevented, so order ingestion never
// blocks on stock checks.
type WarehouseStock struct {
	ProductID   int64     `db:"product_id" json:"product_id"`
	Quantity    int       `db:"quantity" json:"quantity"`
	MinQuantity int       `db:"min_quantity" json:"min_quantity"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Supplier is a purchase counterparty for supply orders.
type Supplier struct {
	ID      int64  `db:"id" json:"id"`
	Name    string `db:"name" json:"name"`
	Contact string `db:"contact" json:"contact,omitempty"`
}

// SupplyOrder is a purchase order to a supplier. IsStockApplied guards the
// stock increment so repeated status saves stay idempotent.
type SupplyOrder struct {
	ID             int64      `db:"id" json:"id"`
	SupplierID     *int64     `db:"supplier_id" json:"supplier_id,omitempty"`
	Status         string     `db:"status" json:"status"`
	ExpectedAt     *time.Time `db:"expected_at" json:"expected_at,omitempty"`
	IsStockApplied bool       `db:"is_stock_applied" json:"is_stock_applied"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// SupplyItem is one line of a supply order.
type SupplyItem struct {
	ID            int64           `db:"id" json:"id"`
	SupplyID      int64           `db:"supply_id" json:"supply_id"`
	ProductID     int64           `db:"product_id" json:"product_id"`
	Quantity      int             `db:"quantity" json:"quantity"`
	PurchasePrice decimal.Decimal `db:"purchase_price" json:"purchase_price"`
}

// IntegrationSyncState is the sole persisted checkpoint driving delta-sync
// windowing, one row per integration. LastSuccessSync advances only when a
// full window completes.
type IntegrationSyncState struct {
	Integration     string     `db:"integration" json:"integration"`
	LastSuccessSync *time.Time `db:"last_success_sync" json:"last_success_sync,omitempty"`
	LastAttempt     time.Time  `db:"last_attempt" json:"last_attempt"`
	LastError       string     `db:"last_error" json:"last_error,omitempty"`
}
