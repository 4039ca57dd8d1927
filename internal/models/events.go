package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderImported = "ORDER_IMPORTED"
	EventTypeStockLow      = "STOCK_LOW"
	EventTypeSupplyCreated = "SUPPLY_CREATED"
	EventTypeSyncCompleted = "SYNC_COMPLETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderImportedEvent published after an order upsert from the marketplace
type OrderImportedEvent struct {
	BaseEvent
	OrderID    int64           `json:"order_id"`
	ExternalID string          `json:"external_id"`
	Code       string          `json:"code"`
	Status     string          `json:"status"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Created    bool            `json:"created"`
}

// StockLowEvent published when a deduction drops stock below its minimum
type StockLowEvent struct {
	BaseEvent
	ProductID   int64  `json:"product_id"`
	SKU         string `json:"sku"`
	Quantity    int    `json:"quantity"`
	MinQuantity int    `json:"min_quantity"`
}

// SupplyCreatedEvent published when a replenishment order is auto-created
type SupplyCreatedEvent struct {
	BaseEvent
	SupplyID  int64 `json:"supply_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// SyncCompletedEvent published after a sync window finishes
type SyncCompletedEvent struct {
	BaseEvent
	Tier     string    `json:"tier"`
	DateFrom time.Time `json:"date_from"`
	DateTo   time.Time `json:"date_to"`
	Imported int       `json:"imported"`
}
