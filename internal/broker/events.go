package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"kaspi-sync/internal/models"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderImported publishes OrderImported event
func (ep *EventPublisher) PublishOrderImported(ctx context.Context, event *models.OrderImportedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeOrderImported)
	key := fmt.Sprintf("order-%s", event.ExternalID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockLow publishes StockLow event
func (ep *EventPublisher) PublishStockLow(ctx context.Context, event *models.StockLowEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeStockLow)
	key := fmt.Sprintf("product-%d", event.ProductID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSupplyCreated publishes SupplyCreated event
func (ep *EventPublisher) PublishSupplyCreated(ctx context.Context, event *models.SupplyCreatedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeSupplyCreated)
	key := fmt.Sprintf("supply-%d", event.SupplyID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncCompleted publishes SyncCompleted event
func (ep *EventPublisher) PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error {
	event.BaseEvent = newBaseEvent(models.EventTypeSyncCompleted)
	key := fmt.Sprintf("sync-%s", event.Tier)
	return ep.producer.PublishEvent(ctx, key, event)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
