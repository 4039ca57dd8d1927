package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kaspi-sync/internal/models"
)

// UpsertFinanceSnapshot fully replaces the finance snapshot for an order.
func (s *Store) UpsertFinanceSnapshot(ctx context.Context, snap *models.OrderFinanceSnapshot) error {
	query := `
		INSERT INTO order_finance_snapshots (
			order_id, purchase_cost, marketplace_fee, factoring_fee,
			delivery_cost, gross_profit, net_profit, margin, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (order_id) DO UPDATE SET
			purchase_cost = EXCLUDED.purchase_cost,
			marketplace_fee = EXCLUDED.marketplace_fee,
			factoring_fee = EXCLUDED.factoring_fee,
			delivery_cost = EXCLUDED.delivery_cost,
			gross_profit = EXCLUDED.gross_profit,
			net_profit = EXCLUDED.net_profit,
			margin = EXCLUDED.margin,
			updated_at = NOW()
		RETURNING id, updated_at`
	return s.db.QueryRowxContext(ctx, query,
		snap.OrderID, snap.PurchaseCost, snap.MarketplaceFee, snap.FactoringFee,
		snap.DeliveryCost, snap.GrossProfit, snap.NetProfit, snap.Margin,
	).Scan(&snap.ID, &snap.UpdatedAt)
}

// GetFinanceSnapshot retrieves the finance snapshot of one order. Returns
// nil when the cascade has not produced one yet.
func (s *Store) GetFinanceSnapshot(ctx context.Context, orderID int64) (*models.OrderFinanceSnapshot, error) {
	var snap models.OrderFinanceSnapshot
	err := s.db.GetContext(ctx, &snap,
		"SELECT * FROM order_finance_snapshots WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetOrCreateFinanceEvent creates a finance event keyed by
// (order, event_type) unless one already exists. Events are never updated
// after creation. Returns true when the event was created.
func (s *Store) GetOrCreateFinanceEvent(ctx context.Context, event *models.FinanceEvent) (bool, error) {
	var existing models.FinanceEvent
	err := s.db.GetContext(ctx, &existing, `
		SELECT * FROM finance_events
		WHERE order_id = $1 AND event_type = $2`, event.OrderID, event.EventType)
	if err == nil {
		*event = existing
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	query := `
		INSERT INTO finance_events (order_id, event_type, amount, planned_at, actual_at, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	err = s.db.QueryRowxContext(ctx, query,
		event.OrderID, event.EventType, event.Amount,
		event.PlannedAt, event.ActualAt, event.Description,
	).Scan(&event.ID, &event.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("create finance event: %w", err)
	}
	return true, nil
}

// ListFinanceEventsByOrder retrieves the finance events of one order.
func (s *Store) ListFinanceEventsByOrder(ctx context.Context, orderID int64) ([]models.FinanceEvent, error) {
	var events []models.FinanceEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM finance_events WHERE order_id = $1 ORDER BY id", orderID)
	return events, err
}
