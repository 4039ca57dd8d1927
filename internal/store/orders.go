package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kaspi-sync/internal/models"
)

// UpsertOrder inserts or overwrites an order keyed by external_id. The
// upsert is an explicit lookup followed by an insert or a full-field update,
// so marketplace state drift always self-corrects and no field is silently
// preserved. Returns true when the order was created.
func (s *Store) UpsertOrder(ctx context.Context, order *models.Order) (bool, error) {
	var existingID int64
	err := s.db.GetContext(ctx, &existingID,
		"SELECT id FROM orders WHERE external_id = $1", order.ExternalID)

	if errors.Is(err, sql.ErrNoRows) {
		query := `
			INSERT INTO orders (
				external_id, source, code, status, marketplace_status, marketplace_state,
				total_price, delivery_cost, payment_mode, delivery_mode,
				is_express, is_preorder, signature_required,
				created_at_source, approved_at_source, planned_delivery_at,
				shipped_at, delivered_at, raw_data
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
			RETURNING id, created_at, updated_at`

		err = s.db.QueryRowxContext(ctx, query,
			order.ExternalID, order.Source, order.Code, order.Status,
			order.MarketplaceStatus, order.MarketplaceState,
			order.TotalPrice, order.DeliveryCost, order.PaymentMode, order.DeliveryMode,
			order.IsExpress, order.IsPreorder, order.SignatureRequired,
			order.CreatedAtSource, order.ApprovedAtSource, order.PlannedDeliveryAt,
			order.ShippedAt, order.DeliveredAt, order.RawData,
		).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return false, fmt.Errorf("insert order %s: %w", order.ExternalID, err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup order %s: %w", order.ExternalID, err)
	}

	query := `
		UPDATE orders SET
			source = $2, code = $3, status = $4,
			marketplace_status = $5, marketplace_state = $6,
			total_price = $7, delivery_cost = $8,
			payment_mode = $9, delivery_mode = $10,
			is_express = $11, is_preorder = $12, signature_required = $13,
			created_at_source = $14, approved_at_source = $15, planned_delivery_at = $16,
			shipped_at = $17, delivered_at = $18, raw_data = $19,
			updated_at = NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`

	err = s.db.QueryRowxContext(ctx, query,
		existingID,
		order.Source, order.Code, order.Status,
		order.MarketplaceStatus, order.MarketplaceState,
		order.TotalPrice, order.DeliveryCost,
		order.PaymentMode, order.DeliveryMode,
		order.IsExpress, order.IsPreorder, order.SignatureRequired,
		order.CreatedAtSource, order.ApprovedAtSource, order.PlannedDeliveryAt,
		order.ShippedAt, order.DeliveredAt, order.RawData,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("update order %s: %w", order.ExternalID, err)
	}
	order.ID = existingID
	return false, nil
}

// GetOrderByExternalID retrieves an order by its marketplace identifier.
// Returns nil when not found.
func (s *Store) GetOrderByExternalID(ctx context.Context, externalID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE external_id = $1", externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LatestOrderStatus returns the most recent status-history entry for an
// order, or "" when no history exists yet.
func (s *Store) LatestOrderStatus(ctx context.Context, orderID int64) (string, error) {
	var status string
	err := s.db.GetContext(ctx, &status,
		`SELECT status FROM order_status_history
		 WHERE order_id = $1 ORDER BY changed_at DESC, id DESC LIMIT 1`, orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// AppendStatusHistory appends one status-history entry. History rows are
// never mutated after insert.
func (s *Store) AppendStatusHistory(ctx context.Context, h *models.OrderStatusHistory) error {
	query := `
		INSERT INTO order_status_history (order_id, status, source, changed_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return s.db.GetContext(ctx, &h.ID, query, h.OrderID, h.Status, h.Source, h.ChangedAt)
}

// ListStatusHistory returns the status history of one order, newest first.
func (s *Store) ListStatusHistory(ctx context.Context, orderID int64) ([]models.OrderStatusHistory, error) {
	var history []models.OrderStatusHistory
	err := s.db.SelectContext(ctx, &history,
		`SELECT * FROM order_status_history
		 WHERE order_id = $1 ORDER BY changed_at DESC, id DESC`, orderID)
	return history, err
}

// UpsertCustomerSnapshot overwrites the customer snapshot for an order.
func (s *Store) UpsertCustomerSnapshot(ctx context.Context, snap *models.CustomerSnapshot) error {
	query := `
		INSERT INTO customer_snapshots (order_id, external_id, first_name, last_name, phone, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (order_id) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			phone = EXCLUDED.phone,
			raw_data = EXCLUDED.raw_data
		RETURNING id`
	return s.db.GetContext(ctx, &snap.ID, query,
		snap.OrderID, snap.ExternalID, snap.FirstName, snap.LastName, snap.Phone, snap.RawData)
}

// UpsertDeliverySnapshot overwrites the delivery snapshot for an order.
func (s *Store) UpsertDeliverySnapshot(ctx context.Context, snap *models.DeliverySnapshot) error {
	query := `
		INSERT INTO delivery_snapshots (order_id, city, address, latitude, longitude, pickup_point, raw_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO UPDATE SET
			city = EXCLUDED.city,
			address = EXCLUDED.address,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			pickup_point = EXCLUDED.pickup_point,
			raw_data = EXCLUDED.raw_data
		RETURNING id`
	return s.db.GetContext(ctx, &snap.ID, query,
		snap.OrderID, snap.City, snap.Address, snap.Latitude, snap.Longitude,
		snap.PickupPoint, snap.RawData)
}

// DeleteOrderItems removes every item of an order before a destructive
// refresh from an inline, authoritative entry set.
func (s *Store) DeleteOrderItems(ctx context.Context, orderID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM order_items WHERE order_id = $1", orderID)
	return err
}

// CreateOrderItem creates a new order item
func (s *Store) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		INSERT INTO order_items (
			order_id, external_id, sku, name, category, quantity,
			unit_price, total_price, purchase_price, product_id, raw_data
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id`
	return s.db.GetContext(ctx, &item.ID, query,
		item.OrderID, item.ExternalID, item.SKU, item.Name, item.Category,
		item.Quantity, item.UnitPrice, item.TotalPrice, item.PurchasePrice,
		item.ProductID, item.RawData)
}

// UpdateOrderItem overwrites the mapped fields of an existing item.
func (s *Store) UpdateOrderItem(ctx context.Context, item *models.OrderItem) error {
	query := `
		UPDATE order_items SET
			sku = $2, name = $3, category = $4, quantity = $5,
			unit_price = $6, total_price = $7, purchase_price = $8,
			product_id = $9, raw_data = $10
		WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.SKU, item.Name, item.Category, item.Quantity,
		item.UnitPrice, item.TotalPrice, item.PurchasePrice,
		item.ProductID, item.RawData)
	return err
}

// GetOrderItemByExternalID retrieves one item by (order, external entry id).
// Returns nil when not found.
func (s *Store) GetOrderItemByExternalID(ctx context.Context, orderID int64, externalID string) (*models.OrderItem, error) {
	var item models.OrderItem
	err := s.db.GetContext(ctx, &item,
		"SELECT * FROM order_items WHERE order_id = $1 AND external_id = $2",
		orderID, externalID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListOrderItems retrieves all items for an order.
func (s *Store) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM order_items WHERE order_id = $1 ORDER BY id", orderID)
	return items, err
}

// SoldQuantityBySKU sums the quantity of matching-SKU order items whose
// order originated after the given instant.
func (s *Store) SoldQuantityBySKU(ctx context.Context, sku string, since time.Time) (int, error) {
	var sold sql.NullInt64
	err := s.db.GetContext(ctx, &sold, `
		SELECT SUM(oi.quantity)
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE oi.sku = $1 AND o.created_at_source >= $2`, sku, since)
	if err != nil {
		return 0, err
	}
	return int(sold.Int64), nil
}
