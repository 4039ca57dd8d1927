package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kaspi-sync/internal/models"
)

// GetProductBySKU retrieves a catalog product by SKU. Returns nil when not
// found.
func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE sku = $1", sku)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByID retrieves a catalog product by ID.
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product not found: %d", id)
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetOrCreateProductBySKU returns the product with the given SKU, creating
// a bare catalog record when the SKU is seen for the first time.
func (s *Store) GetOrCreateProductBySKU(ctx context.Context, sku, name, category string) (*models.Product, error) {
	product, err := s.GetProductBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	if product != nil {
		return product, nil
	}

	product = &models.Product{SKU: sku, Name: name, Category: category}
	query := `
		INSERT INTO products (sku, name, category, price, purchase_price, min_quantity)
		VALUES ($1, $2, $3, 0, 0, 0)
		RETURNING id, price, purchase_price, min_quantity`
	err = s.db.QueryRowxContext(ctx, query, sku, name, category).
		Scan(&product.ID, &product.Price, &product.PurchasePrice, &product.MinQuantity)
	if err != nil {
		return nil, fmt.Errorf("create product %s: %w", sku, err)
	}
	return product, nil
}

// GetOrCreateStock returns the stock record for a product, creating a
// zero-quantity record when absent.
func (s *Store) GetOrCreateStock(ctx context.Context, productID int64) (*models.WarehouseStock, error) {
	var stock models.WarehouseStock
	err := s.db.GetContext(ctx, &stock,
		"SELECT * FROM warehouse_stock WHERE product_id = $1", productID)
	if err == nil {
		return &stock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	query := `
		INSERT INTO warehouse_stock (product_id, quantity, min_quantity)
		VALUES ($1, 0, (SELECT min_quantity FROM products WHERE id = $1))
		RETURNING product_id, quantity, min_quantity, updated_at`
	err = s.db.GetContext(ctx, &stock, query, productID)
	if err != nil {
		return nil, fmt.Errorf("create stock for product %d: %w", productID, err)
	}
	return &stock, nil
}

// AdjustStock applies a signed delta to a product's stock and returns the
// new quantity. The quantity is allowed to go negative.
func (s *Store) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	if _, err := s.GetOrCreateStock(ctx, productID); err != nil {
		return 0, err
	}

	var quantity int
	err := s.db.GetContext(ctx, &quantity, `
		UPDATE warehouse_stock
		SET quantity = quantity + $2, updated_at = NOW()
		WHERE product_id = $1
		RETURNING quantity`, productID, delta)
	if err != nil {
		return 0, fmt.Errorf("adjust stock for product %d: %w", productID, err)
	}
	return quantity, nil
}

// GetStockBySKU returns the stock quantity for the product with the given
// SKU. found is false when the SKU has no stock record.
func (s *Store) GetStockBySKU(ctx context.Context, sku string) (int, bool, error) {
	var quantity int
	err := s.db.GetContext(ctx, &quantity, `
		SELECT ws.quantity FROM warehouse_stock ws
		JOIN products p ON p.id = ws.product_id
		WHERE p.sku = $1`, sku)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return quantity, true, nil
}

// HasOpenSupplyForProduct reports whether an open (status=new) supply item
// already references the product.
func (s *Store) HasOpenSupplyForProduct(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (
			SELECT 1 FROM supply_items si
			JOIN supply_orders so ON so.id = si.supply_id
			WHERE si.product_id = $1 AND so.status = $2
		)`, productID, models.SupplyStatusNew)
	return exists, err
}

// CreateSupplyOrder creates a new supply order
func (s *Store) CreateSupplyOrder(ctx context.Context, supply *models.SupplyOrder) error {
	query := `
		INSERT INTO supply_orders (supplier_id, status, expected_at, is_stock_applied)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return s.db.QueryRowxContext(ctx, query,
		supply.SupplierID, supply.Status, supply.ExpectedAt, supply.IsStockApplied,
	).Scan(&supply.ID, &supply.CreatedAt)
}

// CreateSupplyItem creates a new supply item
func (s *Store) CreateSupplyItem(ctx context.Context, item *models.SupplyItem) error {
	query := `
		INSERT INTO supply_items (supply_id, product_id, quantity, purchase_price)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	return s.db.GetContext(ctx, &item.ID, query,
		item.SupplyID, item.ProductID, item.Quantity, item.PurchasePrice)
}

// ListSupplyItems retrieves the items of one supply order.
func (s *Store) ListSupplyItems(ctx context.Context, supplyID int64) ([]models.SupplyItem, error) {
	var items []models.SupplyItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM supply_items WHERE supply_id = $1 ORDER BY id", supplyID)
	return items, err
}

// MarkSupplyStockApplied flips the idempotency guard after received stock
// has been incremented.
func (s *Store) MarkSupplyStockApplied(ctx context.Context, supplyID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE supply_orders SET is_stock_applied = TRUE WHERE id = $1", supplyID)
	return err
}
