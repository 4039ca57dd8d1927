package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kaspi-sync/internal/models"
)

// fakeStockStore is an in-memory warehouse.
type fakeStockStore struct {
	nextID      int64
	productByID map[int64]*models.Product
	bySKU       map[string]*models.Product
	quantity    map[int64]int
	minQuantity map[int64]int
	openSupply  map[int64]bool
	supplies    []*models.SupplyOrder
	supplyItems []*models.SupplyItem
}

func newFakeStockStore() *fakeStockStore {
	return &fakeStockStore{
		productByID: map[int64]*models.Product{},
		bySKU:       map[string]*models.Product{},
		quantity:    map[int64]int{},
		minQuantity: map[int64]int{},
		openSupply:  map[int64]bool{},
	}
}

func (f *fakeStockStore) addProduct(sku string, minQty, stockQty int) *models.Product {
	f.nextID++
	p := &models.Product{ID: f.nextID, SKU: sku, MinQuantity: minQty, PurchasePrice: decimal.NewFromInt(100)}
	f.productByID[p.ID] = p
	f.bySKU[sku] = p
	f.quantity[p.ID] = stockQty
	f.minQuantity[p.ID] = minQty
	return p
}

func (f *fakeStockStore) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	return f.productByID[id], nil
}

func (f *fakeStockStore) GetOrCreateProductBySKU(ctx context.Context, sku, name, category string) (*models.Product, error) {
	if p, ok := f.bySKU[sku]; ok {
		return p, nil
	}
	p := f.addProduct(sku, 0, 0)
	p.Name = name
	p.Category = category
	return p, nil
}

func (f *fakeStockStore) GetOrCreateStock(ctx context.Context, productID int64) (*models.WarehouseStock, error) {
	return &models.WarehouseStock{
		ProductID:   productID,
		Quantity:    f.quantity[productID],
		MinQuantity: f.minQuantity[productID],
	}, nil
}

func (f *fakeStockStore) AdjustStock(ctx context.Context, productID int64, delta int) (int, error) {
	f.quantity[productID] += delta
	return f.quantity[productID], nil
}

func (f *fakeStockStore) HasOpenSupplyForProduct(ctx context.Context, productID int64) (bool, error) {
	return f.openSupply[productID], nil
}

func (f *fakeStockStore) CreateSupplyOrder(ctx context.Context, supply *models.SupplyOrder) error {
	supply.ID = int64(len(f.supplies) + 1)
	f.supplies = append(f.supplies, supply)
	return nil
}

func (f *fakeStockStore) CreateSupplyItem(ctx context.Context, item *models.SupplyItem) error {
	f.supplyItems = append(f.supplyItems, item)
	return nil
}

// fakeFinanceStore keeps snapshots and (order, type)-keyed events.
type fakeFinanceStore struct {
	items     map[int64][]models.OrderItem
	snapshots map[int64]models.OrderFinanceSnapshot
	events    map[string]*models.FinanceEvent
}

func newFakeFinanceStore() *fakeFinanceStore {
	return &fakeFinanceStore{
		items:     map[int64][]models.OrderItem{},
		snapshots: map[int64]models.OrderFinanceSnapshot{},
		events:    map[string]*models.FinanceEvent{},
	}
}

func (f *fakeFinanceStore) ListOrderItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeFinanceStore) UpsertFinanceSnapshot(ctx context.Context, snap *models.OrderFinanceSnapshot) error {
	f.snapshots[snap.OrderID] = *snap
	return nil
}

func (f *fakeFinanceStore) GetOrCreateFinanceEvent(ctx context.Context, event *models.FinanceEvent) (bool, error) {
	key := fmt.Sprintf("%d:%s", *event.OrderID, event.EventType)
	if existing, ok := f.events[key]; ok {
		*event = *existing
		return false, nil
	}
	event.ID = int64(len(f.events) + 1)
	clone := *event
	f.events[key] = &clone
	return true, nil
}

func newTestCascade(stock *fakeStockStore, finance *fakeFinanceStore, now time.Time) *Cascade {
	return &Cascade{
		stock:   stock,
		finance: finance,
		logger:  zap.NewNop(),
		now:     func() time.Time { return now },
	}
}

func TestOnItemCreatedDeductsStockBelowZero(t *testing.T) {
	stock := newFakeStockStore()
	product := stock.addProduct("SKU-1", 0, 1)
	finance := newFakeFinanceStore()
	c := newTestCascade(stock, finance, time.Now())

	order := &models.Order{ID: 1, TotalPrice: decimal.NewFromInt(5000)}
	item := &models.OrderItem{OrderID: 1, SKU: "SKU-1", Quantity: 3}

	require.NoError(t, c.OnItemCreated(context.Background(), order, item))

	assert.Equal(t, -2, stock.quantity[product.ID], "oversell is recorded, not prevented")
	_, ok := finance.snapshots[1]
	assert.True(t, ok, "finance recomputed after deduction")
}

func TestOnItemCreatedTriggersReorder(t *testing.T) {
	stock := newFakeStockStore()
	product := stock.addProduct("SKU-1", 5, 6)
	finance := newFakeFinanceStore()
	c := newTestCascade(stock, finance, time.Now())

	order := &models.Order{ID: 1, TotalPrice: decimal.NewFromInt(5000)}
	item := &models.OrderItem{OrderID: 1, SKU: "SKU-1", Quantity: 2}

	require.NoError(t, c.OnItemCreated(context.Background(), order, item))

	require.Len(t, stock.supplies, 1)
	assert.Equal(t, models.SupplyStatusNew, stock.supplies[0].Status)
	require.Len(t, stock.supplyItems, 1)
	assert.Equal(t, product.ID, stock.supplyItems[0].ProductID)
	assert.Equal(t, 10, stock.supplyItems[0].Quantity, "2x min is floored at 10")
}

func TestReorderQuantityDoublesLargeMinimum(t *testing.T) {
	stock := newFakeStockStore()
	stock.addProduct("SKU-1", 20, 21)
	finance := newFakeFinanceStore()
	c := newTestCascade(stock, finance, time.Now())

	order := &models.Order{ID: 1, TotalPrice: decimal.NewFromInt(5000)}
	item := &models.OrderItem{OrderID: 1, SKU: "SKU-1", Quantity: 5}

	require.NoError(t, c.OnItemCreated(context.Background(), order, item))

	require.Len(t, stock.supplyItems, 1)
	assert.Equal(t, 40, stock.supplyItems[0].Quantity)
}

func TestReorderSkippedWhenOpenSupplyCovers(t *testing.T) {
	stock := newFakeStockStore()
	product := stock.addProduct("SKU-1", 5, 6)
	stock.openSupply[product.ID] = true
	finance := newFakeFinanceStore()
	c := newTestCascade(stock, finance, time.Now())

	order := &models.Order{ID: 1, TotalPrice: decimal.NewFromInt(5000)}
	item := &models.OrderItem{OrderID: 1, SKU: "SKU-1", Quantity: 2}

	require.NoError(t, c.OnItemCreated(context.Background(), order, item))

	assert.Empty(t, stock.supplies, "an open supply already covers the product")
}

func TestReorderSkippedAboveMinimum(t *testing.T) {
	stock := newFakeStockStore()
	stock.addProduct("SKU-1", 5, 100)
	finance := newFakeFinanceStore()
	c := newTestCascade(stock, finance, time.Now())

	order := &models.Order{ID: 1, TotalPrice: decimal.NewFromInt(5000)}
	item := &models.OrderItem{OrderID: 1, SKU: "SKU-1", Quantity: 2}

	require.NoError(t, c.OnItemCreated(context.Background(), order, item))
	assert.Empty(t, stock.supplies)
}

func TestOnItemCreatedSkipsItemWithoutSKU(t *testing.T) {
	stock := newFakeStockStore()
	finance := newFakeFinanceStore()
	c := newTestCascade(stock, finance, time.Now())

	order := &models.Order{ID: 1, TotalPrice: decimal.NewFromInt(5000)}
	item := &models.OrderItem{OrderID: 1, Quantity: 2}

	require.NoError(t, c.OnItemCreated(context.Background(), order, item))

	assert.Empty(t, stock.quantity, "no warehouse identity, nothing to deduct")
	_, ok := finance.snapshots[1]
	assert.True(t, ok, "finance still recomputed")
}

func TestOnOrderCreatedEmitsCashflowOnce(t *testing.T) {
	stock := newFakeStockStore()
	finance := newFakeFinanceStore()
	now := time.Date(2025, 6, 6, 10, 0, 0, 0, time.UTC) // Friday
	c := newTestCascade(stock, finance, now)

	order := &models.Order{ID: 3, Code: "400123", TotalPrice: decimal.NewFromInt(10000)}

	require.NoError(t, c.OnOrderCreated(context.Background(), order))
	require.Len(t, finance.events, 2)

	inflow := finance.events["3:in"]
	require.NotNil(t, inflow)
	assert.True(t, decimal.NewFromInt(10000).Equal(inflow.Amount))
	// Friday + 3 business days = Wednesday.
	assert.Equal(t, time.Date(2025, 6, 11, 10, 0, 0, 0, time.UTC), inflow.PlannedAt)

	outflow := finance.events["3:out"]
	require.NotNil(t, outflow)
	assert.True(t, decimal.RequireFromString("850").Equal(outflow.Amount))
	assert.Equal(t, now, outflow.PlannedAt)

	// A later re-import with a changed total must not regenerate events.
	order.TotalPrice = decimal.NewFromInt(20000)
	require.NoError(t, c.OnOrderCreated(context.Background(), order))
	require.Len(t, finance.events, 2)
	assert.True(t, decimal.NewFromInt(10000).Equal(finance.events["3:in"].Amount))
}

func TestOnOrderUpdatedRecomputesSnapshotOnly(t *testing.T) {
	stock := newFakeStockStore()
	finance := newFakeFinanceStore()
	finance.items[4] = []models.OrderItem{{Quantity: 1, PurchasePrice: decimal.NewFromInt(500)}}
	c := newTestCascade(stock, finance, time.Now())

	order := &models.Order{ID: 4, TotalPrice: decimal.NewFromInt(2000)}
	require.NoError(t, c.OnOrderUpdated(context.Background(), order))

	snap, ok := finance.snapshots[4]
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(500).Equal(snap.PurchaseCost))
	assert.Empty(t, finance.events, "updates never emit cashflow events")
}

func TestAddBusinessDays(t *testing.T) {
	friday := time.Date(2025, 6, 6, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC), AddBusinessDays(friday, 3))

	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC), AddBusinessDays(monday, 3))

	saturday := time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 11, 9, 0, 0, 0, time.UTC), AddBusinessDays(saturday, 3))
}
