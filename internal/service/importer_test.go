package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kaspi-sync/internal/kaspi"
	"kaspi-sync/internal/models"
)

// stubOrderWriter records every importer write in memory.
type stubOrderWriter struct {
	nextID       int64
	orders       map[string]*models.Order
	latestStatus map[int64]string
	history      []models.OrderStatusHistory
	customers    []models.CustomerSnapshot
	deliveries   []models.DeliverySnapshot
	items        []models.OrderItem
	deletedFor   []int64
}

func newStubOrderWriter() *stubOrderWriter {
	return &stubOrderWriter{
		orders:       map[string]*models.Order{},
		latestStatus: map[int64]string{},
	}
}

func (s *stubOrderWriter) UpsertOrder(ctx context.Context, order *models.Order) (bool, error) {
	if existing, ok := s.orders[order.ExternalID]; ok {
		order.ID = existing.ID
		clone := *order
		s.orders[order.ExternalID] = &clone
		return false, nil
	}
	s.nextID++
	order.ID = s.nextID
	clone := *order
	s.orders[order.ExternalID] = &clone
	return true, nil
}

func (s *stubOrderWriter) LatestOrderStatus(ctx context.Context, orderID int64) (string, error) {
	return s.latestStatus[orderID], nil
}

func (s *stubOrderWriter) AppendStatusHistory(ctx context.Context, h *models.OrderStatusHistory) error {
	s.history = append(s.history, *h)
	s.latestStatus[h.OrderID] = h.Status
	return nil
}

func (s *stubOrderWriter) UpsertCustomerSnapshot(ctx context.Context, snap *models.CustomerSnapshot) error {
	s.customers = append(s.customers, *snap)
	return nil
}

func (s *stubOrderWriter) UpsertDeliverySnapshot(ctx context.Context, snap *models.DeliverySnapshot) error {
	s.deliveries = append(s.deliveries, *snap)
	return nil
}

func (s *stubOrderWriter) DeleteOrderItems(ctx context.Context, orderID int64) error {
	s.deletedFor = append(s.deletedFor, orderID)
	return nil
}

func (s *stubOrderWriter) CreateOrderItem(ctx context.Context, item *models.OrderItem) error {
	s.items = append(s.items, *item)
	return nil
}

// recordingHooks counts cascade invocations.
type recordingHooks struct {
	orderCreated int
	orderUpdated int
	itemCreated  int
	itemUpdated  int
}

func (r *recordingHooks) OnOrderCreated(ctx context.Context, order *models.Order) error {
	r.orderCreated++
	return nil
}

func (r *recordingHooks) OnOrderUpdated(ctx context.Context, order *models.Order) error {
	r.orderUpdated++
	return nil
}

func (r *recordingHooks) OnItemCreated(ctx context.Context, order *models.Order, item *models.OrderItem) error {
	r.itemCreated++
	return nil
}

func (r *recordingHooks) OnItemUpdated(ctx context.Context, order *models.Order, item *models.OrderItem) error {
	r.itemUpdated++
	return nil
}

func newTestImporter(w *stubOrderWriter, h *recordingHooks) *Importer {
	return &Importer{
		store:   w,
		cascade: h,
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC) },
	}
}

func completedPayload() *kaspi.OrderPayload {
	creation := int64(1700000000000)
	return &kaspi.OrderPayload{
		ID: "ord-100",
		Attributes: kaspi.OrderAttributes{
			Code:         "400123",
			Status:       kaspi.StatusCompleted,
			State:        kaspi.StateArchive,
			TotalPrice:   decimal.NewFromInt(10000),
			CreationDate: &creation,
			Customer: &kaspi.CustomerAttributes{
				ID:        "cust-1",
				FirstName: "Aigerim",
				CellPhone: "7700…",
			},
		},
		Raw: []byte(`{"id":"ord-100"}`),
	}
}

func TestImportOrderCreatesAndCascades(t *testing.T) {
	w := newStubOrderWriter()
	h := &recordingHooks{}
	im := newTestImporter(w, h)

	order, created, err := im.ImportOrder(context.Background(), completedPayload())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.Equal(t, kaspi.StatusCompleted, order.MarketplaceStatus)
	assert.Equal(t, models.OrderSourceKaspi, order.Source)
	require.NotNil(t, order.CreatedAtSource)
	assert.Equal(t, int64(1700000000000), order.CreatedAtSource.UnixMilli())

	assert.Equal(t, 1, h.orderCreated)
	assert.Equal(t, 0, h.orderUpdated)

	require.Len(t, w.history, 1)
	assert.Equal(t, models.OrderStatusCompleted, w.history[0].Status)

	require.Len(t, w.customers, 1)
	assert.Equal(t, "cust-1", w.customers[0].ExternalID)
	assert.Empty(t, w.deliveries, "payload had no origin address")
}

func TestImportOrderTwiceIsIdempotent(t *testing.T) {
	w := newStubOrderWriter()
	h := &recordingHooks{}
	im := newTestImporter(w, h)

	_, created, err := im.ImportOrder(context.Background(), completedPayload())
	require.NoError(t, err)
	assert.True(t, created)

	order, created, err := im.ImportOrder(context.Background(), completedPayload())
	require.NoError(t, err)
	assert.False(t, created)

	assert.Len(t, w.orders, 1)
	assert.Equal(t, w.orders["ord-100"].ID, order.ID)
	assert.Equal(t, 1, h.orderCreated)
	assert.Equal(t, 1, h.orderUpdated)

	// Status unchanged between passes: exactly one history row.
	assert.Len(t, w.history, 1)
}

func TestImportOrderAppendsHistoryOnStatusChange(t *testing.T) {
	w := newStubOrderWriter()
	h := &recordingHooks{}
	im := newTestImporter(w, h)

	payload := completedPayload()
	payload.Attributes.State = "KASPI_DELIVERY"
	payload.Attributes.Status = kaspi.StatusApprovedByBank

	_, _, err := im.ImportOrder(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, w.history, 1)
	assert.Equal(t, models.OrderStatusNew, w.history[0].Status)

	// Same order later observed as archived/completed.
	payload = completedPayload()
	_, _, err = im.ImportOrder(context.Background(), payload)
	require.NoError(t, err)
	require.Len(t, w.history, 2)
	assert.Equal(t, models.OrderStatusCompleted, w.history[1].Status)
}

func TestImportOrderDefaultsEmptyRawFields(t *testing.T) {
	w := newStubOrderWriter()
	h := &recordingHooks{}
	im := newTestImporter(w, h)

	payload := &kaspi.OrderPayload{ID: "ord-bare"}
	order, _, err := im.ImportOrder(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, "unknown", order.MarketplaceStatus)
	assert.Equal(t, "unknown", order.MarketplaceState)
	assert.Nil(t, order.CreatedAtSource)
	assert.Empty(t, w.customers)
	assert.Empty(t, w.deliveries)
}

func TestImportOrderWithInlineEntries(t *testing.T) {
	w := newStubOrderWriter()
	h := &recordingHooks{}
	im := newTestImporter(w, h)

	payload := completedPayload()
	payload.Attributes.Entries = []kaspi.EntryPayload{
		{ID: "ent-1", Attributes: kaspi.EntryAttributes{Quantity: 1}},
	}

	order, _, err := im.ImportOrder(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, []int64{order.ID}, w.deletedFor, "inline entries replace the item set")
	require.Len(t, w.items, 1)
	assert.Equal(t, "ent-1", w.items[0].ExternalID)
	assert.Equal(t, 1, h.itemCreated)
}

func TestImportItemsReplacesExistingSet(t *testing.T) {
	w := newStubOrderWriter()
	h := &recordingHooks{}
	im := newTestImporter(w, h)

	order := &models.Order{ID: 5, ExternalID: "ord-5"}
	entries := []kaspi.EntryPayload{
		{ID: "ent-1", Attributes: kaspi.EntryAttributes{Quantity: 2}},
		{ID: "ent-2", Attributes: kaspi.EntryAttributes{Quantity: 0}},
	}
	entries[0].Attributes.Offer.Code = "SKU-1"
	entries[0].Attributes.Offer.Name = "Widget"

	require.NoError(t, im.ImportItems(context.Background(), order, entries))

	assert.Equal(t, []int64{5}, w.deletedFor)
	require.Len(t, w.items, 2)
	assert.Equal(t, "SKU-1", w.items[0].SKU)
	assert.Equal(t, 2, w.items[0].Quantity)
	assert.Equal(t, 1, w.items[1].Quantity, "zero quantity coerced to one")
	assert.Equal(t, 2, h.itemCreated)
}
