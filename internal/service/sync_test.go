package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kaspi-sync/internal/kaspi"
	"kaspi-sync/internal/models"
)

// fakeOrdersAPI serves one fixed page sequence per window and records the
// requested filter bounds.
type fakeOrdersAPI struct {
	pages   [][]kaspi.OrderPayload
	windows [][2]int64
	calls   int
}

func (f *fakeOrdersAPI) GetOrders(ctx context.Context, fromMs, toMs int64, page, size int) ([]kaspi.OrderPayload, error) {
	if page == 0 {
		f.windows = append(f.windows, [2]int64{fromMs, toMs})
	}
	f.calls++
	if page >= len(f.pages) {
		return nil, nil
	}
	return f.pages[page], nil
}

// fakeSyncState records checkpoint writes.
type fakeSyncState struct {
	state      models.IntegrationSyncState
	successes  []time.Time
	attempts   []string
	successErr error
}

func (f *fakeSyncState) GetSyncState(ctx context.Context, integration string) (*models.IntegrationSyncState, error) {
	clone := f.state
	return &clone, nil
}

func (f *fakeSyncState) MarkSyncSuccess(ctx context.Context, integration string, syncedTo time.Time) error {
	if f.successErr != nil {
		return f.successErr
	}
	f.successes = append(f.successes, syncedTo)
	f.state.LastSuccessSync = &syncedTo
	f.state.LastError = ""
	return nil
}

func (f *fakeSyncState) MarkSyncAttempt(ctx context.Context, integration string, errMsg string) error {
	f.attempts = append(f.attempts, errMsg)
	f.state.LastError = errMsg
	return nil
}

// fakeImporter records imported IDs and can fail on a chosen one.
type fakeImporter struct {
	imported []string
	failOn   string
}

func (f *fakeImporter) ImportOrder(ctx context.Context, payload *kaspi.OrderPayload) (*models.Order, bool, error) {
	if payload.ID == f.failOn {
		return nil, false, errors.New("simulated import failure")
	}
	f.imported = append(f.imported, payload.ID)
	return &models.Order{ID: int64(len(f.imported)), ExternalID: payload.ID}, true, nil
}

func payloadWithState(id, state string) kaspi.OrderPayload {
	return kaspi.OrderPayload{ID: id, Attributes: kaspi.OrderAttributes{State: state}}
}

// fakeSyncEvents records announced runs.
type fakeSyncEvents struct {
	completed []models.SyncCompletedEvent
}

func (f *fakeSyncEvents) PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error {
	f.completed = append(f.completed, *event)
	return nil
}

func newTestSync(api *fakeOrdersAPI, imp *fakeImporter, state *fakeSyncState, now time.Time) (*SyncService, *[]time.Duration) {
	pauses := []time.Duration{}
	s := &SyncService{
		api:         api,
		importer:    imp,
		enricher:    nil,
		state:       state,
		integration: "kaspi",
		logger:      zap.NewNop(),
		now:         func() time.Time { return now },
		pause:       func(d time.Duration) { pauses = append(pauses, d) },
	}
	return s, &pauses
}

func TestSyncActiveFirstRunWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	api := &fakeOrdersAPI{pages: [][]kaspi.OrderPayload{{payloadWithState("ord-1", "NEW")}}}
	imp := &fakeImporter{}
	state := &fakeSyncState{}
	s, _ := newTestSync(api, imp, state, now)

	require.NoError(t, s.SyncActive(context.Background()))

	require.Len(t, api.windows, 1)
	assert.Equal(t, now.Add(-FirstRunLookback).UnixMilli(), api.windows[0][0])
	assert.Equal(t, now.UnixMilli(), api.windows[0][1])

	assert.Equal(t, []string{"ord-1"}, imp.imported)
	require.Len(t, state.successes, 1)
	assert.True(t, state.successes[0].Equal(now))
}

func TestSyncActiveAnnouncesCompletedRun(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	api := &fakeOrdersAPI{pages: [][]kaspi.OrderPayload{{payloadWithState("ord-1", "NEW")}}}
	events := &fakeSyncEvents{}
	s, _ := newTestSync(api, &fakeImporter{}, &fakeSyncState{}, now)
	s.events = events

	require.NoError(t, s.SyncActive(context.Background()))

	require.Len(t, events.completed, 1)
	assert.Equal(t, TierActive, events.completed[0].Tier)
	assert.Equal(t, 1, events.completed[0].Imported)
	assert.True(t, events.completed[0].DateTo.Equal(now))
}

func TestSyncActiveWindowOverlapsCheckpoint(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	checkpoint := now.Add(-30 * time.Minute)
	api := &fakeOrdersAPI{}
	state := &fakeSyncState{state: models.IntegrationSyncState{LastSuccessSync: &checkpoint}}
	s, _ := newTestSync(api, &fakeImporter{}, state, now)

	require.NoError(t, s.SyncActive(context.Background()))

	require.Len(t, api.windows, 1)
	wantFrom := checkpoint.Add(-OverlapMinutes * time.Minute)
	assert.Equal(t, wantFrom.UnixMilli(), api.windows[0][0])
}

func TestSyncActiveSkipsArchivedPayloads(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	api := &fakeOrdersAPI{pages: [][]kaspi.OrderPayload{{
		payloadWithState("ord-1", "NEW"),
		payloadWithState("ord-2", kaspi.StateArchive),
		payloadWithState("ord-3", "KASPI_DELIVERY"),
	}}}
	imp := &fakeImporter{}
	s, _ := newTestSync(api, imp, &fakeSyncState{}, now)

	require.NoError(t, s.SyncActive(context.Background()))
	assert.Equal(t, []string{"ord-1", "ord-3"}, imp.imported)
}

func TestSyncActiveFailureKeepsCheckpoint(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	api := &fakeOrdersAPI{pages: [][]kaspi.OrderPayload{{
		payloadWithState("ord-1", "NEW"),
		payloadWithState("ord-2", "NEW"),
		payloadWithState("ord-3", "NEW"),
	}}}
	imp := &fakeImporter{failOn: "ord-2"}
	state := &fakeSyncState{}
	s, _ := newTestSync(api, imp, state, now)

	err := s.SyncActive(context.Background())
	require.Error(t, err)

	assert.Empty(t, state.successes, "checkpoint must not advance on failure")
	require.Len(t, state.attempts, 1)
	assert.Contains(t, state.attempts[0], "simulated import failure")

	// Orders before the failure were imported; the window re-covers them
	// next run and the importer's upsert absorbs the repeats.
	assert.Equal(t, []string{"ord-1"}, imp.imported)
}

func TestSyncActiveCheckpointWriteFailureRecordsError(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	api := &fakeOrdersAPI{pages: [][]kaspi.OrderPayload{{payloadWithState("ord-1", "NEW")}}}
	state := &fakeSyncState{successErr: errors.New("connection reset")}
	s, _ := newTestSync(api, &fakeImporter{}, state, now)

	err := s.SyncActive(context.Background())
	require.Error(t, err)

	// The run failed, so the row must not read as clean.
	require.Len(t, state.attempts, 1)
	assert.Contains(t, state.attempts[0], "connection reset")
}

func TestSyncNewSkipsTransferredAndKeepsCheckpoint(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	waybill := "WB-1"
	transferred := kaspi.OrderPayload{
		ID: "ord-2",
		Attributes: kaspi.OrderAttributes{
			KaspiDelivery: &kaspi.KaspiDelivery{WaybillNumber: &waybill},
		},
	}
	api := &fakeOrdersAPI{pages: [][]kaspi.OrderPayload{{
		payloadWithState("ord-1", "NEW"),
		transferred,
	}}}
	imp := &fakeImporter{}
	state := &fakeSyncState{}
	s, _ := newTestSync(api, imp, state, now)

	require.NoError(t, s.SyncNew(context.Background()))

	assert.Equal(t, []string{"ord-1"}, imp.imported)

	require.Len(t, api.windows, 1)
	assert.Equal(t, now.Add(-NewTierWindow).UnixMilli(), api.windows[0][0])

	assert.Empty(t, state.successes, "new tier never advances the delta checkpoint")
	assert.Equal(t, []string{""}, state.attempts)
}

func TestSyncArchiveChunksWindow(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	api := &fakeOrdersAPI{}
	state := &fakeSyncState{}
	s, pauses := newTestSync(api, &fakeImporter{}, state, now)

	require.NoError(t, s.SyncArchive(context.Background(), 30))

	// 30 days split as 14 + 14 + 2.
	require.Len(t, api.windows, 3)
	start := now.AddDate(0, 0, -30)
	assert.Equal(t, start.UnixMilli(), api.windows[0][0])
	assert.Equal(t, start.AddDate(0, 0, 14).UnixMilli(), api.windows[0][1])
	assert.Equal(t, start.AddDate(0, 0, 14).UnixMilli(), api.windows[1][0])
	assert.Equal(t, start.AddDate(0, 0, 28).UnixMilli(), api.windows[1][1])
	assert.Equal(t, start.AddDate(0, 0, 28).UnixMilli(), api.windows[2][0])
	assert.Equal(t, now.UnixMilli(), api.windows[2][1])

	// Pause between chunks, not after the last one.
	assert.Len(t, *pauses, 2)

	assert.Empty(t, state.successes, "backfill leaves the checkpoint untouched")
}

func TestSyncArchiveDefaultsDays(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	api := &fakeOrdersAPI{}
	s, _ := newTestSync(api, &fakeImporter{}, &fakeSyncState{}, now)

	require.NoError(t, s.SyncArchive(context.Background(), 0))

	require.NotEmpty(t, api.windows)
	assert.Equal(t, now.AddDate(0, 0, -ArchiveDefaultDays).UnixMilli(), api.windows[0][0])
}

func TestRunWindowStopsOnEmptyPage(t *testing.T) {
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)
	api := &fakeOrdersAPI{pages: [][]kaspi.OrderPayload{
		{payloadWithState("ord-1", "NEW")},
		{payloadWithState("ord-2", "NEW")},
	}}
	imp := &fakeImporter{}
	s, _ := newTestSync(api, imp, &fakeSyncState{}, now)

	imported, err := s.runWindow(context.Background(), now.Add(-time.Hour), now, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	// Two data pages plus the terminating empty one.
	assert.Equal(t, 3, api.calls)
}
