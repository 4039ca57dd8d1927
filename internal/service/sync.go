package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"kaspi-sync/internal/kaspi"
	"kaspi-sync/internal/models"
	"kaspi-sync/internal/util"
)

// Sync tiers. All three reuse the same windowing/paging machinery and
// differ only in window size and skip predicate.
const (
	TierActive  = "active"
	TierNew     = "new"
	TierArchive = "archive"
)

// Sync tuning. The overlap deliberately re-queries a trailing slice already
// covered by the previous run to absorb clock skew and near-boundary orders.
const (
	OverlapMinutes   = 5
	FirstRunLookback = 24 * time.Hour
	PageSize         = 100

	NewTierWindow = 6 * time.Hour

	ArchiveDefaultDays = 180
	ArchiveChunkDays   = 14
	ArchiveChunkPause  = 2 * time.Second
)

// OrdersAPI is the marketplace surface the sync service pages through.
type OrdersAPI interface {
	GetOrders(ctx context.Context, fromMs, toMs int64, page, size int) ([]kaspi.OrderPayload, error)
}

// SyncStateStore persists the per-integration checkpoint.
type SyncStateStore interface {
	GetSyncState(ctx context.Context, integration string) (*models.IntegrationSyncState, error)
	MarkSyncSuccess(ctx context.Context, integration string, syncedTo time.Time) error
	MarkSyncAttempt(ctx context.Context, integration string, errMsg string) error
}

// OrderImporter imports one raw order payload.
type OrderImporter interface {
	ImportOrder(ctx context.Context, payload *kaspi.OrderPayload) (*models.Order, bool, error)
}

// OrderEnricher fills product detail for an order's items.
type OrderEnricher interface {
	EnrichOrder(ctx context.Context, order *models.Order) error
}

// SyncEventPublisher announces finished sync runs. Best-effort: publish
// failures are logged, never propagated.
type SyncEventPublisher interface {
	PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error
}

// SyncService orchestrates time-windowed delta sync against the
// marketplace: compute window, page until exhaustion, import every payload,
// persist the checkpoint. The checkpoint advances only on full success, so
// a mid-page failure leaves the next run's window covering the failed range
// (at-least-once delivery). Concurrent runs for one integration are not
// mutually excluded here; the surrounding scheduler serializes them, and
// overlap plus upsert idempotency make an accidental double-sync wasteful
// rather than corrupting.
type SyncService struct {
	api         OrdersAPI
	importer    OrderImporter
	enricher    OrderEnricher
	state       SyncStateStore
	events      SyncEventPublisher
	integration string
	logger      *zap.Logger
	now         func() time.Time
	pause       func(time.Duration)
}

// NewSyncService creates a new sync service for one integration. events may
// be nil; completed runs are then not announced.
func NewSyncService(api OrdersAPI, importer OrderImporter, enricher OrderEnricher, state SyncStateStore, events SyncEventPublisher, integration string) *SyncService {
	return &SyncService{
		api:         api,
		importer:    importer,
		enricher:    enricher,
		state:       state,
		events:      events,
		integration: integration,
		logger:      util.GetLogger(),
		now:         time.Now,
		pause:       time.Sleep,
	}
}

// SyncActive runs a checkpointed delta sync: window from the last
// successful sync minus the overlap (or a one-day lookback on first run) up
// to now. Payloads already archived upstream are skipped. Advances the
// checkpoint on full success only.
func (s *SyncService) SyncActive(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SyncService.SyncActive")
	defer span.End()

	state, err := s.state.GetSyncState(ctx, s.integration)
	if err != nil {
		return fmt.Errorf("load sync state: %w", err)
	}

	dateTo := s.now()
	var dateFrom time.Time
	if state.LastSuccessSync != nil {
		dateFrom = state.LastSuccessSync.Add(-OverlapMinutes * time.Minute)
	} else {
		dateFrom = dateTo.Add(-FirstRunLookback)
	}

	s.logger.Info("Active sync window",
		zap.Time("from", dateFrom),
		zap.Time("to", dateTo))

	imported, err := s.runWindow(ctx, dateFrom, dateTo, skipArchived)
	if err != nil {
		util.SyncRunsTotal.WithLabelValues(TierActive, "error").Inc()
		if stateErr := s.state.MarkSyncAttempt(ctx, s.integration, err.Error()); stateErr != nil {
			s.logger.Error("Failed to record sync failure", zap.Error(stateErr))
		}
		return fmt.Errorf("active sync: %w", err)
	}

	if err := s.state.MarkSyncSuccess(ctx, s.integration, dateTo); err != nil {
		if stateErr := s.state.MarkSyncAttempt(ctx, s.integration, err.Error()); stateErr != nil {
			s.logger.Error("Failed to record sync failure", zap.Error(stateErr))
		}
		return fmt.Errorf("persist sync checkpoint: %w", err)
	}

	util.SyncRunsTotal.WithLabelValues(TierActive, "ok").Inc()
	s.announce(ctx, TierActive, dateFrom, dateTo, imported)
	s.logger.Info("Active sync complete", zap.Int("imported", imported))
	return nil
}

// SyncNew polls a short trailing window for the most time-sensitive orders:
// those not yet handed to delivery. Records the attempt but never moves
// last_success_sync; the short window must not shrink the delta coverage.
func (s *SyncService) SyncNew(ctx context.Context) error {
	ctx, span := util.StartSpan(ctx, "SyncService.SyncNew")
	defer span.End()

	dateTo := s.now()
	dateFrom := dateTo.Add(-NewTierWindow)

	imported, err := s.runWindow(ctx, dateFrom, dateTo, skipTransferred)
	if err != nil {
		util.SyncRunsTotal.WithLabelValues(TierNew, "error").Inc()
		if stateErr := s.state.MarkSyncAttempt(ctx, s.integration, err.Error()); stateErr != nil {
			s.logger.Error("Failed to record sync failure", zap.Error(stateErr))
		}
		return fmt.Errorf("new-orders sync: %w", err)
	}

	if err := s.state.MarkSyncAttempt(ctx, s.integration, ""); err != nil {
		return fmt.Errorf("record sync attempt: %w", err)
	}

	util.SyncRunsTotal.WithLabelValues(TierNew, "ok").Inc()
	s.announce(ctx, TierNew, dateFrom, dateTo, imported)
	s.logger.Debug("New-orders sync complete", zap.Int("imported", imported))
	return nil
}

// SyncArchive backfills the trailing history once, in fixed-size day chunks
// with a pause between chunks to stay under rate limits. A crash loses at
// most one chunk's progress. The checkpoint is untouched.
func (s *SyncService) SyncArchive(ctx context.Context, days int) error {
	ctx, span := util.StartSpan(ctx, "SyncService.SyncArchive")
	defer span.End()

	if days <= 0 {
		days = ArchiveDefaultDays
	}

	end := s.now()
	start := end.AddDate(0, 0, -days)
	cursor := start

	s.logger.Info("Archive backfill started",
		zap.Time("from", cursor),
		zap.Time("to", end))

	imported := 0
	for cursor.Before(end) {
		chunkEnd := cursor.AddDate(0, 0, ArchiveChunkDays)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		s.logger.Info("Archive chunk",
			zap.Time("from", cursor),
			zap.Time("to", chunkEnd))

		n, err := s.runWindow(ctx, cursor, chunkEnd, nil)
		if err != nil {
			util.SyncRunsTotal.WithLabelValues(TierArchive, "error").Inc()
			return fmt.Errorf("archive chunk %s: %w", cursor.Format("2006-01-02"), err)
		}
		imported += n

		cursor = chunkEnd
		if cursor.Before(end) {
			s.pause(ArchiveChunkPause)
		}
	}

	util.SyncRunsTotal.WithLabelValues(TierArchive, "ok").Inc()
	s.announce(ctx, TierArchive, start, end, imported)
	s.logger.Info("Archive backfill finished", zap.Int("imported", imported))
	return nil
}

func (s *SyncService) announce(ctx context.Context, tier string, from, to time.Time, imported int) {
	if s.events == nil {
		return
	}
	err := s.events.PublishSyncCompleted(ctx, &models.SyncCompletedEvent{
		Tier:     tier,
		DateFrom: from,
		DateTo:   to,
		Imported: imported,
	})
	if err != nil {
		s.logger.Warn("Failed to publish sync completed event",
			zap.String("tier", tier),
			zap.Error(err))
	}
}

// runWindow pages through one date window until the upstream returns an
// empty page, importing (and enriching) every payload the skip predicate
// lets through. Any error aborts the window.
func (s *SyncService) runWindow(ctx context.Context, from, to time.Time, skip func(*kaspi.OrderPayload) bool) (int, error) {
	fromMs := kaspi.TimeToMillis(from)
	toMs := kaspi.TimeToMillis(to)

	imported := 0
	for page := 0; ; page++ {
		payloads, err := s.api.GetOrders(ctx, fromMs, toMs, page, PageSize)
		if err != nil {
			return imported, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(payloads) == 0 {
			break
		}

		for i := range payloads {
			payload := &payloads[i]
			if skip != nil && skip(payload) {
				continue
			}

			order, _, err := s.importer.ImportOrder(ctx, payload)
			if err != nil {
				return imported, fmt.Errorf("import order %s: %w", payload.ID, err)
			}
			imported++

			if s.enricher != nil {
				if err := s.enricher.EnrichOrder(ctx, order); err != nil {
					return imported, fmt.Errorf("enrich order %s: %w", payload.ID, err)
				}
			}
		}
	}
	return imported, nil
}

func skipArchived(p *kaspi.OrderPayload) bool {
	if p.Attributes.State == kaspi.StateArchive {
		util.OrdersSkippedTotal.WithLabelValues("archived").Inc()
		return true
	}
	return false
}

func skipTransferred(p *kaspi.OrderPayload) bool {
	if kaspi.IsTransferred(p.Attributes) {
		util.OrdersSkippedTotal.WithLabelValues("transferred").Inc()
		return true
	}
	return false
}
