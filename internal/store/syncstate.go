package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"kaspi-sync/internal/models"
)

// GetSyncState returns the checkpoint row for an integration, creating an
// empty one on first use.
func (s *Store) GetSyncState(ctx context.Context, integration string) (*models.IntegrationSyncState, error) {
	var state models.IntegrationSyncState
	err := s.db.GetContext(ctx, &state,
		"SELECT * FROM integration_sync_state WHERE integration = $1", integration)
	if err == nil {
		return &state, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	query := `
		INSERT INTO integration_sync_state (integration, last_attempt, last_error)
		VALUES ($1, NOW(), '')
		RETURNING integration, last_success_sync, last_attempt, last_error`
	err = s.db.GetContext(ctx, &state, query, integration)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// MarkSyncSuccess advances the checkpoint to syncedTo, clears the error and
// bumps the attempt timestamp. Called only after a window completed in full.
func (s *Store) MarkSyncSuccess(ctx context.Context, integration string, syncedTo time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE integration_sync_state
		SET last_success_sync = $2, last_error = '', last_attempt = NOW()
		WHERE integration = $1`, integration, syncedTo)
	return err
}

// MarkSyncAttempt records a run without moving the checkpoint. errMsg is
// empty for non-checkpointed successful runs.
func (s *Store) MarkSyncAttempt(ctx context.Context, integration string, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE integration_sync_state
		SET last_error = $2, last_attempt = NOW()
		WHERE integration = $1`, integration, errMsg)
	return err
}
