package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"IndexBridge/internal/core"
	"IndexBridge/internal/observability"
)

// SnapshotManager persists engine state snapshots for warm restarts.
// A restarting node loads the latest snapshot, warms the delivery
// cache from it and resumes from the relay's durable consumer; the
// settled-deliveries table suppresses anything redelivered from the
// gap between snapshot and crash.
type SnapshotManager struct {
	db      *sql.DB
	metrics *observability.Metrics
}

func NewSnapshotManager(db *sql.DB, metrics *observability.Metrics) *SnapshotManager {
	return &SnapshotManager{db: db, metrics: metrics}
}

// Save writes one snapshot row. Old rows are pruned past the five most
// recent; a handful is enough to survive a corrupt latest snapshot.
func (sm *SnapshotManager) Save(ctx context.Context, snap *core.SnapshotState) error {
	start := time.Now()

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO bridge.snapshots (snapshot_id, data, size_bytes, created_at)
		VALUES ($1, $2, $3, $4)
	`, uuid.New(), data, len(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		DELETE FROM bridge.snapshots
		WHERE snapshot_id NOT IN (
			SELECT snapshot_id FROM bridge.snapshots
			ORDER BY created_at DESC
			LIMIT 5
		)
	`)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}

	if sm.metrics != nil {
		sm.metrics.SnapshotTaken.Inc()
		sm.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
		sm.metrics.SnapshotSizeBytes.Set(float64(len(data)))
	}
	return nil
}

// LoadLatest returns the most recent snapshot, or nil on a cold start.
func (sm *SnapshotManager) LoadLatest(ctx context.Context) (*core.SnapshotState, error) {
	var data []byte
	err := sm.db.QueryRowContext(ctx, `
		SELECT data FROM bridge.snapshots
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap core.SnapshotState
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
