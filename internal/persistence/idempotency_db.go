package persistence

import (
	"context"
	"database/sql"
	"time"
)

// DeliveryLog is the Postgres-backed lookup for delivery identifiers
// that aged out of the engine's in-memory cache. Implements
// core.DBDeduper.
type DeliveryLog struct {
	db *sql.DB
}

func NewDeliveryLog(db *sql.DB) *DeliveryLog {
	return &DeliveryLog{db: db}
}

// IsDuplicate reports whether the delivery identifier was already
// settled. The short timeout keeps a slow database from stalling the
// engine's delivery loop.
func (l *DeliveryLog) IsDuplicate(deliveryID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	var exists int
	err := l.db.QueryRowContext(ctx, `
		SELECT 1 FROM bridge.settled_deliveries
		WHERE delivery_id = $1
		LIMIT 1
	`, deliveryID).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentDeliveryIDs returns the most recently settled identifiers,
// newest first, for warming the engine's cache on startup.
func (l *DeliveryLog) RecentDeliveryIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT delivery_id FROM bridge.settled_deliveries
		ORDER BY processed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
