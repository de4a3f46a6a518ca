// Package query serves read-only lookups against the persisted
// settlement tables. Live balances come from the engine; this package
// answers history questions that outlive the in-memory state.
package query

import (
	"context"
	"database/sql"
	"fmt"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// JournalHistory returns journal entries newest first, optionally
// filtered to one holder. Cursor pagination: pass the recorded_at of
// the last row seen to fetch the next page.
func (s *Service) JournalHistory(ctx context.Context, holder string, limit int, before *int64) ([]JournalRecord, error) {
	query := `
		SELECT journal_id, operation_ref, kind, holder, shares, supply_after, holders_after, recorded_at
		FROM bridge.share_journal
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if holder != "" {
		query += fmt.Sprintf(" AND holder = $%d", argIdx)
		args = append(args, holder)
		argIdx++
	}
	if before != nil {
		query += fmt.Sprintf(" AND recorded_at < $%d", argIdx)
		args = append(args, *before)
		argIdx++
	}

	query += " ORDER BY recorded_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalRecord
	for rows.Next() {
		var e JournalRecord
		if err := rows.Scan(
			&e.JournalID, &e.OperationRef, &e.Kind, &e.Holder,
			&e.Shares, &e.SupplyAfter, &e.HoldersAfter, &e.RecordedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// OperationJournal returns the journal entries produced by a single
// operation or inbound delivery, oldest first.
func (s *Service) OperationJournal(ctx context.Context, opRef string) ([]JournalRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT journal_id, operation_ref, kind, holder, shares, supply_after, holders_after, recorded_at
		FROM bridge.share_journal
		WHERE operation_ref = $1
		ORDER BY recorded_at ASC
	`, opRef)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []JournalRecord
	for rows.Next() {
		var e JournalRecord
		if err := rows.Scan(
			&e.JournalID, &e.OperationRef, &e.Kind, &e.Holder,
			&e.Shares, &e.SupplyAfter, &e.HoldersAfter, &e.RecordedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delivery looks up one settled delivery by identifier. Returns nil if
// the delivery was never settled here.
func (s *Service) Delivery(ctx context.Context, deliveryID string) (*DeliveryRecord, error) {
	var d DeliveryRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT delivery_id, source_chain, processed_at
		FROM bridge.settled_deliveries
		WHERE delivery_id = $1
	`, deliveryID).Scan(&d.DeliveryID, &d.SourceChain, &d.ProcessedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// RecentDeliveries returns the most recently settled deliveries,
// newest first.
func (s *Service) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT delivery_id, source_chain, processed_at
		FROM bridge.settled_deliveries
		ORDER BY processed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DeliveryRecord
	for rows.Next() {
		var d DeliveryRecord
		if err := rows.Scan(&d.DeliveryID, &d.SourceChain, &d.ProcessedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
