package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"IndexBridge/internal/core"
	"IndexBridge/internal/ledger"
)

// SettlementWriter batch-writes journal entries and settled deliveries
// to Postgres with multi-row INSERTs. ON CONFLICT DO NOTHING makes the
// writes idempotent, so a crashed worker can safely re-flush a batch.
type SettlementWriter struct {
	db *sql.DB
}

func NewSettlementWriter(db *sql.DB) *SettlementWriter {
	return &SettlementWriter{db: db}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WriteJournalBatch inserts journal entries into bridge.share_journal.
func (w *SettlementWriter) WriteJournalBatch(ctx context.Context, tx execer, entries []ledger.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	query := `INSERT INTO bridge.share_journal
		(journal_id, operation_ref, kind, holder, shares, supply_after, holders_after, recorded_at)
		VALUES `

	values := make([]string, 0, len(entries))
	args := make([]interface{}, 0, len(entries)*8)

	for i, e := range entries {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			e.JournalID, e.OperationRef, e.Kind.String(), string(e.Holder),
			int64(e.Shares), int64(e.SupplyAfter), e.HoldersAfter, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (journal_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteDeliveryBatch inserts settled deliveries into
// bridge.settled_deliveries. The primary key on delivery_id is the
// durable backstop for duplicate suppression once an identifier has
// aged out of the in-memory cache.
func (w *SettlementWriter) WriteDeliveryBatch(ctx context.Context, tx execer, deliveries []core.SettledDelivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	query := `INSERT INTO bridge.settled_deliveries
		(delivery_id, source_chain, processed_at)
		VALUES `

	values := make([]string, 0, len(deliveries))
	args := make([]interface{}, 0, len(deliveries)*3)

	for i, d := range deliveries {
		base := i * 3
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3))
		args = append(args, d.DeliveryID, int32(d.SourceChain), d.ProcessedAt)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (delivery_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}
