package query

import (
	"context"
	"database/sql"
)

// Supply reads the fund's aggregate supply from the latest persisted
// journal entry. The engine's Status call is authoritative for live
// state; this answers the question from the database alone, which is
// what an auditor replaying the journal sees.
func (s *Service) Supply(ctx context.Context) (*SupplyStats, error) {
	var stats SupplyStats
	err := s.db.QueryRowContext(ctx, `
		SELECT supply_after, holders_after, recorded_at
		FROM bridge.share_journal
		ORDER BY recorded_at DESC
		LIMIT 1
	`).Scan(&stats.TotalSupply, &stats.HolderCount, &stats.AsOf)
	if err == sql.ErrNoRows {
		return &SupplyStats{}, nil
	}
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bridge.share_journal
	`).Scan(&stats.JournalCount)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}
