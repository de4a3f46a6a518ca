package query

import (
	"time"

	"github.com/google/uuid"
)

// JournalRecord is one share supply mutation read back from Postgres.
type JournalRecord struct {
	JournalID    uuid.UUID `json:"journal_id"`
	OperationRef string    `json:"operation_ref"`
	Kind         string    `json:"kind"`
	Holder       string    `json:"holder"`
	Shares       int64     `json:"shares"`
	SupplyAfter  int64     `json:"supply_after"`
	HoldersAfter int32     `json:"holders_after"`
	RecordedAt   int64     `json:"recorded_at"`
}

// DeliveryRecord is one settled inbound delivery.
type DeliveryRecord struct {
	DeliveryID  string    `json:"delivery_id"`
	SourceChain uint16    `json:"source_chain"`
	ProcessedAt time.Time `json:"processed_at"`
}

// SupplyStats is the fund's aggregate supply as of the latest
// persisted journal entry.
type SupplyStats struct {
	TotalSupply  int64 `json:"total_supply"`
	HolderCount  int32 `json:"holder_count"`
	JournalCount int64 `json:"journal_count"`
	AsOf         int64 `json:"as_of"`
}
