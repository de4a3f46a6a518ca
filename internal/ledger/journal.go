package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"IndexBridge/internal/protocol"
)

// EntryKind classifies a share supply mutation.
type EntryKind int32

const (
	EntryKindUnknown EntryKind = iota
	EntryKindBootstrapMint
	EntryKindDepositMint
	EntryKindRedeemBurn
	EntryKindMigrationBurn
	EntryKindMigrationMint
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindBootstrapMint:
		return "BOOTSTRAP_MINT"
	case EntryKindDepositMint:
		return "DEPOSIT_MINT"
	case EntryKindRedeemBurn:
		return "REDEEM_BURN"
	case EntryKindMigrationBurn:
		return "MIGRATION_BURN"
	case EntryKindMigrationMint:
		return "MIGRATION_MINT"
	default:
		return "UNKNOWN"
	}
}

// JournalEntry is one append-only record of a supply mutation, persisted
// for audit and warm restarts. OperationRef ties the entry back to the
// RPC operation id or inbound delivery identifier that caused it.
type JournalEntry struct {
	JournalID    uuid.UUID
	OperationRef string
	Kind         EntryKind
	Holder       protocol.Address
	Shares       uint64
	SupplyAfter  uint64
	HoldersAfter int
	Timestamp    int64
}

// NewJournalEntry stamps a fresh journal id onto a supply mutation record.
func NewJournalEntry(opRef string, kind EntryKind, holder protocol.Address, shares, supplyAfter uint64, holdersAfter int, ts int64) JournalEntry {
	return JournalEntry{
		JournalID:    uuid.New(),
		OperationRef: opRef,
		Kind:         kind,
		Holder:       holder,
		Shares:       shares,
		SupplyAfter:  supplyAfter,
		HoldersAfter: holdersAfter,
		Timestamp:    ts,
	}
}

// Validate rejects structurally broken entries before they reach the
// persistence queue.
func (e JournalEntry) Validate() error {
	if e.JournalID == uuid.Nil {
		return fmt.Errorf("journal entry missing id")
	}
	if e.OperationRef == "" {
		return fmt.Errorf("journal entry %s missing operation ref", e.JournalID)
	}
	if e.Kind == EntryKindUnknown {
		return fmt.Errorf("journal entry %s has unknown kind", e.JournalID)
	}
	if e.Holder.Zero() {
		return fmt.Errorf("journal entry %s missing holder", e.JournalID)
	}
	return nil
}
