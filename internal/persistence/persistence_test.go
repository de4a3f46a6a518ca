package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"IndexBridge/internal/core"
	"IndexBridge/internal/ledger"
	"IndexBridge/internal/persistence"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/testutil"
)

func TestWorkerPersistsOutputs(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := persistence.NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	input := make(chan core.Output, 8)
	worker := persistence.NewWorker(db, input, 2, 20*time.Millisecond, nil, zerolog.Nop())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	entry := ledger.NewJournalEntry("op-1", ledger.EntryKindBootstrapMint, "alice", 1_000_000, 1_000_000, 1, time.Now().UnixNano())
	input <- core.Output{
		Journal: []ledger.JournalEntry{entry},
		Delivery: &core.SettledDelivery{
			DeliveryID:  "d-1",
			SourceChain: 2,
			ProcessedAt: time.Now().UTC(),
		},
	}
	close(input)
	if err := <-done; err != nil {
		t.Fatalf("worker: %v", err)
	}

	var journals, deliveries int
	if err := db.QueryRow(`SELECT COUNT(*) FROM bridge.share_journal`).Scan(&journals); err != nil {
		t.Fatalf("count journals: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM bridge.settled_deliveries`).Scan(&deliveries); err != nil {
		t.Fatalf("count deliveries: %v", err)
	}
	if journals != 1 || deliveries != 1 {
		t.Errorf("persisted %d journals, %d deliveries, want 1 and 1", journals, deliveries)
	}
}

func TestDeliveryLogDeduplicates(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewSettlementWriter(db)
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	settled := []core.SettledDelivery{{DeliveryID: "d-42", SourceChain: 2, ProcessedAt: time.Now().UTC()}}
	if err := writer.WriteDeliveryBatch(ctx, tx, settled); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	log := persistence.NewDeliveryLog(db)
	dup, err := log.IsDuplicate("d-42")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if !dup {
		t.Error("d-42 should be a duplicate")
	}

	dup, err = log.IsDuplicate("d-never-seen")
	if err != nil {
		t.Fatalf("IsDuplicate: %v", err)
	}
	if dup {
		t.Error("d-never-seen should not be a duplicate")
	}

	recent, err := log.RecentDeliveryIDs(ctx, 10)
	if err != nil {
		t.Fatalf("RecentDeliveryIDs: %v", err)
	}
	if len(recent) != 1 || recent[0] != "d-42" {
		t.Errorf("recent %v, want [d-42]", recent)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	if err := persistence.NewMigrator(db, "../../migrations", zerolog.Nop()).Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mgr := persistence.NewSnapshotManager(db, nil)

	empty, err := mgr.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if empty != nil {
		t.Fatal("expected nil snapshot on cold start")
	}

	snap := &core.SnapshotState{
		Balances:    map[protocol.Address]uint64{"alice": 1_000_000},
		InitialMint: true,
		Deliveries:  []string{"d-1", "d-2"},
	}
	if err := mgr.Save(ctx, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := mgr.LoadLatest(ctx)
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected snapshot after save")
	}
	if loaded.Balances["alice"] != 1_000_000 || !loaded.InitialMint {
		t.Errorf("loaded %+v, want alice balance and initial mint", loaded)
	}
	if len(loaded.Deliveries) != 2 {
		t.Errorf("deliveries %v, want 2 ids", loaded.Deliveries)
	}
}
