package ledger_test

import (
	"errors"
	"testing"

	"IndexBridge/internal/ledger"
	"IndexBridge/internal/protocol"
)

const bootstrapShares = 1_000_000

func TestDeposit_BootstrapMint(t *testing.T) {
	l := ledger.NewShareLedger(bootstrapShares)

	if l.Initialized() {
		t.Fatal("fresh ledger should not be initialized")
	}

	minted, err := l.Deposit("alice", 5, 0)
	if err != nil {
		t.Fatalf("first deposit failed: %v", err)
	}
	if minted != bootstrapShares {
		t.Errorf("first deposit minted %d, want bootstrap constant %d", minted, bootstrapShares)
	}
	if !l.Initialized() {
		t.Error("initial-mint flag should be set after first deposit")
	}
	if l.TotalSupply() != bootstrapShares {
		t.Errorf("total supply %d, want %d", l.TotalSupply(), bootstrapShares)
	}
	if l.HolderCount() != 1 {
		t.Errorf("holder count %d, want 1", l.HolderCount())
	}
}

func TestDeposit_SubsequentUsesPrice(t *testing.T) {
	l := ledger.NewShareLedger(bootstrapShares)
	if _, err := l.Deposit("alice", 5, 0); err != nil {
		t.Fatalf("first deposit failed: %v", err)
	}

	minted, err := l.Deposit("bob", 1000, 4)
	if err != nil {
		t.Fatalf("second deposit failed: %v", err)
	}
	if minted != 250 {
		t.Errorf("minted %d, want 250", minted)
	}
	if l.BalanceOf("bob") != 250 {
		t.Errorf("bob balance %d, want 250", l.BalanceOf("bob"))
	}
	if l.HolderCount() != 2 {
		t.Errorf("holder count %d, want 2", l.HolderCount())
	}
}

func TestDeposit_ZeroPriceAfterBootstrap(t *testing.T) {
	l := ledger.NewShareLedger(bootstrapShares)
	if _, err := l.Deposit("alice", 5, 0); err != nil {
		t.Fatalf("first deposit failed: %v", err)
	}

	supply := l.TotalSupply()
	_, err := l.Deposit("bob", 1000, 0)
	if !errors.Is(err, protocol.ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
	if l.TotalSupply() != supply {
		t.Error("failed deposit must not change supply")
	}
	if l.HolderCount() != 1 {
		t.Error("failed deposit must not change holder count")
	}
}

func TestBurn_InsufficientBalance(t *testing.T) {
	l := ledger.NewShareLedger(bootstrapShares)
	if _, err := l.Deposit("alice", 5, 0); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	err := l.Burn("alice", bootstrapShares+1)
	if !errors.Is(err, protocol.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if l.BalanceOf("alice") != bootstrapShares {
		t.Error("failed burn must not change balance")
	}
	if l.TotalSupply() != bootstrapShares {
		t.Error("failed burn must not change supply")
	}

	err = l.Burn("nobody", 1)
	if !errors.Is(err, protocol.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance for unknown holder, got %v", err)
	}
}

func TestHolderCount_ZeroBoundary(t *testing.T) {
	l := ledger.NewShareLedger(bootstrapShares)
	if _, err := l.Deposit("alice", 5, 0); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// Partial burn keeps alice a holder.
	if err := l.Burn("alice", bootstrapShares/2); err != nil {
		t.Fatalf("burn failed: %v", err)
	}
	if l.HolderCount() != 1 {
		t.Errorf("holder count %d after partial burn, want 1", l.HolderCount())
	}

	// Burning the rest crosses the zero boundary.
	if err := l.Burn("alice", l.BalanceOf("alice")); err != nil {
		t.Fatalf("burn failed: %v", err)
	}
	if l.HolderCount() != 0 {
		t.Errorf("holder count %d after full burn, want 0", l.HolderCount())
	}
	if l.TotalSupply() != 0 {
		t.Errorf("supply %d after full burn, want 0", l.TotalSupply())
	}

	// Migration-mint to the same address makes them a holder again.
	l.Mint("alice", 10)
	if l.HolderCount() != 1 {
		t.Errorf("holder count %d after re-mint, want 1", l.HolderCount())
	}
}

func TestMint_ZeroSharesIsNoOp(t *testing.T) {
	l := ledger.NewShareLedger(bootstrapShares)
	l.Mint("alice", 0)
	if l.HolderCount() != 0 || l.TotalSupply() != 0 {
		t.Error("zero mint must not create a holder")
	}
}

func TestSellAmount_Proportional(t *testing.T) {
	l := ledger.NewShareLedger(1000)
	if _, err := l.Deposit("alice", 5, 0); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// Redeeming 250 of 1000 shares against 400 held tokens sells 100.
	out, err := l.SellAmount(250, 400)
	if err != nil {
		t.Fatalf("SellAmount failed: %v", err)
	}
	if out != 100 {
		t.Errorf("sell amount %d, want 100", out)
	}
}

func TestSellAmount_ZeroSupply(t *testing.T) {
	l := ledger.NewShareLedger(1000)
	_, err := l.SellAmount(1, 100)
	if !errors.Is(err, protocol.ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestRestore_RebuildsDerivedState(t *testing.T) {
	l := ledger.NewShareLedger(bootstrapShares)
	l.Restore(map[protocol.Address]uint64{
		"alice": 600,
		"bob":   400,
		"gone":  0,
	}, true)

	if l.TotalSupply() != 1000 {
		t.Errorf("supply %d, want 1000", l.TotalSupply())
	}
	if l.HolderCount() != 2 {
		t.Errorf("holder count %d, want 2", l.HolderCount())
	}
	if !l.Initialized() {
		t.Error("initial-mint flag should survive restore")
	}
}

func TestHoldings_CreditDebit(t *testing.T) {
	h := ledger.NewHoldingsTracker()
	h.Credit("0xtoken", 100)
	if h.Held("0xtoken") != 100 {
		t.Errorf("held %d, want 100", h.Held("0xtoken"))
	}

	if err := h.Debit("0xtoken", 40); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if h.Held("0xtoken") != 60 {
		t.Errorf("held %d, want 60", h.Held("0xtoken"))
	}

	err := h.Debit("0xtoken", 61)
	if !errors.Is(err, protocol.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if h.Held("0xtoken") != 60 {
		t.Error("failed debit must not change holdings")
	}
}

func TestPriceTable_Overwrite(t *testing.T) {
	p := ledger.NewPriceTable()
	if p.Get("0xfund") != 0 {
		t.Error("missing entry should read as zero")
	}

	p.Set("0xfund", 4)
	p.Set("0xfund", 7)
	if p.Get("0xfund") != 7 {
		t.Errorf("price %d, want 7", p.Get("0xfund"))
	}
}

func TestJournalEntry_Validate(t *testing.T) {
	e := ledger.NewJournalEntry("op-1", ledger.EntryKindDepositMint, "alice", 10, 10, 1, 1700000000)
	if err := e.Validate(); err != nil {
		t.Fatalf("valid entry rejected: %v", err)
	}

	bad := e
	bad.Kind = ledger.EntryKindUnknown
	if err := bad.Validate(); err == nil {
		t.Error("unknown kind should be rejected")
	}

	bad = e
	bad.OperationRef = ""
	if err := bad.Validate(); err == nil {
		t.Error("missing operation ref should be rejected")
	}
}
