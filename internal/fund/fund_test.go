package fund_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"IndexBridge/internal/basket"
	"IndexBridge/internal/exchange"
	"IndexBridge/internal/fund"
	"IndexBridge/internal/ledger"
	"IndexBridge/internal/message"
	"IndexBridge/internal/migration"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/registry"
	"IndexBridge/internal/router"
	"IndexBridge/internal/transport"
)

const (
	selfChain   protocol.ChainID = 1
	remoteChain protocol.ChainID = 2
	farChain    protocol.ChainID = 3

	bootstrapShares = 1_000_000
)

type fixture struct {
	fund     *fund.Fund
	router   *router.Router
	shares   *ledger.ShareLedger
	holdings *ledger.HoldingsTracker
	hub      *transport.Loopback
	remote   <-chan transport.Delivery
	far      <-chan transport.Delivery
	fees     *transport.FeeTable
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.New("0xowner")
	if err := reg.SetPeers("0xowner", remoteChain, registry.PeerSet{
		Fund: "0xfund2", Router: "0xrouter2", Migrator: "0xmig2",
	}); err != nil {
		t.Fatalf("SetPeers failed: %v", err)
	}
	if err := reg.SetPeers("0xowner", farChain, registry.PeerSet{
		Fund: "0xfund3", Router: "0xrouter3", Migrator: "0xmig3",
	}); err != nil {
		t.Fatalf("SetPeers failed: %v", err)
	}
	wrapped := registry.NewWrappedAssets("0xowner")

	exch := exchange.NewFixedRate()
	exch.SetRate("0xusd", "0xassetA", 1, 1)
	exch.SetRate("0xassetA", "0xusd", 1, 1)

	hub := transport.NewLoopback("0xrelay")
	remote := hub.Register(remoteChain)
	far := hub.Register(farChain)
	fees := transport.NewFeeTable(map[protocol.ChainID]uint64{remoteChain: 10, farChain: 10})

	shares := ledger.NewShareLedger(bootstrapShares)
	holdings := ledger.NewHoldingsTracker()
	prices := ledger.NewPriceTable()

	rt := router.New(router.Config{
		SelfChain:      selfChain,
		FundAddress:    "0xfund1",
		PurchaseToken:  "0xusd",
		PriceAuthority: "0xauthority",
		Holdings:       holdings,
		Prices:         prices,
		Exchange:       exch,
		Sender:         hub.Endpoint(selfChain, "0xrouter1"),
		Quoter:         fees,
		Registry:       reg,
		Wrapped:        wrapped,
		Logger:         zerolog.Nop(),
	})

	coord := migration.New(migration.Config{
		SelfChain: selfChain,
		Address:   "0xmig1",
		Shares:    shares,
		Registry:  reg,
		Sender:    hub.Endpoint(selfChain, "0xmig1"),
		Quoter:    fees,
		Logger:    zerolog.Nop(),
	})

	f := fund.New(fund.Config{
		ChainID:  selfChain,
		Address:  "0xfund1",
		Owner:    "0xfactory",
		Shares:   shares,
		Holdings: holdings,
		Router:   rt,
		Migrator: coord,
		Quoter:   fees,
		Logger:   zerolog.Nop(),
	})
	return &fixture{fund: f, router: rt, shares: shares, holdings: holdings, hub: hub, remote: remote, far: far, fees: fees}
}

func twoChainEntries() []basket.Entry {
	return []basket.Entry{
		{AssetContract: "0xassetA", HomeChain: selfChain, Weight: 1},
		{AssetContract: "0xassetB", HomeChain: remoteChain, Weight: 1},
	}
}

func mustInit(t *testing.T, f *fixture) {
	t.Helper()
	if err := f.fund.Initialize("0xfactory", twoChainEntries()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
}

func TestInitialize_Gates(t *testing.T) {
	f := newFixture(t)

	err := f.fund.Initialize("0xintruder", twoChainEntries())
	if !errors.Is(err, protocol.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if f.fund.Initialized() {
		t.Error("rejected init must not initialize")
	}

	mustInit(t, f)
	err = f.fund.Initialize("0xfactory", twoChainEntries())
	if !errors.Is(err, protocol.ErrAlreadyInitialized) {
		t.Errorf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestInvest_SplitsLocalAndRemote(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)

	minted, legs, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10)
	if err != nil {
		t.Fatalf("Invest failed: %v", err)
	}
	if minted != bootstrapShares {
		t.Errorf("first deposit minted %d, want bootstrap constant %d", minted, bootstrapShares)
	}
	if len(legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(legs))
	}

	// Local leg swapped 50 purchase tokens into asset A.
	if f.holdings.Held("0xassetA") != 50 {
		t.Errorf("local holdings %d, want 50", f.holdings.Held("0xassetA"))
	}

	// Remote leg carried 50 purchase tokens and asset B's contract.
	d := <-f.remote
	if len(d.Tokens) != 1 || d.Tokens[0].Amount != 50 {
		t.Fatalf("attached tokens %+v, want 50", d.Tokens)
	}
	p, err := message.Decode(d.Payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	fwd, ok := p.(*message.DepositForward)
	if !ok || fwd.AssetContract != "0xassetB" {
		t.Errorf("payload %+v, want forward into 0xassetB", p)
	}
}

func TestInvest_SubsequentMintUsesPrice(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)

	if _, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10); err != nil {
		t.Fatalf("first invest failed: %v", err)
	}
	if err := f.router.UpdatePrice("0xauthority", "0xfund1", 4); err != nil {
		t.Fatalf("UpdatePrice failed: %v", err)
	}

	minted, _, err := f.fund.Invest(context.Background(), "op-2", "bob", 1000, 10)
	if err != nil {
		t.Fatalf("second invest failed: %v", err)
	}
	if minted != 250 {
		t.Errorf("minted %d, want 1000/4 = 250", minted)
	}
}

func TestInvest_ZeroPriceAfterBootstrap(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)

	if _, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10); err != nil {
		t.Fatalf("first invest failed: %v", err)
	}
	<-f.remote

	_, _, err := f.fund.Invest(context.Background(), "op-2", "bob", 1000, 10)
	if !errors.Is(err, protocol.ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
	// The price is knowable before any leg runs, so the failed deposit
	// must not have swapped locally or bridged anything out.
	if f.holdings.Held("0xassetA") != 50 {
		t.Errorf("holdings %d after aborted deposit, want 50 from the first deposit only", f.holdings.Held("0xassetA"))
	}
	if len(f.remote) != 0 {
		t.Error("aborted deposit must not dispatch remote legs")
	}
	if f.shares.TotalSupply() != bootstrapShares {
		t.Errorf("supply %d after aborted deposit, want %d", f.shares.TotalSupply(), bootstrapShares)
	}
}

func TestInvest_InsufficientFeeAborts(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)

	_, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 9)
	if !errors.Is(err, protocol.ErrInsufficientGas) {
		t.Errorf("expected ErrInsufficientGas, got %v", err)
	}
	if f.holdings.Held("0xassetA") != 0 {
		t.Error("aborted deposit must revert local credits")
	}
	if f.shares.TotalSupply() != 0 {
		t.Error("aborted deposit must not mint")
	}
}

func TestInvest_FeeCoversOnlyOneRemoteLeg(t *testing.T) {
	f := newFixture(t)
	entries := []basket.Entry{
		{AssetContract: "0xassetA", HomeChain: selfChain, Weight: 1},
		{AssetContract: "0xassetB", HomeChain: remoteChain, Weight: 1},
		{AssetContract: "0xassetC", HomeChain: farChain, Weight: 1},
	}
	if err := f.fund.Initialize("0xfactory", entries); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	// Fee 10 pays for one remote leg; the basket needs two. The
	// shortfall is knowable up front, so neither leg may be dispatched.
	_, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 90, 10)
	if !errors.Is(err, protocol.ErrInsufficientGas) {
		t.Errorf("expected ErrInsufficientGas, got %v", err)
	}
	if len(f.remote) != 0 || len(f.far) != 0 {
		t.Error("aborted deposit must not dispatch any remote leg")
	}
	if f.holdings.Held("0xassetA") != 0 {
		t.Error("aborted deposit must not swap locally")
	}
	if f.shares.TotalSupply() != 0 {
		t.Error("aborted deposit must not mint")
	}
}

func TestInvest_UnregisteredPeerAbortsBeforeDispatch(t *testing.T) {
	f := newFixture(t)
	entries := []basket.Entry{
		{AssetContract: "0xassetB", HomeChain: remoteChain, Weight: 1},
		{AssetContract: "0xassetD", HomeChain: 4, Weight: 1},
	}
	if err := f.fund.Initialize("0xfactory", entries); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	_, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 20)
	if err == nil {
		t.Fatal("expected error for unregistered peer")
	}
	if len(f.remote) != 0 {
		t.Error("aborted deposit must not dispatch the registered chain's leg")
	}
	if f.shares.TotalSupply() != 0 {
		t.Error("aborted deposit must not mint")
	}
}

func TestInvest_TokenSurchargeRaisesRequiredFee(t *testing.T) {
	f := newFixture(t)
	f.fees.SetTokenSurcharge(remoteChain, 5)
	mustInit(t, f)

	_, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10)
	if !errors.Is(err, protocol.ErrInsufficientGas) {
		t.Errorf("expected ErrInsufficientGas with surcharge unpaid, got %v", err)
	}
	if len(f.remote) != 0 {
		t.Error("aborted deposit must not dispatch remote legs")
	}

	minted, _, err := f.fund.Invest(context.Background(), "op-2", "alice", 100, 15)
	if err != nil {
		t.Fatalf("Invest with surcharge covered failed: %v", err)
	}
	if minted != bootstrapShares {
		t.Errorf("minted %d, want %d", minted, bootstrapShares)
	}
}

func TestInvest_DispatchFailureAborts(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)
	f.hub.FailNext(fmt.Errorf("relay down"))

	_, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10)
	if err == nil {
		t.Fatal("expected dispatch failure")
	}
	if f.holdings.Held("0xassetA") != 0 {
		t.Error("aborted deposit must revert local credits")
	}
	if f.shares.TotalSupply() != 0 {
		t.Error("aborted deposit must not mint")
	}
}

func TestRedeem_InsufficientBalance(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)
	if _, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10); err != nil {
		t.Fatalf("invest failed: %v", err)
	}

	_, err := f.fund.Redeem(context.Background(), "op-2", "alice", bootstrapShares+1, "0xrecv", 10)
	if !errors.Is(err, protocol.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.shares.BalanceOf("alice") != bootstrapShares {
		t.Error("failed redeem must not burn")
	}
}

func TestRedeem_BurnsAfterLegs(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)
	if _, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10); err != nil {
		t.Fatalf("invest failed: %v", err)
	}
	<-f.remote

	redeemShares := uint64(bootstrapShares / 10)
	legs, err := f.fund.Redeem(context.Background(), "op-2", "alice", redeemShares, "0xrecv", 10)
	if err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}
	if len(legs) != 2 {
		t.Fatalf("expected 2 legs, got %d", len(legs))
	}

	// Local leg sold a tenth of the 50 held: 5.
	if legs[0].SoldAmount != 5 {
		t.Errorf("local sold %d, want 5", legs[0].SoldAmount)
	}
	if f.holdings.Held("0xassetA") != 45 {
		t.Errorf("holdings %d, want 45", f.holdings.Held("0xassetA"))
	}
	if f.shares.BalanceOf("alice") != bootstrapShares-redeemShares {
		t.Errorf("balance %d, want %d", f.shares.BalanceOf("alice"), bootstrapShares-redeemShares)
	}

	d := <-f.remote
	p, err := message.Decode(d.Payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	sale, ok := p.(*message.RedeemSale)
	if !ok || sale.TotalSupply != bootstrapShares || sale.Shares != redeemShares {
		t.Errorf("payload %+v, want sale of %d against supply %d", p, redeemShares, bootstrapShares)
	}
}

func TestRedeem_FeeShortfallAbortsBeforeDispatch(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)
	if _, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10); err != nil {
		t.Fatalf("invest failed: %v", err)
	}
	<-f.remote

	_, err := f.fund.Redeem(context.Background(), "op-2", "alice", bootstrapShares/10, "0xrecv", 9)
	if !errors.Is(err, protocol.ErrInsufficientGas) {
		t.Errorf("expected ErrInsufficientGas, got %v", err)
	}
	if len(f.remote) != 0 {
		t.Error("aborted redeem must not dispatch the sale leg")
	}
	if f.holdings.Held("0xassetA") != 50 {
		t.Errorf("holdings %d after aborted redeem, want 50 untouched", f.holdings.Held("0xassetA"))
	}
	if f.shares.BalanceOf("alice") != bootstrapShares {
		t.Error("aborted redeem must not burn")
	}
}

func TestRedeem_DispatchFailureRestoresHoldings(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)
	if _, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10); err != nil {
		t.Fatalf("invest failed: %v", err)
	}
	<-f.remote
	f.hub.FailNext(fmt.Errorf("relay down"))

	_, err := f.fund.Redeem(context.Background(), "op-2", "alice", bootstrapShares/10, "0xrecv", 10)
	if err == nil {
		t.Fatal("expected dispatch failure")
	}
	if f.holdings.Held("0xassetA") != 50 {
		t.Errorf("holdings %d after aborted redeem, want 50 restored", f.holdings.Held("0xassetA"))
	}
	if f.shares.BalanceOf("alice") != bootstrapShares {
		t.Error("aborted redeem must not burn")
	}
}

func TestDrainJournal_RecordsSupplyMutations(t *testing.T) {
	f := newFixture(t)
	mustInit(t, f)
	if _, _, err := f.fund.Invest(context.Background(), "op-1", "alice", 100, 10); err != nil {
		t.Fatalf("invest failed: %v", err)
	}

	entries := f.fund.DrainJournal()
	if len(entries) != 1 {
		t.Fatalf("expected 1 journal entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != ledger.EntryKindBootstrapMint || e.OperationRef != "op-1" || e.Shares != bootstrapShares {
		t.Errorf("entry %+v, want bootstrap mint of %d for op-1", e, bootstrapShares)
	}
	if err := e.Validate(); err != nil {
		t.Errorf("journal entry invalid: %v", err)
	}

	if len(f.fund.DrainJournal()) != 0 {
		t.Error("drain must clear the buffer")
	}
}
