package migration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

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
	targetChain protocol.ChainID = 2
)

type fixture struct {
	coord  *migration.Coordinator
	shares *ledger.ShareLedger
	hub    *transport.Loopback
	remote <-chan transport.Delivery
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.New("0xowner")
	if err := reg.SetPeers("0xowner", targetChain, registry.PeerSet{
		Fund: "0xfund2", Router: "0xrouter2", Migrator: "0xmig2",
	}); err != nil {
		t.Fatalf("SetPeers failed: %v", err)
	}

	shares := ledger.NewShareLedger(1000)
	if _, err := shares.Deposit("alice", 1, 0); err != nil {
		t.Fatalf("seed deposit failed: %v", err)
	}

	hub := transport.NewLoopback("0xrelay")
	remote := hub.Register(targetChain)

	coord := migration.New(migration.Config{
		SelfChain: selfChain,
		Address:   "0xmig1",
		Shares:    shares,
		Registry:  reg,
		Sender:    hub.Endpoint(selfChain, "0xmig1"),
		Quoter:    transport.NewFeeTable(map[protocol.ChainID]uint64{targetChain: 10}),
		Logger:    zerolog.Nop(),
	})
	return &fixture{coord: coord, shares: shares, hub: hub, remote: remote}
}

func TestMigrateOut_BurnsAndDispatches(t *testing.T) {
	f := newFixture(t)

	deliveryID, err := f.coord.MigrateOut(context.Background(), "alice", 400, targetChain, "0xfund2", router.NewFeeBudget(10))
	if err != nil {
		t.Fatalf("MigrateOut failed: %v", err)
	}
	if deliveryID == "" {
		t.Error("expected a delivery id")
	}
	if f.shares.BalanceOf("alice") != 600 {
		t.Errorf("balance %d, want 600", f.shares.BalanceOf("alice"))
	}

	d := <-f.remote
	if d.TargetAddress != "0xmig2" {
		t.Errorf("target %s, want peer migrator 0xmig2", d.TargetAddress)
	}
	p, err := message.Decode(d.Payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	m, ok := p.(*message.MigrationMint)
	if !ok || m.Holder != "alice" || m.Shares != 400 {
		t.Errorf("payload %+v, want mint of 400 for alice", p)
	}
}

func TestMigrateOut_InsufficientBalance(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.MigrateOut(context.Background(), "alice", 1001, targetChain, "0xfund2", router.NewFeeBudget(10))
	if !errors.Is(err, protocol.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.shares.BalanceOf("alice") != 1000 {
		t.Error("failed migration must not change balance")
	}
}

func TestMigrateOut_InsufficientGas(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.MigrateOut(context.Background(), "alice", 400, targetChain, "0xfund2", router.NewFeeBudget(9))
	if !errors.Is(err, protocol.ErrInsufficientGas) {
		t.Errorf("expected ErrInsufficientGas, got %v", err)
	}
	if f.shares.BalanceOf("alice") != 1000 {
		t.Error("failed migration must not burn")
	}
}

func TestMigrateOut_DispatchFailureRevertsBurn(t *testing.T) {
	f := newFixture(t)
	f.hub.FailNext(fmt.Errorf("relay down"))

	_, err := f.coord.MigrateOut(context.Background(), "alice", 400, targetChain, "0xfund2", router.NewFeeBudget(10))
	if err == nil {
		t.Fatal("expected dispatch failure")
	}
	if f.shares.BalanceOf("alice") != 1000 {
		t.Errorf("balance %d after rejected dispatch, want burn reverted to 1000", f.shares.BalanceOf("alice"))
	}
	if f.shares.TotalSupply() != 1000 {
		t.Errorf("supply %d, want 1000", f.shares.TotalSupply())
	}
}

func TestAcceptMint_SenderGated(t *testing.T) {
	f := newFixture(t)
	reg := registry.New("0xowner")
	if err := reg.SetPeers("0xowner", selfChain, registry.PeerSet{Migrator: "0xmig1"}); err != nil {
		t.Fatalf("SetPeers failed: %v", err)
	}

	target := migration.New(migration.Config{
		SelfChain: targetChain,
		Address:   "0xmig2",
		Shares:    f.shares,
		Registry:  reg,
		Sender:    f.hub.Endpoint(targetChain, "0xmig2"),
		Quoter:    transport.NewFeeTable(nil),
		Logger:    zerolog.Nop(),
	})

	m := &message.MigrationMint{Holder: "bob", Shares: 400, TargetFund: "0xfund2"}

	err := target.AcceptMint(selfChain, "0ximposter", m)
	if !errors.Is(err, protocol.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if f.shares.BalanceOf("bob") != 0 {
		t.Error("rejected mint must not credit shares")
	}

	if err := target.AcceptMint(selfChain, "0xmig1", m); err != nil {
		t.Fatalf("AcceptMint failed: %v", err)
	}
	if f.shares.BalanceOf("bob") != 400 {
		t.Errorf("bob balance %d, want 400", f.shares.BalanceOf("bob"))
	}
}
