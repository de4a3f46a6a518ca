package registry_test

import (
	"errors"
	"testing"

	"IndexBridge/internal/protocol"
	"IndexBridge/internal/registry"
)

func TestSetPeers_OwnerGated(t *testing.T) {
	r := registry.New("0xowner")

	err := r.SetPeers("0xintruder", 2, registry.PeerSet{Fund: "0xfund"})
	if !errors.Is(err, protocol.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
	if _, ok := r.Peers(2); ok {
		t.Error("rejected mutation must not register peers")
	}

	if err := r.SetPeers("0xowner", 2, registry.PeerSet{Fund: "0xfund", Router: "0xrouter", Migrator: "0xmig"}); err != nil {
		t.Fatalf("owner SetPeers failed: %v", err)
	}
	if r.FundFor(2) != "0xfund" || r.RouterFor(2) != "0xrouter" || r.MigratorFor(2) != "0xmig" {
		t.Error("registered peers not readable")
	}
}

func TestPeers_UnknownChainIsZero(t *testing.T) {
	r := registry.New("0xowner")
	if !r.RouterFor(99).Zero() {
		t.Error("unregistered chain should resolve to the zero address")
	}
}

func TestWrappedAssets_Resolve(t *testing.T) {
	w := registry.NewWrappedAssets("0xowner")

	err := w.Register("0xintruder", 2, "0xhome", "0xlocal")
	if !errors.Is(err, protocol.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	if err := w.Register("0xowner", 2, "0xhome", "0xlocal"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	local, ok := w.Resolve(2, "0xhome")
	if !ok || local != "0xlocal" {
		t.Errorf("resolved (%s, %v), want (0xlocal, true)", local, ok)
	}

	if _, ok := w.Resolve(3, "0xhome"); ok {
		t.Error("unattested asset should not resolve")
	}
}
