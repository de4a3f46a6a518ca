// Package registry holds the cross-chain addressing state: which peer
// fund, router and migrator serve each chain, and how remote asset
// addresses map to their local wrapped representations.
package registry

import (
	"fmt"

	"IndexBridge/internal/protocol"
)

// PeerSet is the trio of counterpart addresses registered for one chain.
type PeerSet struct {
	Fund     protocol.Address
	Router   protocol.Address
	Migrator protocol.Address
}

// Registry maps chain ids to peer contract addresses. Mutation is
// gated on the configured owner identity; reads are open to any
// component that needs cross-chain addressing.
type Registry struct {
	owner protocol.Address
	peers map[protocol.ChainID]PeerSet
}

func New(owner protocol.Address) *Registry {
	return &Registry{
		owner: owner,
		peers: make(map[protocol.ChainID]PeerSet),
	}
}

// SetPeers registers or replaces the peer set for a chain. Only the
// owner may call it.
func (r *Registry) SetPeers(caller protocol.Address, chain protocol.ChainID, peers PeerSet) error {
	if caller != r.owner {
		return fmt.Errorf("set peers for chain %d by %s: %w", chain, caller, protocol.ErrUnauthorized)
	}
	r.peers[chain] = peers
	return nil
}

// Peers returns the registered peer set for a chain.
func (r *Registry) Peers(chain protocol.ChainID) (PeerSet, bool) {
	p, ok := r.peers[chain]
	return p, ok
}

// RouterFor returns the registered router address for a chain, or the
// zero address when none is registered.
func (r *Registry) RouterFor(chain protocol.ChainID) protocol.Address {
	return r.peers[chain].Router
}

// MigratorFor returns the registered migrator address for a chain, or
// the zero address when none is registered.
func (r *Registry) MigratorFor(chain protocol.ChainID) protocol.Address {
	return r.peers[chain].Migrator
}

// FundFor returns the registered fund address for a chain, or the zero
// address when none is registered.
func (r *Registry) FundFor(chain protocol.ChainID) protocol.Address {
	return r.peers[chain].Fund
}

// Snapshot returns a copy of the peer table.
func (r *Registry) Snapshot() map[protocol.ChainID]PeerSet {
	out := make(map[protocol.ChainID]PeerSet, len(r.peers))
	for k, v := range r.peers {
		out[k] = v
	}
	return out
}

// Restore replaces the peer table from a snapshot.
func (r *Registry) Restore(peers map[protocol.ChainID]PeerSet) {
	r.peers = make(map[protocol.ChainID]PeerSet, len(peers))
	for k, v := range peers {
		r.peers[k] = v
	}
}

// WrappedAssets resolves a token's home-chain address to its local
// wrapped representation. Mirrors the token bridge's attestation
// registry; owner-gated like the peer table.
type WrappedAssets struct {
	owner   protocol.Address
	wrapped map[assetKey]protocol.Address
}

type assetKey struct {
	homeChain   protocol.ChainID
	homeAddress protocol.Address
}

func NewWrappedAssets(owner protocol.Address) *WrappedAssets {
	return &WrappedAssets{
		owner:   owner,
		wrapped: make(map[assetKey]protocol.Address),
	}
}

func (w *WrappedAssets) Register(caller protocol.Address, homeChain protocol.ChainID, homeAddress, local protocol.Address) error {
	if caller != w.owner {
		return fmt.Errorf("register wrapped asset by %s: %w", caller, protocol.ErrUnauthorized)
	}
	w.wrapped[assetKey{homeChain, homeAddress}] = local
	return nil
}

// Resolve returns the local address for a remote asset, or false when
// the asset has never been attested here.
func (w *WrappedAssets) Resolve(homeChain protocol.ChainID, homeAddress protocol.Address) (protocol.Address, bool) {
	local, ok := w.wrapped[assetKey{homeChain, homeAddress}]
	return local, ok
}
