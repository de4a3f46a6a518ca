package ledger

import (
	"fmt"

	"IndexBridge/internal/protocol"
)

// HoldingsTracker records the fund's on-chain token inventory per asset
// contract. Credits come from settled deposit legs and inbound forwards;
// debits come from redemption sells and deposit-leg reverts.
type HoldingsTracker struct {
	held map[protocol.Address]uint64
}

func NewHoldingsTracker() *HoldingsTracker {
	return &HoldingsTracker{held: make(map[protocol.Address]uint64)}
}

func (h *HoldingsTracker) Credit(token protocol.Address, amount uint64) {
	if amount == 0 {
		return
	}
	h.held[token] += amount
}

// Debit removes inventory. Debiting below zero fails with
// ErrInsufficientBalance and mutates nothing.
func (h *HoldingsTracker) Debit(token protocol.Address, amount uint64) error {
	bal := h.held[token]
	if amount > bal {
		return fmt.Errorf("debit %d of %s with holdings %d: %w",
			amount, token, bal, protocol.ErrInsufficientBalance)
	}
	if bal == amount {
		delete(h.held, token)
	} else {
		h.held[token] = bal - amount
	}
	return nil
}

// Held returns the recorded inventory for a token.
func (h *HoldingsTracker) Held(token protocol.Address) uint64 {
	return h.held[token]
}

// Snapshot returns a copy of all holdings.
func (h *HoldingsTracker) Snapshot() map[protocol.Address]uint64 {
	out := make(map[protocol.Address]uint64, len(h.held))
	for k, v := range h.held {
		out[k] = v
	}
	return out
}

// Restore replaces the tracker state from a snapshot.
func (h *HoldingsTracker) Restore(held map[protocol.Address]uint64) {
	h.held = make(map[protocol.Address]uint64, len(held))
	for token, bal := range held {
		if bal == 0 {
			continue
		}
		h.held[token] = bal
	}
}
