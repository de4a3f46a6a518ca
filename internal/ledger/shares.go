package ledger

import (
	"fmt"

	amount "IndexBridge/internal/math"
	"IndexBridge/internal/protocol"
)

// ShareLedger tracks fund-share balances for one chain's fund replica.
// Not thread-safe; only accessed from the single-threaded settlement core.
type ShareLedger struct {
	balances    map[protocol.Address]uint64
	totalSupply uint64
	holderCount int

	// bootstrapShares is minted to the very first depositor regardless
	// of deposit size. Known simplification: the first depositor's value
	// is decoupled from the deposit amount. This is a bootstrap policy,
	// not a valuation model.
	bootstrapShares uint64
	initialMint     bool
}

func NewShareLedger(bootstrapShares uint64) *ShareLedger {
	return &ShareLedger{
		balances:        make(map[protocol.Address]uint64),
		bootstrapShares: bootstrapShares,
	}
}

// Deposit mints shares for a settled deposit. The first deposit ever
// recorded mints the bootstrap constant and permanently flips the
// initial-mint flag; every later deposit mints amountIn / price.
// A zero price on the subsequent path fails with ErrDivisionByZero.
func (l *ShareLedger) Deposit(holder protocol.Address, amountIn, price uint64) (uint64, error) {
	if !l.initialMint {
		l.initialMint = true
		l.mint(holder, l.bootstrapShares)
		return l.bootstrapShares, nil
	}

	if price == 0 {
		return 0, fmt.Errorf("share price: %w", protocol.ErrDivisionByZero)
	}
	minted := amountIn / price
	l.mint(holder, minted)
	return minted, nil
}

// Mint credits shares unconditionally. Used by migration-mint, where
// the burn already happened on the source chain.
func (l *ShareLedger) Mint(holder protocol.Address, shares uint64) {
	l.mint(holder, shares)
}

// Burn debits shares from a holder. Burning more than the recorded
// balance fails with ErrInsufficientBalance and mutates nothing.
func (l *ShareLedger) Burn(holder protocol.Address, shares uint64) error {
	bal := l.balances[holder]
	if shares > bal {
		return fmt.Errorf("burn %d from %s with balance %d: %w",
			shares, holder, bal, protocol.ErrInsufficientBalance)
	}

	remaining := bal - shares
	if remaining == 0 {
		delete(l.balances, holder)
		if bal > 0 {
			l.holderCount--
		}
	} else {
		l.balances[holder] = remaining
	}
	l.totalSupply -= shares
	return nil
}

// SellAmount computes the proportional slice of a held asset balance
// for a redemption of `shares` out of the current total supply:
// shares * held / totalSupply, truncating. Proportionality is against
// current holdings, not the original deposit, so redemption value
// accrues or dilutes with market moves.
func (l *ShareLedger) SellAmount(shares, held uint64) (uint64, error) {
	if l.totalSupply == 0 {
		return 0, fmt.Errorf("total supply: %w", protocol.ErrDivisionByZero)
	}
	return amount.MulDiv(shares, held, l.totalSupply)
}

func (l *ShareLedger) mint(holder protocol.Address, shares uint64) {
	if shares == 0 {
		return
	}
	if l.balances[holder] == 0 {
		l.holderCount++
	}
	l.balances[holder] += shares
	l.totalSupply += shares
}

// BalanceOf returns the holder's share balance.
func (l *ShareLedger) BalanceOf(holder protocol.Address) uint64 {
	return l.balances[holder]
}

// TotalSupply returns the outstanding share supply on this chain.
func (l *ShareLedger) TotalSupply() uint64 {
	return l.totalSupply
}

// HolderCount returns the number of addresses with a positive balance.
func (l *ShareLedger) HolderCount() int {
	return l.holderCount
}

// Initialized reports whether the bootstrap mint has happened.
func (l *ShareLedger) Initialized() bool {
	return l.initialMint
}

// Snapshot returns a copy of all balances.
func (l *ShareLedger) Snapshot() map[protocol.Address]uint64 {
	out := make(map[protocol.Address]uint64, len(l.balances))
	for k, v := range l.balances {
		out[k] = v
	}
	return out
}

// Restore replaces the ledger state from a snapshot.
func (l *ShareLedger) Restore(balances map[protocol.Address]uint64, initialMint bool) {
	l.balances = make(map[protocol.Address]uint64, len(balances))
	l.totalSupply = 0
	l.holderCount = 0
	for holder, bal := range balances {
		if bal == 0 {
			continue
		}
		l.balances[holder] = bal
		l.totalSupply += bal
		l.holderCount++
	}
	l.initialMint = initialMint
}
