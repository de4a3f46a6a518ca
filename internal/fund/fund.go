// Package fund ties the basket, share ledger, router and migration
// coordinator together into the per-chain fund replica and exposes the
// holder-facing operations.
package fund

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"IndexBridge/internal/basket"
	"IndexBridge/internal/ledger"
	"IndexBridge/internal/message"
	"IndexBridge/internal/migration"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/router"
	"IndexBridge/internal/transport"
)

// Fund is one chain's replica of the index fund. All methods are
// called from the settlement core's single goroutine; no locking.
type Fund struct {
	chainID protocol.ChainID
	address protocol.Address
	owner   protocol.Address

	basket      *basket.Basket
	initialized bool

	shares   *ledger.ShareLedger
	holdings *ledger.HoldingsTracker
	router   *router.Router
	coord    *migration.Coordinator
	quoter   transport.Quoter

	journal []ledger.JournalEntry
	now     func() time.Time
	log     zerolog.Logger
}

type Config struct {
	ChainID protocol.ChainID
	Address protocol.Address
	Owner   protocol.Address

	Shares   *ledger.ShareLedger
	Holdings *ledger.HoldingsTracker
	Router   *router.Router
	Migrator *migration.Coordinator
	Quoter   transport.Quoter

	Logger zerolog.Logger
}

func New(cfg Config) *Fund {
	return &Fund{
		chainID:  cfg.ChainID,
		address:  cfg.Address,
		owner:    cfg.Owner,
		shares:   cfg.Shares,
		holdings: cfg.Holdings,
		router:   cfg.Router,
		coord:    cfg.Migrator,
		quoter:   cfg.Quoter,
		now:      time.Now,
		log:      cfg.Logger,
	}
}

// Initialize fixes the fund's basket. Only the owning factory identity
// may call it, and only once; the initialized flag never resets.
func (f *Fund) Initialize(caller protocol.Address, entries []basket.Entry) error {
	if caller != f.owner {
		return fmt.Errorf("initialize by %s: %w", caller, protocol.ErrUnauthorized)
	}
	if f.initialized {
		return fmt.Errorf("fund %s: %w", f.address, protocol.ErrAlreadyInitialized)
	}

	b, err := basket.New(entries)
	if err != nil {
		return err
	}
	f.basket = b
	f.initialized = true
	f.log.Info().Int("entries", b.Len()).Msg("fund initialized")
	return nil
}

// Initialized reports whether the basket has been fixed.
func (f *Fund) Initialized() bool {
	return f.initialized
}

// Basket returns the fund's basket, or nil before initialization.
func (f *Fund) Basket() *basket.Basket {
	return f.basket
}

// Invest settles a deposit: allocate across the basket, run every
// settlement leg, then mint shares. fee is the messaging value the
// investor attached for remote legs. Any leg failure aborts the whole
// deposit with local credits reverted; nothing is minted.
func (f *Fund) Invest(ctx context.Context, opRef string, investor protocol.Address, amount, fee uint64) (uint64, []router.DepositLeg, error) {
	if !f.initialized {
		return 0, nil, fmt.Errorf("fund %s not initialized: %w", f.address, protocol.ErrInvalidBasket)
	}

	alloc := basket.Allocate(amount, f.basket)

	// Every deterministic failure must surface before the first leg
	// runs: dispatched remote legs cannot be recalled, and local swaps
	// should not happen for a deposit that cannot mint.
	if f.shares.Initialized() && f.router.Price(f.address) == 0 {
		return 0, nil, fmt.Errorf("share price: %w", protocol.ErrDivisionByZero)
	}
	if err := f.router.PreflightDeposit(f.basket.Entries(), alloc, fee); err != nil {
		return 0, nil, err
	}

	budget := router.NewFeeBudget(fee)
	legs := make([]router.DepositLeg, 0, f.basket.Len())
	for i, entry := range f.basket.Entries() {
		if alloc[i] == 0 {
			continue
		}
		leg, err := f.router.RouteDeposit(ctx, entry, alloc[i], budget)
		if err != nil {
			f.revertDepositLegs(legs)
			return 0, nil, err
		}
		legs = append(legs, leg)
	}

	bootstrap := !f.shares.Initialized()
	minted, err := f.shares.Deposit(investor, amount, f.router.Price(f.address))
	if err != nil {
		f.revertDepositLegs(legs)
		return 0, nil, err
	}

	kind := ledger.EntryKindDepositMint
	if bootstrap {
		kind = ledger.EntryKindBootstrapMint
	}
	f.record(opRef, kind, investor, minted)

	f.log.Info().
		Str("investor", string(investor)).
		Uint64("amount", amount).
		Uint64("minted", minted).
		Int("legs", len(legs)).
		Msg("deposit settled")
	return minted, legs, nil
}

// Redeem settles a redemption: verify the balance, run every
// settlement leg against the pre-burn supply snapshot, then burn. Any
// leg failure aborts with local holdings restored and nothing burned.
func (f *Fund) Redeem(ctx context.Context, opRef string, holder protocol.Address, shares uint64, receiver protocol.Address, fee uint64) ([]router.RedeemLeg, error) {
	if !f.initialized {
		return nil, fmt.Errorf("fund %s not initialized: %w", f.address, protocol.ErrInvalidBasket)
	}
	if bal := f.shares.BalanceOf(holder); shares > bal {
		return nil, fmt.Errorf("redeem %d from %s with balance %d: %w",
			shares, holder, bal, protocol.ErrInsufficientBalance)
	}

	if err := f.router.PreflightRedeem(f.basket.Entries(), fee); err != nil {
		return nil, err
	}

	totalSupply := f.shares.TotalSupply()
	budget := router.NewFeeBudget(fee)

	legs := make([]router.RedeemLeg, 0, f.basket.Len())
	for _, entry := range f.basket.Entries() {
		leg, err := f.router.RouteRedeem(ctx, entry, shares, totalSupply, receiver, budget)
		if err != nil {
			f.revertRedeemLegs(legs)
			return nil, err
		}
		legs = append(legs, leg)
	}

	if err := f.shares.Burn(holder, shares); err != nil {
		f.revertRedeemLegs(legs)
		return nil, err
	}
	f.record(opRef, ledger.EntryKindRedeemBurn, holder, shares)

	f.log.Info().
		Str("holder", string(holder)).
		Uint64("shares", shares).
		Int("legs", len(legs)).
		Msg("redemption settled")
	return legs, nil
}

// Migrate moves a holder's position to another chain's replica.
func (f *Fund) Migrate(ctx context.Context, opRef string, holder protocol.Address, shares uint64, targetChain protocol.ChainID, targetFund protocol.Address, fee uint64) (string, error) {
	deliveryID, err := f.coord.MigrateOut(ctx, holder, shares, targetChain, targetFund, router.NewFeeBudget(fee))
	if err != nil {
		return "", err
	}
	f.record(opRef, ledger.EntryKindMigrationBurn, holder, shares)
	return deliveryID, nil
}

// AcceptMigrationMint credits shares burned on another chain.
func (f *Fund) AcceptMigrationMint(opRef string, sourceChain protocol.ChainID, sourceAddress protocol.Address, holder protocol.Address, shares uint64) error {
	m := &message.MigrationMint{Holder: holder, Shares: shares, TargetFund: f.address}
	if err := f.coord.AcceptMint(sourceChain, sourceAddress, m); err != nil {
		return err
	}
	f.record(opRef, ledger.EntryKindMigrationMint, holder, shares)
	return nil
}

// QuoteDepositCost prices the messaging leg of a deposit that touches
// the given chain. Deposit legs carry an attached token transfer, so
// the quote includes the token-delivery surcharge.
func (f *Fund) QuoteDepositCost(target protocol.ChainID) (uint64, error) {
	return f.quoter.QuoteTokenDeliveryFee(target)
}

// QuoteMessageCost prices a plain message to the given chain.
func (f *Fund) QuoteMessageCost(target protocol.ChainID) (uint64, error) {
	return f.quoter.QuoteDeliveryFee(target)
}

// BalanceOf returns a holder's share balance.
func (f *Fund) BalanceOf(holder protocol.Address) uint64 {
	return f.shares.BalanceOf(holder)
}

// TotalSupply returns the share supply on this chain.
func (f *Fund) TotalSupply() uint64 {
	return f.shares.TotalSupply()
}

// HolderCount returns the number of positive-balance holders.
func (f *Fund) HolderCount() int {
	return f.shares.HolderCount()
}

// DrainJournal hands pending journal entries to the persistence layer
// and clears the buffer.
func (f *Fund) DrainJournal() []ledger.JournalEntry {
	out := f.journal
	f.journal = nil
	return out
}

func (f *Fund) record(opRef string, kind ledger.EntryKind, holder protocol.Address, shares uint64) {
	f.journal = append(f.journal, ledger.NewJournalEntry(
		opRef, kind, holder, shares,
		f.shares.TotalSupply(), f.shares.HolderCount(), f.now().UnixNano(),
	))
}

func (f *Fund) revertDepositLegs(legs []router.DepositLeg) {
	for _, leg := range legs {
		if !leg.Local {
			continue
		}
		if err := f.holdings.Debit(leg.Asset, leg.AmountOut); err != nil {
			f.log.Error().Err(err).Str("asset", string(leg.Asset)).Msg("deposit leg revert failed")
		}
	}
}

func (f *Fund) revertRedeemLegs(legs []router.RedeemLeg) {
	for _, leg := range legs {
		if !leg.Local {
			continue
		}
		f.holdings.Credit(leg.Asset, leg.SoldAmount)
	}
}
