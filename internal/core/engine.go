// Package core runs the settlement engine: a single goroutine that
// serializes holder-facing operations and inbound cross-chain
// deliveries against the fund state, mirroring the one-transaction-
// at-a-time execution model of a chain.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"IndexBridge/internal/basket"
	"IndexBridge/internal/fund"
	"IndexBridge/internal/inbound"
	"IndexBridge/internal/ledger"
	"IndexBridge/internal/observability"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/registry"
	"IndexBridge/internal/router"
	"IndexBridge/internal/transport"
)

// Output is what the engine hands to the persistence worker after a
// state mutation: the journal entries it produced and, for inbound
// work, the settled delivery record backing duplicate suppression.
type Output struct {
	Journal  []ledger.JournalEntry
	Delivery *SettledDelivery
}

// SettledDelivery records one applied inbound delivery.
type SettledDelivery struct {
	DeliveryID  string
	SourceChain protocol.ChainID
	ProcessedAt time.Time
}

type command struct {
	fn   func() error
	done chan error
}

// Engine owns all mutable fund state. External callers reach it only
// through the typed methods below, which funnel into the single Run
// goroutine; nothing here needs locks.
type Engine struct {
	fund     *fund.Fund
	handler  *inbound.Handler
	rt       *router.Router
	shares   *ledger.ShareLedger
	holdings *ledger.HoldingsTracker
	prices   *ledger.PriceTable
	reg      *registry.Registry
	wrapped  *registry.WrappedAssets
	dedup    *DeliveryDeduper

	deliveries  <-chan transport.Delivery
	persistChan chan<- Output
	commands    chan command

	metrics *observability.Metrics
	now     func() time.Time
	log     zerolog.Logger
}

type Config struct {
	Fund     *fund.Fund
	Handler  *inbound.Handler
	Router   *router.Router
	Shares   *ledger.ShareLedger
	Holdings *ledger.HoldingsTracker
	Prices   *ledger.PriceTable
	Registry *registry.Registry
	Wrapped  *registry.WrappedAssets
	Deduper  *DeliveryDeduper

	Deliveries  <-chan transport.Delivery
	PersistChan chan<- Output

	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

func New(cfg Config) *Engine {
	return &Engine{
		fund:        cfg.Fund,
		handler:     cfg.Handler,
		rt:          cfg.Router,
		shares:      cfg.Shares,
		holdings:    cfg.Holdings,
		prices:      cfg.Prices,
		reg:         cfg.Registry,
		wrapped:     cfg.Wrapped,
		dedup:       cfg.Deduper,
		deliveries:  cfg.Deliveries,
		persistChan: cfg.PersistChan,
		commands:    make(chan command),
		metrics:     cfg.Metrics,
		now:         time.Now,
		log:         cfg.Logger,
	}
}

// Run processes commands and deliveries until the context is
// cancelled. Everything that mutates state happens on this goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.log.Info().Msg("settlement engine started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().Msg("settlement engine stopped")
			return
		case cmd := <-e.commands:
			cmd.done <- cmd.fn()
		case d, ok := <-e.deliveries:
			if !ok {
				e.log.Info().Msg("delivery stream closed")
				return
			}
			e.processDelivery(ctx, d)
		}
	}
}

func (e *Engine) processDelivery(ctx context.Context, d transport.Delivery) {
	start := e.now()

	if e.dedup.IsDuplicate(d.DeliveryID) {
		if e.metrics != nil {
			e.metrics.DeliveriesDuplicate.Inc()
		}
		e.log.Debug().Str("delivery_id", d.DeliveryID).Msg("duplicate delivery suppressed")
		ack(d)
		return
	}

	if err := e.handler.Handle(d); err != nil {
		if e.metrics != nil {
			e.metrics.DeliveriesRejected.WithLabelValues(rejectReason(err)).Inc()
		}
		e.log.Warn().Err(err).Str("delivery_id", d.DeliveryID).Msg("delivery rejected")
		// Rejections are deterministic; redelivering the same frame can
		// never succeed, so it is acked rather than nakked.
		ack(d)
		return
	}

	e.dedup.MarkProcessed(d.DeliveryID)
	e.emit(ctx, Output{
		Journal: e.fund.DrainJournal(),
		Delivery: &SettledDelivery{
			DeliveryID:  d.DeliveryID,
			SourceChain: d.SourceChain,
			ProcessedAt: e.now(),
		},
	})
	ack(d)

	if e.metrics != nil {
		e.metrics.DeliveriesApplied.Inc()
		e.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	}
	e.observeState()
}

// emit hands an output to persistence with a blocking send: the engine
// stalls until the worker drains, so no applied mutation is lost.
func (e *Engine) emit(ctx context.Context, out Output) {
	if e.persistChan == nil {
		return
	}
	if len(out.Journal) == 0 && out.Delivery == nil {
		return
	}
	select {
	case e.persistChan <- out:
	case <-ctx.Done():
	}
}

func (e *Engine) observeState() {
	if e.metrics == nil {
		return
	}
	e.metrics.ShareSupply.Set(float64(e.fund.TotalSupply()))
	e.metrics.HolderCount.Set(float64(e.fund.HolderCount()))
	e.metrics.DispatchesInFlight.Set(float64(len(e.rt.InFlightRequests())))
}

// exec runs fn on the engine goroutine and waits for its result.
func (e *Engine) exec(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	select {
	case e.commands <- command{fn: fn, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) instrument(op string, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	if err != nil {
		e.metrics.OperationsRejected.WithLabelValues(op, rejectReason(err)).Inc()
		return
	}
	e.metrics.OperationsApplied.WithLabelValues(op).Inc()
	e.metrics.OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// InitializeFund fixes the fund's basket. Owner-gated, once only.
func (e *Engine) InitializeFund(ctx context.Context, caller protocol.Address, entries []basket.Entry) error {
	start := e.now()
	err := e.exec(ctx, func() error {
		return e.fund.Initialize(caller, entries)
	})
	e.instrument("initialize", start, err)
	return err
}

// Invest settles a deposit and returns the minted share amount.
func (e *Engine) Invest(ctx context.Context, investor protocol.Address, amount, fee uint64) (uint64, error) {
	start := e.now()
	opRef := uuid.NewString()
	var minted uint64
	err := e.exec(ctx, func() error {
		m, _, err := e.fund.Invest(ctx, opRef, investor, amount, fee)
		if err != nil {
			return err
		}
		minted = m
		e.emit(ctx, Output{Journal: e.fund.DrainJournal()})
		e.observeState()
		return nil
	})
	e.instrument("invest", start, err)
	return minted, err
}

// Redeem settles a redemption for the holder.
func (e *Engine) Redeem(ctx context.Context, holder protocol.Address, shares uint64, receiver protocol.Address, fee uint64) error {
	start := e.now()
	opRef := uuid.NewString()
	err := e.exec(ctx, func() error {
		if _, err := e.fund.Redeem(ctx, opRef, holder, shares, receiver, fee); err != nil {
			return err
		}
		e.emit(ctx, Output{Journal: e.fund.DrainJournal()})
		e.observeState()
		return nil
	})
	e.instrument("redeem", start, err)
	return err
}

// Migrate moves a holder's position to another chain and returns the
// dispatch's delivery identifier.
func (e *Engine) Migrate(ctx context.Context, holder protocol.Address, shares uint64, targetChain protocol.ChainID, targetFund protocol.Address, fee uint64) (string, error) {
	start := e.now()
	opRef := uuid.NewString()
	var deliveryID string
	err := e.exec(ctx, func() error {
		id, err := e.fund.Migrate(ctx, opRef, holder, shares, targetChain, targetFund, fee)
		if err != nil {
			return err
		}
		deliveryID = id
		e.emit(ctx, Output{Journal: e.fund.DrainJournal()})
		e.observeState()
		return nil
	})
	e.instrument("migrate", start, err)
	return deliveryID, err
}

// SetPeers registers the counterpart addresses for a chain.
func (e *Engine) SetPeers(ctx context.Context, caller protocol.Address, chain protocol.ChainID, peers registry.PeerSet) error {
	return e.exec(ctx, func() error {
		return e.reg.SetPeers(caller, chain, peers)
	})
}

// RegisterWrappedAsset attests a remote token's local representation.
func (e *Engine) RegisterWrappedAsset(ctx context.Context, caller protocol.Address, homeChain protocol.ChainID, homeAddress, local protocol.Address) error {
	return e.exec(ctx, func() error {
		return e.wrapped.Register(caller, homeChain, homeAddress, local)
	})
}

// UpdatePrice records a share price pushed by the price authority.
func (e *Engine) UpdatePrice(ctx context.Context, caller, fundAddr protocol.Address, price uint64) error {
	return e.exec(ctx, func() error {
		return e.rt.UpdatePrice(caller, fundAddr, price)
	})
}

// QuoteDepositCost prices the messaging leg of a deposit to a chain.
func (e *Engine) QuoteDepositCost(ctx context.Context, target protocol.ChainID) (uint64, error) {
	var fee uint64
	err := e.exec(ctx, func() error {
		f, err := e.fund.QuoteDepositCost(target)
		fee = f
		return err
	})
	return fee, err
}

// QuoteMessageCost prices a plain message to a chain.
func (e *Engine) QuoteMessageCost(ctx context.Context, target protocol.ChainID) (uint64, error) {
	var fee uint64
	err := e.exec(ctx, func() error {
		f, err := e.fund.QuoteMessageCost(target)
		fee = f
		return err
	})
	return fee, err
}

// BalanceOf reads a holder's share balance.
func (e *Engine) BalanceOf(ctx context.Context, holder protocol.Address) (uint64, error) {
	var bal uint64
	err := e.exec(ctx, func() error {
		bal = e.fund.BalanceOf(holder)
		return nil
	})
	return bal, err
}

// FundStatus is a consistent read of the fund's aggregate state.
type FundStatus struct {
	Initialized bool
	TotalSupply uint64
	HolderCount int
	InFlight    int
}

// Status reads the fund's aggregate state.
func (e *Engine) Status(ctx context.Context) (FundStatus, error) {
	var s FundStatus
	err := e.exec(ctx, func() error {
		s = FundStatus{
			Initialized: e.fund.Initialized(),
			TotalSupply: e.fund.TotalSupply(),
			HolderCount: e.fund.HolderCount(),
			InFlight:    len(e.rt.InFlightRequests()),
		}
		return nil
	})
	return s, err
}

// SnapshotState captures the engine's in-memory state. Must be called
// through the engine goroutine; see Snapshot.
type SnapshotState struct {
	Balances    map[protocol.Address]uint64
	InitialMint bool
	Holdings    map[protocol.Address]uint64
	Prices      map[protocol.Address]uint64
	Peers       map[protocol.ChainID]registry.PeerSet
	Basket      []basket.Entry
	Deliveries  []string
}

// Snapshot captures the current state for the snapshot writer.
func (e *Engine) Snapshot(ctx context.Context) (*SnapshotState, error) {
	var snap *SnapshotState
	err := e.exec(ctx, func() error {
		snap = &SnapshotState{
			Balances:    e.shares.Snapshot(),
			InitialMint: e.shares.Initialized(),
			Holdings:    e.holdings.Snapshot(),
			Prices:      e.prices.Snapshot(),
			Peers:       e.reg.Snapshot(),
			Deliveries:  e.dedup.Keys(),
		}
		if b := e.fund.Basket(); b != nil {
			snap.Basket = b.Entries()
		}
		return nil
	})
	return snap, err
}

// Restore loads a snapshot into the engine. Only valid before Run
// starts; it touches state directly.
func (e *Engine) Restore(owner protocol.Address, snap *SnapshotState) error {
	e.shares.Restore(snap.Balances, snap.InitialMint)
	e.holdings.Restore(snap.Holdings)
	e.prices.Restore(snap.Prices)
	e.reg.Restore(snap.Peers)
	e.dedup.Warm(snap.Deliveries)
	if len(snap.Basket) > 0 {
		if err := e.fund.Initialize(owner, snap.Basket); err != nil {
			return fmt.Errorf("restore basket: %w", err)
		}
	}
	e.log.Info().
		Int("holders", e.fund.HolderCount()).
		Uint64("supply", e.fund.TotalSupply()).
		Msg("state restored from snapshot")
	return nil
}

func ack(d transport.Delivery) {
	if d.Ack != nil {
		d.Ack()
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, protocol.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, protocol.ErrMalformedMessage):
		return "malformed"
	case errors.Is(err, protocol.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, protocol.ErrInsufficientGas):
		return "insufficient_gas"
	case errors.Is(err, protocol.ErrInvalidBasket):
		return "invalid_basket"
	case errors.Is(err, protocol.ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, protocol.ErrDivisionByZero):
		return "division_by_zero"
	default:
		return "other"
	}
}
