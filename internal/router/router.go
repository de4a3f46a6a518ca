// Package router decides, per basket entry, whether settlement runs as
// a local swap or as a cross-chain dispatch, and owns the price table
// fed by the authorized price updater.
package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"IndexBridge/internal/basket"
	"IndexBridge/internal/exchange"
	"IndexBridge/internal/ledger"
	amount "IndexBridge/internal/math"
	"IndexBridge/internal/message"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/registry"
	"IndexBridge/internal/transport"
)

// FeeBudget is the messaging value the caller attached to an
// operation. Each remote leg draws its quoted delivery fee from it.
type FeeBudget struct {
	remaining uint64
}

func NewFeeBudget(value uint64) *FeeBudget {
	return &FeeBudget{remaining: value}
}

func (b *FeeBudget) Remaining() uint64 { return b.remaining }

// Draw consumes a quoted fee, failing with ErrInsufficientGas when the
// budget cannot cover it.
func (b *FeeBudget) Draw(fee uint64) error {
	if fee > b.remaining {
		return fmt.Errorf("fee %d exceeds remaining budget %d: %w",
			fee, b.remaining, protocol.ErrInsufficientGas)
	}
	b.remaining -= fee
	return nil
}

// DepositLeg records what one settled deposit entry did, so the caller
// can revert local credits if a later leg aborts the operation.
type DepositLeg struct {
	Local      bool
	Asset      protocol.Address
	AmountIn   uint64
	AmountOut  uint64
	DeliveryID string
}

// RedeemLeg records what one settled redeem entry did.
type RedeemLeg struct {
	Local      bool
	Asset      protocol.Address
	SoldAmount uint64
	ProceedsTo protocol.Address
	DeliveryID string
}

// InFlight is one dispatched, not-yet-confirmed cross-chain request.
// Completion on the remote chain is never observable here; entries
// exist for operational visibility only.
type InFlight struct {
	Kind        protocol.RequestKind
	TargetChain protocol.ChainID
	Dispatched  time.Time
}

// Router executes settlement legs for one fund replica.
type Router struct {
	selfChain      protocol.ChainID
	fundAddress    protocol.Address
	purchaseToken  protocol.Address
	priceAuthority protocol.Address

	holdings *ledger.HoldingsTracker
	prices   *ledger.PriceTable
	exch     exchange.Exchange
	sender   transport.Sender
	quoter   transport.Quoter
	reg      *registry.Registry
	wrapped  *registry.WrappedAssets

	inflight map[string]InFlight
	now      func() time.Time
	log      zerolog.Logger
}

type Config struct {
	SelfChain      protocol.ChainID
	FundAddress    protocol.Address
	PurchaseToken  protocol.Address
	PriceAuthority protocol.Address

	Holdings *ledger.HoldingsTracker
	Prices   *ledger.PriceTable
	Exchange exchange.Exchange
	Sender   transport.Sender
	Quoter   transport.Quoter
	Registry *registry.Registry
	Wrapped  *registry.WrappedAssets

	Logger zerolog.Logger
}

func New(cfg Config) *Router {
	return &Router{
		selfChain:      cfg.SelfChain,
		fundAddress:    cfg.FundAddress,
		purchaseToken:  cfg.PurchaseToken,
		priceAuthority: cfg.PriceAuthority,
		holdings:       cfg.Holdings,
		prices:         cfg.Prices,
		exch:           cfg.Exchange,
		sender:         cfg.Sender,
		quoter:         cfg.Quoter,
		reg:            cfg.Registry,
		wrapped:        cfg.Wrapped,
		inflight:       make(map[string]InFlight),
		now:            time.Now,
		log:            cfg.Logger,
	}
}

// RouteDeposit settles one basket entry of a deposit. Local entries
// swap purchase token for the asset and credit the fund's holdings.
// Remote entries draw the quoted fee from the budget and dispatch a
// forward carrying the allocated purchase tokens to the peer fund.
func (r *Router) RouteDeposit(ctx context.Context, entry basket.Entry, amount uint64, budget *FeeBudget) (DepositLeg, error) {
	if entry.HomeChain == r.selfChain {
		out, err := r.exch.SwapExact(r.fundAddress, amount, r.purchaseToken, entry.AssetContract)
		if err != nil {
			return DepositLeg{}, fmt.Errorf("local swap for %s: %w", entry.AssetContract, err)
		}
		r.holdings.Credit(entry.AssetContract, out)
		return DepositLeg{Local: true, Asset: entry.AssetContract, AmountIn: amount, AmountOut: out}, nil
	}

	peer := r.reg.FundFor(entry.HomeChain)
	if peer.Zero() {
		return DepositLeg{}, fmt.Errorf("no peer fund registered for chain %d", entry.HomeChain)
	}

	fee, err := r.quoter.QuoteTokenDeliveryFee(entry.HomeChain)
	if err != nil {
		return DepositLeg{}, fmt.Errorf("quote chain %d: %w", entry.HomeChain, err)
	}
	if err := budget.Draw(fee); err != nil {
		return DepositLeg{}, err
	}

	payload, err := message.Encode(&message.DepositForward{AssetContract: entry.AssetContract})
	if err != nil {
		return DepositLeg{}, err
	}

	deliveryID, err := r.sender.SendMessageWithToken(ctx, entry.HomeChain, peer, payload, fee,
		protocol.TokenTransfer{Token: r.purchaseToken, Amount: amount})
	if err != nil {
		return DepositLeg{}, fmt.Errorf("dispatch deposit forward to chain %d: %w", entry.HomeChain, err)
	}

	r.track(deliveryID, protocol.RequestKindDepositForward, entry.HomeChain)
	return DepositLeg{Asset: entry.AssetContract, AmountIn: amount, DeliveryID: deliveryID}, nil
}

// PreflightDeposit verifies, before the first dispatch leaves the
// chain, that every remote entry receiving part of the deposit has a
// registered peer fund and that fee covers the summed token-delivery
// quotes. A dispatched leg cannot be recalled, so every failure that
// is knowable up front must surface here.
func (r *Router) PreflightDeposit(entries []basket.Entry, amounts []uint64, fee uint64) error {
	return r.preflight(entries, amounts, r.quoter.QuoteTokenDeliveryFee, fee)
}

// PreflightRedeem does the same for a redemption's plain-message legs.
func (r *Router) PreflightRedeem(entries []basket.Entry, fee uint64) error {
	return r.preflight(entries, nil, r.quoter.QuoteDeliveryFee, fee)
}

func (r *Router) preflight(entries []basket.Entry, amounts []uint64, quote func(protocol.ChainID) (uint64, error), fee uint64) error {
	var total uint64
	for i, entry := range entries {
		if entry.HomeChain == r.selfChain {
			continue
		}
		if amounts != nil && amounts[i] == 0 {
			continue
		}
		if r.reg.FundFor(entry.HomeChain).Zero() {
			return fmt.Errorf("no peer fund registered for chain %d", entry.HomeChain)
		}
		q, err := quote(entry.HomeChain)
		if err != nil {
			return fmt.Errorf("quote chain %d: %w", entry.HomeChain, err)
		}
		total += q
	}
	if total > fee {
		return fmt.Errorf("remote legs need %d fee, budget %d: %w",
			total, fee, protocol.ErrInsufficientGas)
	}
	return nil
}

// RouteRedeem settles one basket entry of a redemption of `shares` out
// of totalSupply. Local entries sell the proportional slice of current
// holdings to the receiver. Remote entries dispatch a sale request to
// the peer fund's chain.
func (r *Router) RouteRedeem(ctx context.Context, entry basket.Entry, shares, totalSupply uint64, receiver protocol.Address, budget *FeeBudget) (RedeemLeg, error) {
	if entry.HomeChain == r.selfChain {
		held := r.holdings.Held(entry.AssetContract)
		sellAmount, err := proportion(shares, held, totalSupply)
		if err != nil {
			return RedeemLeg{}, err
		}
		if err := r.holdings.Debit(entry.AssetContract, sellAmount); err != nil {
			return RedeemLeg{}, err
		}
		if _, err := r.exch.SwapExact(receiver, sellAmount, entry.AssetContract, r.purchaseToken); err != nil {
			r.holdings.Credit(entry.AssetContract, sellAmount)
			return RedeemLeg{}, fmt.Errorf("local sell of %s: %w", entry.AssetContract, err)
		}
		return RedeemLeg{Local: true, Asset: entry.AssetContract, SoldAmount: sellAmount, ProceedsTo: receiver}, nil
	}

	peer := r.reg.FundFor(entry.HomeChain)
	if peer.Zero() {
		return RedeemLeg{}, fmt.Errorf("no peer fund registered for chain %d", entry.HomeChain)
	}

	fee, err := r.quoter.QuoteDeliveryFee(entry.HomeChain)
	if err != nil {
		return RedeemLeg{}, fmt.Errorf("quote chain %d: %w", entry.HomeChain, err)
	}
	if err := budget.Draw(fee); err != nil {
		return RedeemLeg{}, err
	}

	payload, err := message.Encode(&message.RedeemSale{
		Shares:           shares,
		TotalSupply:      totalSupply,
		TargetFund:       peer,
		AssetHomeAddress: entry.AssetContract,
		Receiver:         receiver,
		PurchaseToken:    r.purchaseToken,
		SourceChain:      r.selfChain,
	})
	if err != nil {
		return RedeemLeg{}, err
	}

	deliveryID, err := r.sender.SendMessage(ctx, entry.HomeChain, peer, payload, fee)
	if err != nil {
		return RedeemLeg{}, fmt.Errorf("dispatch redeem sale to chain %d: %w", entry.HomeChain, err)
	}

	r.track(deliveryID, protocol.RequestKindRedeemSale, entry.HomeChain)
	return RedeemLeg{Asset: entry.AssetContract, ProceedsTo: receiver, DeliveryID: deliveryID}, nil
}

// UpdatePrice records a fund's share price. Only the configured price
// authority may push updates; entries are overwritten, never deleted.
func (r *Router) UpdatePrice(caller, fund protocol.Address, price uint64) error {
	if caller != r.priceAuthority {
		return fmt.Errorf("price update by %s: %w", caller, protocol.ErrUnauthorized)
	}
	r.prices.Set(fund, price)
	r.log.Debug().Str("fund", string(fund)).Uint64("price", price).Msg("price updated")
	return nil
}

// PushPrice forwards a fund's current price to the router on a remote
// chain so deposits there can mint against a fresh quote.
func (r *Router) PushPrice(ctx context.Context, target protocol.ChainID, fund protocol.Address, budget *FeeBudget) (string, error) {
	peerRouter := r.reg.RouterFor(target)
	if peerRouter.Zero() {
		return "", fmt.Errorf("no peer router registered for chain %d", target)
	}

	fee, err := r.quoter.QuoteDeliveryFee(target)
	if err != nil {
		return "", fmt.Errorf("quote chain %d: %w", target, err)
	}
	if err := budget.Draw(fee); err != nil {
		return "", err
	}

	payload, err := message.Encode(&message.PriceUpdate{Fund: fund, Price: r.prices.Get(fund)})
	if err != nil {
		return "", err
	}

	deliveryID, err := r.sender.SendMessage(ctx, target, peerRouter, payload, fee)
	if err != nil {
		return "", fmt.Errorf("dispatch price update to chain %d: %w", target, err)
	}
	return deliveryID, nil
}

// AcceptForward settles an inbound deposit forward: swap the bridged
// purchase tokens for the target asset and credit the fund's holdings.
func (r *Router) AcceptForward(transfer protocol.TokenTransfer, asset protocol.Address) (uint64, error) {
	out, err := r.exch.SwapExact(r.fundAddress, transfer.Amount, transfer.Token, asset)
	if err != nil {
		return 0, fmt.Errorf("forward swap into %s: %w", asset, err)
	}
	r.holdings.Credit(asset, out)
	return out, nil
}

// AcceptRemoteSale settles an inbound sale request: resolve the source
// chain's purchase token to its local wrapped form, sell the
// proportional slice of holdings, and pay the receiver in the wrapped
// token. The bridged-back transfer itself rides on the sell receiver.
func (r *Router) AcceptRemoteSale(m *message.RedeemSale) (uint64, error) {
	localOut, ok := r.wrapped.Resolve(m.SourceChain, m.PurchaseToken)
	if !ok {
		return 0, fmt.Errorf("%w: no wrapped form of %s from chain %d",
			protocol.ErrMalformedMessage, m.PurchaseToken, m.SourceChain)
	}

	held := r.holdings.Held(m.AssetHomeAddress)
	sellAmount, err := proportion(m.Shares, held, m.TotalSupply)
	if err != nil {
		return 0, err
	}
	if err := r.holdings.Debit(m.AssetHomeAddress, sellAmount); err != nil {
		return 0, err
	}
	out, err := r.exch.SwapExact(m.Receiver, sellAmount, m.AssetHomeAddress, localOut)
	if err != nil {
		r.holdings.Credit(m.AssetHomeAddress, sellAmount)
		return 0, fmt.Errorf("remote sale of %s: %w", m.AssetHomeAddress, err)
	}
	return out, nil
}

// ApplyRemotePrice records a price pushed from the fund's home-chain
// router. Sender authorization happens at the inbound boundary.
func (r *Router) ApplyRemotePrice(fund protocol.Address, price uint64) {
	r.prices.Set(fund, price)
}

// Price reads the last-known price for a fund. Zero means no update
// has ever arrived.
func (r *Router) Price(fund protocol.Address) uint64 {
	return r.prices.Get(fund)
}

// InFlightRequests returns a copy of the dispatched, unresolved
// request set.
func (r *Router) InFlightRequests() map[string]InFlight {
	out := make(map[string]InFlight, len(r.inflight))
	for k, v := range r.inflight {
		out[k] = v
	}
	return out
}

func (r *Router) track(deliveryID string, kind protocol.RequestKind, target protocol.ChainID) {
	r.inflight[deliveryID] = InFlight{Kind: kind, TargetChain: target, Dispatched: r.now()}
	r.log.Info().
		Str("delivery_id", deliveryID).
		Str("kind", kind.String()).
		Uint16("target_chain", uint16(target)).
		Msg("dispatched cross-chain request")
}

// proportion computes shares * held / totalSupply, truncating.
func proportion(shares, held, totalSupply uint64) (uint64, error) {
	if totalSupply == 0 {
		return 0, fmt.Errorf("total supply: %w", protocol.ErrDivisionByZero)
	}
	return amount.MulDiv(shares, held, totalSupply)
}
