// Package inbound validates and dispatches cross-chain deliveries to
// the local fund components. The transport layer guarantees only that
// frames arrive; everything about who sent them and what they carry is
// checked here before any state moves.
package inbound

import (
	"fmt"

	"github.com/rs/zerolog"

	"IndexBridge/internal/fund"
	"IndexBridge/internal/message"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/registry"
	"IndexBridge/internal/router"
	"IndexBridge/internal/transport"
)

// Handler applies one delivery at a time on behalf of a chain node.
// Duplicate-delivery suppression happens upstream at the ingestion
// boundary; by the time a delivery reaches Handle it is the first
// accepted occurrence of its delivery identifier.
type Handler struct {
	selfChain protocol.ChainID

	relayAuthority  protocol.Address
	fundAddress     protocol.Address
	routerAddress   protocol.Address
	migratorAddress protocol.Address

	reg    *registry.Registry
	fund   *fund.Fund
	router *router.Router
	log    zerolog.Logger
}

type Config struct {
	SelfChain protocol.ChainID

	RelayAuthority  protocol.Address
	FundAddress     protocol.Address
	RouterAddress   protocol.Address
	MigratorAddress protocol.Address

	Registry *registry.Registry
	Fund     *fund.Fund
	Router   *router.Router
	Logger   zerolog.Logger
}

func New(cfg Config) *Handler {
	return &Handler{
		selfChain:       cfg.SelfChain,
		relayAuthority:  cfg.RelayAuthority,
		fundAddress:     cfg.FundAddress,
		routerAddress:   cfg.RouterAddress,
		migratorAddress: cfg.MigratorAddress,
		reg:             cfg.Registry,
		fund:            cfg.Fund,
		router:          cfg.Router,
		log:             cfg.Logger,
	}
}

// Handle validates a delivery and applies it. Validation order: the
// delivering authority must be the configured relay, the delivery must
// target one of our components, the payload must decode, and the
// source address must match the registered counterpart for its kind.
// Any failure leaves all state untouched.
func (h *Handler) Handle(d transport.Delivery) error {
	if d.Authority != h.relayAuthority {
		return fmt.Errorf("delivery %s relayed by %s: %w",
			d.DeliveryID, d.Authority, protocol.ErrUnauthorized)
	}
	if !h.localTarget(d.TargetAddress) {
		return fmt.Errorf("delivery %s targets foreign address %s: %w",
			d.DeliveryID, d.TargetAddress, protocol.ErrUnauthorized)
	}

	p, err := message.Decode(d.Payload)
	if err != nil {
		return err
	}

	log := h.log.With().
		Str("delivery_id", d.DeliveryID).
		Str("kind", string(p.Kind())).
		Uint16("source_chain", uint16(d.SourceChain)).
		Logger()

	switch m := p.(type) {
	case *message.DepositForward:
		if err := h.requireRouterSender(d); err != nil {
			return err
		}
		if len(d.Tokens) != 1 {
			return fmt.Errorf("%w: forward carries %d token transfers, want 1",
				protocol.ErrMalformedMessage, len(d.Tokens))
		}
		out, err := h.router.AcceptForward(d.Tokens[0], m.AssetContract)
		if err != nil {
			return err
		}
		log.Info().Uint64("amount_out", out).Msg("deposit forward settled")
		return nil

	case *message.RedeemSale:
		if err := h.requireRouterSender(d); err != nil {
			return err
		}
		out, err := h.router.AcceptRemoteSale(m)
		if err != nil {
			return err
		}
		log.Info().Uint64("proceeds", out).Str("receiver", string(m.Receiver)).Msg("remote sale settled")
		return nil

	case *message.MigrationMint:
		if err := h.fund.AcceptMigrationMint(d.DeliveryID, d.SourceChain, d.SourceAddress, m.Holder, m.Shares); err != nil {
			return err
		}
		log.Info().Str("holder", string(m.Holder)).Uint64("shares", m.Shares).Msg("migration mint settled")
		return nil

	case *message.PriceUpdate:
		if err := h.requireRouterSender(d); err != nil {
			return err
		}
		h.router.ApplyRemotePrice(m.Fund, m.Price)
		log.Debug().Str("fund", string(m.Fund)).Uint64("price", m.Price).Msg("price update applied")
		return nil

	default:
		return fmt.Errorf("%w: unhandled kind %s", protocol.ErrMalformedMessage, p.Kind())
	}
}

func (h *Handler) localTarget(addr protocol.Address) bool {
	return addr == h.fundAddress || addr == h.routerAddress || addr == h.migratorAddress
}

func (h *Handler) requireRouterSender(d transport.Delivery) error {
	expected := h.reg.RouterFor(d.SourceChain)
	if expected.Zero() || d.SourceAddress != expected {
		return fmt.Errorf("delivery %s from %s on chain %d: %w",
			d.DeliveryID, d.SourceAddress, d.SourceChain, protocol.ErrUnauthorized)
	}
	return nil
}
