// Package migration moves a holder's share position between chains:
// burn on the source chain, mint on the target chain, linked by one
// fire-and-forget message.
package migration

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"IndexBridge/internal/ledger"
	"IndexBridge/internal/message"
	"IndexBridge/internal/protocol"
	"IndexBridge/internal/registry"
	"IndexBridge/internal/router"
	"IndexBridge/internal/transport"
)

// Coordinator executes outbound migrations and accepts inbound
// migration mints for one fund replica.
type Coordinator struct {
	selfChain protocol.ChainID
	address   protocol.Address

	shares *ledger.ShareLedger
	reg    *registry.Registry
	sender transport.Sender
	quoter transport.Quoter
	log    zerolog.Logger
}

type Config struct {
	SelfChain protocol.ChainID
	Address   protocol.Address

	Shares   *ledger.ShareLedger
	Registry *registry.Registry
	Sender   transport.Sender
	Quoter   transport.Quoter
	Logger   zerolog.Logger
}

func New(cfg Config) *Coordinator {
	return &Coordinator{
		selfChain: cfg.SelfChain,
		address:   cfg.Address,
		shares:    cfg.Shares,
		reg:       cfg.Registry,
		sender:    cfg.Sender,
		quoter:    cfg.Quoter,
		log:       cfg.Logger,
	}
}

// MigrateOut burns the holder's shares and dispatches a mint request
// to the target chain's coordinator. The burn happens before dispatch;
// if the transport rejects the dispatch the burn is reverted, so no
// operation leaves shares burned without an accepted dispatch. Once
// the dispatch is accepted the burn is final: a message the transport
// later drops loses the position permanently. That loss window is
// inherent to fire-and-forget migration and is not compensated here.
func (c *Coordinator) MigrateOut(ctx context.Context, holder protocol.Address, shares uint64, targetChain protocol.ChainID, targetFund protocol.Address, budget *router.FeeBudget) (string, error) {
	peer := c.reg.MigratorFor(targetChain)
	if peer.Zero() {
		return "", fmt.Errorf("no migrator registered for chain %d", targetChain)
	}

	fee, err := c.quoter.QuoteDeliveryFee(targetChain)
	if err != nil {
		return "", fmt.Errorf("quote chain %d: %w", targetChain, err)
	}
	if err := budget.Draw(fee); err != nil {
		return "", err
	}

	payload, err := message.Encode(&message.MigrationMint{
		Holder:     holder,
		Shares:     shares,
		TargetFund: targetFund,
	})
	if err != nil {
		return "", err
	}

	if err := c.shares.Burn(holder, shares); err != nil {
		return "", err
	}

	deliveryID, err := c.sender.SendMessage(ctx, targetChain, peer, payload, fee)
	if err != nil {
		c.shares.Mint(holder, shares)
		return "", fmt.Errorf("dispatch migration to chain %d: %w", targetChain, err)
	}

	c.log.Info().
		Str("delivery_id", deliveryID).
		Str("holder", string(holder)).
		Uint64("shares", shares).
		Uint16("target_chain", uint16(targetChain)).
		Msg("migrated out")
	return deliveryID, nil
}

// AcceptMint applies an inbound migration mint. Only the registered
// coordinator for the source chain may trigger it; the mint itself is
// unconditional since the corresponding burn already happened there.
// Duplicate suppression is the transport boundary's job, not this
// layer's.
func (c *Coordinator) AcceptMint(sourceChain protocol.ChainID, sourceAddress protocol.Address, m *message.MigrationMint) error {
	expected := c.reg.MigratorFor(sourceChain)
	if expected.Zero() || sourceAddress != expected {
		return fmt.Errorf("migration mint from %s on chain %d: %w",
			sourceAddress, sourceChain, protocol.ErrUnauthorized)
	}

	c.shares.Mint(m.Holder, m.Shares)
	c.log.Info().
		Str("holder", string(m.Holder)).
		Uint64("shares", m.Shares).
		Uint16("source_chain", uint16(sourceChain)).
		Msg("migration mint applied")
	return nil
}
