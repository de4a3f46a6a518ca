// Package transport is the bridging layer between chain nodes. It
// carries opaque payloads and attached token transfers with
// at-least-once, unordered delivery; senders get back a delivery
// identifier and never learn whether the remote execution succeeded.
package transport

import (
	"context"
	"fmt"

	"IndexBridge/internal/protocol"
)

// Delivery is one inbound cross-chain message as handed to a chain
// node. Ack confirms processing to the underlying transport; Nak
// requests redelivery. Both are optional no-ops on in-memory wiring.
type Delivery struct {
	DeliveryID    string
	SourceChain   protocol.ChainID
	SourceAddress protocol.Address
	TargetAddress protocol.Address
	// Authority is the relay identity that delivered the frame. Inbound
	// handling rejects frames whose authority is not the configured one.
	Authority protocol.Address
	Payload   []byte
	Tokens    []protocol.TokenTransfer

	Ack func()
	Nak func()
}

// Sender dispatches messages to a remote chain on behalf of one local
// component. The returned string is the transport-assigned delivery
// identifier. Dispatch acceptance says nothing about remote execution.
type Sender interface {
	SendMessage(ctx context.Context, target protocol.ChainID, targetAddress protocol.Address, payload []byte, fee uint64) (string, error)
	SendMessageWithToken(ctx context.Context, target protocol.ChainID, targetAddress protocol.Address, payload []byte, fee uint64, token protocol.TokenTransfer) (string, error)
}

// Quoter prices message delivery to a target chain. Messages carrying
// an attached token transfer are priced separately: the relay network
// escrows and releases the transfer, which costs more than a plain
// payload.
type Quoter interface {
	QuoteDeliveryFee(target protocol.ChainID) (uint64, error)
	QuoteTokenDeliveryFee(target protocol.ChainID) (uint64, error)
}

// FeeTable is a static delivery-price oracle configured per chain.
type FeeTable struct {
	fees       map[protocol.ChainID]uint64
	surcharges map[protocol.ChainID]uint64
}

func NewFeeTable(fees map[protocol.ChainID]uint64) *FeeTable {
	copied := make(map[protocol.ChainID]uint64, len(fees))
	for k, v := range fees {
		copied[k] = v
	}
	return &FeeTable{
		fees:       copied,
		surcharges: make(map[protocol.ChainID]uint64),
	}
}

// SetTokenSurcharge configures the extra delivery cost for messages
// that carry a token transfer to the chain.
func (f *FeeTable) SetTokenSurcharge(target protocol.ChainID, amount uint64) {
	f.surcharges[target] = amount
}

func (f *FeeTable) QuoteDeliveryFee(target protocol.ChainID) (uint64, error) {
	fee, ok := f.fees[target]
	if !ok {
		return 0, fmt.Errorf("no delivery fee configured for chain %d", target)
	}
	return fee, nil
}

func (f *FeeTable) QuoteTokenDeliveryFee(target protocol.ChainID) (uint64, error) {
	fee, err := f.QuoteDeliveryFee(target)
	if err != nil {
		return 0, err
	}
	return fee + f.surcharges[target], nil
}
