// Package message defines the wire payloads carried inside cross-chain
// deliveries. Payloads are JSON with snake_case fields, wrapped in a
// small kind-tagged envelope so the receiving handler can dispatch
// before decoding the body.
package message

import (
	"encoding/json"
	"fmt"

	"IndexBridge/internal/protocol"
)

// Kind tags the payload type inside a delivery.
type Kind string

const (
	KindDepositForward Kind = "deposit_forward"
	KindRedeemSale     Kind = "redeem_sale"
	KindMigrationMint  Kind = "migration_mint"
	KindPriceUpdate    Kind = "price_update"
)

// Payload is one decoded cross-chain message body.
type Payload interface {
	Kind() Kind
}

// DepositForward asks the receiving fund to swap an attached token
// transfer into the named basket asset. The transfer amount travels
// with the delivery, not in the body.
type DepositForward struct {
	AssetContract protocol.Address `json:"asset_contract"`
}

func (DepositForward) Kind() Kind { return KindDepositForward }

// RedeemSale asks the receiving fund to sell a proportional slice of a
// remotely held asset and bridge the proceeds back to the receiver on
// the source chain. TotalSupply is the supply snapshot taken on the
// source chain when the redemption was accepted.
type RedeemSale struct {
	Shares           uint64           `json:"shares"`
	TotalSupply      uint64           `json:"total_supply"`
	TargetFund       protocol.Address `json:"target_fund"`
	AssetHomeAddress protocol.Address `json:"asset_home_address"`
	Receiver         protocol.Address `json:"receiver"`
	PurchaseToken    protocol.Address `json:"purchase_token"`
	SourceChain      protocol.ChainID `json:"source_chain"`
}

func (RedeemSale) Kind() Kind { return KindRedeemSale }

// MigrationMint credits a holder on the receiving chain with shares
// already burned on the source chain.
type MigrationMint struct {
	Holder     protocol.Address `json:"holder"`
	Shares     uint64           `json:"shares"`
	TargetFund protocol.Address `json:"target_fund"`
}

func (MigrationMint) Kind() Kind { return KindMigrationMint }

// PriceUpdate pushes a fund's latest share price from its router to a
// remote replica's price table.
type PriceUpdate struct {
	Fund  protocol.Address `json:"fund"`
	Price uint64           `json:"price"`
}

func (PriceUpdate) Kind() Kind { return KindPriceUpdate }

type wireEnvelope struct {
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// Encode wraps a payload in its kind-tagged envelope.
func Encode(p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", p.Kind(), err)
	}
	return json.Marshal(wireEnvelope{Kind: p.Kind(), Body: body})
}

// Decode parses a delivery payload. Any structural failure, an unknown
// kind included, is reported as ErrMalformedMessage.
func Decode(data []byte) (Payload, error) {
	var env wireEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", protocol.ErrMalformedMessage, err)
	}

	var p Payload
	switch env.Kind {
	case KindDepositForward:
		p = &DepositForward{}
	case KindRedeemSale:
		p = &RedeemSale{}
	case KindMigrationMint:
		p = &MigrationMint{}
	case KindPriceUpdate:
		p = &PriceUpdate{}
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", protocol.ErrMalformedMessage, env.Kind)
	}

	if err := json.Unmarshal(env.Body, p); err != nil {
		return nil, fmt.Errorf("%w: %s body: %v", protocol.ErrMalformedMessage, env.Kind, err)
	}
	return p, nil
}
