package protocol

// ChainID identifies a chain in the relay network's numbering scheme.
type ChainID uint16

// Address is a chain-local contract or account address.
// Addresses are opaque strings here; the relay network treats them as
// 32-byte identifiers, but nothing in the settlement logic depends on
// their encoding.
type Address string

// Zero reports whether the address is unset.
func (a Address) Zero() bool {
	return a == ""
}

// TokenTransfer is a token amount attached to a cross-chain message.
type TokenTransfer struct {
	Token  Address
	Amount uint64
}

// RequestKind discriminates pending cross-chain settlement operations.
type RequestKind int32

const (
	RequestKindUnknown RequestKind = iota
	RequestKindDepositForward
	RequestKindRedeemSale
	RequestKindMigration
)

func (k RequestKind) String() string {
	switch k {
	case RequestKindDepositForward:
		return "DepositForward"
	case RequestKindRedeemSale:
		return "RedeemSale"
	case RequestKindMigration:
		return "Migration"
	default:
		return "Unknown"
	}
}
