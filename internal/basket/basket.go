package basket

import (
	"fmt"

	amount "IndexBridge/internal/math"
	"IndexBridge/internal/protocol"
)

// Entry describes one underlying asset of a fund's target allocation:
// the asset's contract address, the chain it natively lives on, and its
// relative weight in the basket.
type Entry struct {
	AssetContract protocol.Address
	HomeChain     protocol.ChainID
	Weight        uint64
}

// Basket is the ordered target allocation of a fund. It is fixed at
// fund initialization and never mutated afterwards.
type Basket struct {
	entries []Entry
}

// New validates the entries and returns an immutable basket.
func New(entries []Entry) (*Basket, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty basket", protocol.ErrInvalidBasket)
	}

	weights := make([]uint64, len(entries))
	for i, e := range entries {
		if e.AssetContract.Zero() {
			return nil, fmt.Errorf("%w: entry %d has no asset contract", protocol.ErrInvalidBasket, i)
		}
		weights[i] = e.Weight
	}

	sum, ok := amount.Sum(weights)
	if !ok {
		return nil, fmt.Errorf("%w: weight sum overflows", protocol.ErrInvalidBasket)
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: zero-sum weights", protocol.ErrInvalidBasket)
	}

	copied := make([]Entry, len(entries))
	copy(copied, entries)
	return &Basket{entries: copied}, nil
}

// Len returns the number of entries.
func (b *Basket) Len() int {
	return len(b.entries)
}

// Entry returns the entry at index i.
func (b *Basket) Entry(i int) Entry {
	return b.entries[i]
}

// Entries returns a copy of the entries in basket order.
func (b *Basket) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// WeightSum returns the total weight. Always > 0 for a valid basket.
func (b *Basket) WeightSum() uint64 {
	sum, _ := amount.Sum(b.weights())
	return sum
}

func (b *Basket) weights() []uint64 {
	w := make([]uint64, len(b.entries))
	for i, e := range b.entries {
		w[i] = e.Weight
	}
	return w
}
