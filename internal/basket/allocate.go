package basket

// Allocate splits a deposit across the basket proportionally to each
// entry's weight: unit = amount / sum(weights) with floor division,
// amounts[i] = unit * weights[i].
//
// The remainder amount - sum(amounts) is deliberately NOT redistributed;
// it stays with the fund as dust. The split is deterministic and
// order-preserving, and sum(amounts) <= amount always holds with
// amount - sum(amounts) < sum(weights).
func Allocate(amount uint64, b *Basket) []uint64 {
	unit := amount / b.WeightSum()

	amounts := make([]uint64, b.Len())
	for i, e := range b.Entries() {
		// unit*weight <= amount since weight <= sum(weights); no overflow.
		amounts[i] = unit * e.Weight
	}
	return amounts
}
