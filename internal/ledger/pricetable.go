package ledger

import "IndexBridge/internal/protocol"

// PriceTable maps a fund address to its last-known share price, as
// pushed by the fund's router through authorized price updates. Entries
// are created or overwritten on update and never deleted. A zero entry
// means no update has arrived yet; deposit settlement refuses to
// divide by it.
type PriceTable struct {
	prices map[protocol.Address]uint64
}

func NewPriceTable() *PriceTable {
	return &PriceTable{prices: make(map[protocol.Address]uint64)}
}

func (p *PriceTable) Set(fund protocol.Address, price uint64) {
	p.prices[fund] = price
}

func (p *PriceTable) Get(fund protocol.Address) uint64 {
	return p.prices[fund]
}

// Snapshot returns a copy of the table.
func (p *PriceTable) Snapshot() map[protocol.Address]uint64 {
	out := make(map[protocol.Address]uint64, len(p.prices))
	for k, v := range p.prices {
		out[k] = v
	}
	return out
}

// Restore replaces the table from a snapshot.
func (p *PriceTable) Restore(prices map[protocol.Address]uint64) {
	p.prices = make(map[protocol.Address]uint64, len(prices))
	for k, v := range prices {
		p.prices[k] = v
	}
}
