package engine

import "sort"

// book holds open positions keyed by account then symbol. It is a dumb
// container: the engine lock serializes every access, and margin truth is
// always re-derivable from it via marginSum.
type book struct {
	positions map[string]map[string]*Position
}

func newBook() *book {
	return &book{positions: make(map[string]map[string]*Position)}
}

func (b *book) get(accountID, symbol string) *Position {
	return b.positions[accountID][symbol]
}

func (b *book) insert(accountID string, p *Position) {
	m, ok := b.positions[accountID]
	if !ok {
		m = make(map[string]*Position)
		b.positions[accountID] = m
	}
	m[p.Symbol] = p
}

func (b *book) remove(accountID, symbol string) {
	delete(b.positions[accountID], symbol)
}

// forAccount returns the open positions of one account, sorted by symbol
// for stable listings.
func (b *book) forAccount(accountID string) []*Position {
	m := b.positions[accountID]
	out := make([]*Position, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// marginSum recomputes the true margin reserved for an account from the
// open positions themselves. This is the source of truth the stored
// marginUsed field is reconciled against.
func (b *book) marginSum(accountID string) float64 {
	var sum float64
	for _, p := range b.positions[accountID] {
		sum += p.Margin
	}
	return sum
}
