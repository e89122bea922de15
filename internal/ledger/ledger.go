// Package ledger owns per-account cash, margin and realized P&L records.
// It performs no arithmetic beyond plain field storage: every mutation that
// moves money happens in the accounting engine, so the margin invariant is
// provable in exactly one place. The engine serializes all access; Ledger
// itself carries no lock.
package ledger

import "time"

// Account is the cash and statistics record for one competitor.
type Account struct {
	ID          string
	Name        string
	Cash        float64
	MarginUsed  float64
	RealizedPnL float64
	TotalFees   float64

	// Aggregates recomputed from scratch on every tick (never incremented).
	UnrealizedPnL float64
	TotalValue    float64
	PnLPercent    float64

	Wins        int
	Losses      int
	BiggestWin  float64
	BiggestLoss float64
	TradeCount  int

	// Per-tick returns, bounded, used for the risk ratio.
	Returns   []float64
	lastValue float64

	InitialBalance float64
	CreatedAt      time.Time
}

// AvailableCash is cash not reserved as margin.
func (a *Account) AvailableCash() float64 {
	return a.Cash - a.MarginUsed
}

// RecordReturn appends one period return derived from the previous total
// value, keeping at most cap entries.
func (a *Account) RecordReturn(totalValue float64, cap int) {
	prev := a.lastValue
	if prev == 0 {
		prev = a.InitialBalance
	}
	if prev > 0 {
		a.Returns = append(a.Returns, (totalValue-prev)/prev)
		if cap > 0 && len(a.Returns) > cap {
			a.Returns = a.Returns[len(a.Returns)-cap:]
		}
	}
	a.lastValue = totalValue
}

// Ledger stores accounts by id.
type Ledger struct {
	accounts map[string]*Account
	order    []string // creation order, keeps listings stable
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

// Create registers a new account funded with initialBalance.
// The caller (the engine) maps a duplicate id to ErrAccountExists.
func (l *Ledger) Create(id, name string, initialBalance float64) (*Account, bool) {
	if _, ok := l.accounts[id]; ok {
		return nil, false
	}
	acct := &Account{
		ID:             id,
		Name:           name,
		Cash:           initialBalance,
		TotalValue:     initialBalance,
		InitialBalance: initialBalance,
		lastValue:      initialBalance,
		CreatedAt:      time.Now(),
	}
	l.accounts[id] = acct
	l.order = append(l.order, id)
	return acct, true
}

// Get returns the account for id, or nil.
func (l *Ledger) Get(id string) *Account {
	return l.accounts[id]
}

// All returns accounts in creation order.
func (l *Ledger) All() []*Account {
	out := make([]*Account, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.accounts[id])
	}
	return out
}

// IDs returns account ids in creation order.
func (l *Ledger) IDs() []string {
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}
