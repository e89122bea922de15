// Package orders tracks conditional stop-loss and take-profit orders and
// fires them against the accounting engine when their trigger prices are
// crossed.
package orders

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"arena-core/internal/engine"
	"arena-core/internal/events"
)

// Type of a conditional order.
type Type string

const (
	TypeStopLoss   Type = "stop_loss"
	TypeTakeProfit Type = "take_profit"
)

// State of a conditional order. Triggered, Orphaned and Cancelled are
// terminal; an order never leaves a terminal state.
type State string

const (
	StateActive    State = "active"
	StateTriggered State = "triggered"
	StateOrphaned  State = "orphaned"
	StateCancelled State = "cancelled"
)

// Order is one conditional order watching a single position.
type Order struct {
	ID           string      `json:"id"`
	AccountID    string      `json:"account_id"`
	Symbol       string      `json:"symbol"`
	Type         Type        `json:"type"`
	Side         engine.Side `json:"side"`
	TriggerPrice float64     `json:"trigger_price"`
	State        State       `json:"state"`
	CreatedAt    time.Time   `json:"created_at"`
	ResolvedAt   time.Time   `json:"resolved_at,omitempty"`
}

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrOrderResolved  = errors.New("order already resolved")
	ErrInvalidTrigger = errors.New("invalid trigger price")
)

// Monitor owns conditional orders for one engine. It takes its own lock
// and calls into the engine; the engine never calls back, so lock order
// is always monitor then engine.
type Monitor struct {
	mu     sync.Mutex
	eng    *engine.Engine
	bus    *events.Bus
	orders []*Order

	now func() time.Time
}

// NewMonitor creates a monitor bound to one engine instance.
func NewMonitor(eng *engine.Engine, bus *events.Bus) *Monitor {
	return &Monitor{eng: eng, bus: bus, now: time.Now}
}

// CreateStopLoss registers a stop-loss for an open position. An existing
// active stop-loss on the same position is replaced.
func (m *Monitor) CreateStopLoss(accountID, symbol string, triggerPrice float64) (Order, error) {
	return m.create(accountID, symbol, TypeStopLoss, triggerPrice)
}

// CreateTakeProfit registers a take-profit for an open position. An existing
// active take-profit on the same position is replaced.
func (m *Monitor) CreateTakeProfit(accountID, symbol string, triggerPrice float64) (Order, error) {
	return m.create(accountID, symbol, TypeTakeProfit, triggerPrice)
}

func (m *Monitor) create(accountID, symbol string, typ Type, triggerPrice float64) (Order, error) {
	if triggerPrice <= 0 {
		return Order{}, fmt.Errorf("%w: %.8f", ErrInvalidTrigger, triggerPrice)
	}
	pos, ok := m.eng.Position(accountID, symbol)
	if !ok {
		return Order{}, fmt.Errorf("%w: %s/%s", engine.ErrPositionNotFound, accountID, symbol)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.State == StateActive && o.AccountID == accountID && o.Symbol == symbol && o.Type == typ {
			o.State = StateCancelled
			o.ResolvedAt = m.now()
		}
	}

	order := &Order{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		Symbol:       symbol,
		Type:         typ,
		Side:         pos.Side,
		TriggerPrice: triggerPrice,
		State:        StateActive,
		CreatedAt:    m.now(),
	}
	m.orders = append(m.orders, order)
	log.Printf("order registered: %s %s %s/%s trigger=%.2f", order.ID[:8], typ, accountID, symbol, triggerPrice)
	return *order, nil
}

// Cancel marks an active order cancelled.
func (m *Monitor) Cancel(orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if o.ID != orderID {
			continue
		}
		if o.State != StateActive {
			return fmt.Errorf("%w: %s is %s", ErrOrderResolved, orderID, o.State)
		}
		o.State = StateCancelled
		o.ResolvedAt = m.now()
		return nil
	}
	return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
}

// CheckOrders evaluates every active order against prices and returns the
// orders that fired. An order whose position disappeared (closed or
// liquidated) is orphaned; a crossed trigger closes the position through
// the engine and marks the order triggered. If the close loses the race
// to a liquidation in the same tick, the order is orphaned instead of
// firing twice.
func (m *Monitor) CheckOrders(prices map[string]float64) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var triggered []Order
	for _, o := range m.orders {
		if o.State != StateActive {
			continue
		}

		if _, ok := m.eng.Position(o.AccountID, o.Symbol); !ok {
			m.resolveLocked(o, StateOrphaned)
			continue
		}

		price, ok := prices[o.Symbol]
		if !ok {
			continue
		}
		if !crossed(o, price) {
			continue
		}

		trade, err := m.eng.ClosePosition(o.AccountID, o.Symbol, price, string(o.Type))
		if err != nil {
			if errors.Is(err, engine.ErrPositionNotFound) {
				m.resolveLocked(o, StateOrphaned)
			} else {
				log.Printf("order %s close failed: %v", o.ID[:8], err)
			}
			continue
		}
		m.resolveLocked(o, StateTriggered)
		triggered = append(triggered, *o)
		if m.bus != nil {
			m.bus.Publish(events.EventOrderFired, struct {
				Order Order        `json:"order"`
				Trade engine.Trade `json:"trade"`
			}{*o, trade})
		}
	}
	return triggered
}

// crossed reports whether price crosses the order's trigger. A stop-loss
// protects against adverse movement, a take-profit captures favorable
// movement; both reverse with position side.
func crossed(o *Order, price float64) bool {
	switch o.Type {
	case TypeStopLoss:
		if o.Side == engine.SideLong {
			return price <= o.TriggerPrice
		}
		return price >= o.TriggerPrice
	case TypeTakeProfit:
		if o.Side == engine.SideLong {
			return price >= o.TriggerPrice
		}
		return price <= o.TriggerPrice
	}
	return false
}

func (m *Monitor) resolveLocked(o *Order, s State) {
	o.State = s
	o.ResolvedAt = m.now()
	log.Printf("order %s: %s %s/%s -> %s", o.ID[:8], o.Type, o.AccountID, o.Symbol, s)
}

// Orders returns copies of all orders for an account, newest first. An
// empty accountID returns every order.
func (m *Monitor) Orders(accountID string) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Order, 0, len(m.orders))
	for i := len(m.orders) - 1; i >= 0; i-- {
		if accountID == "" || m.orders[i].AccountID == accountID {
			out = append(out, *m.orders[i])
		}
	}
	return out
}

// ActiveCount returns the number of unresolved orders.
func (m *Monitor) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, o := range m.orders {
		if o.State == StateActive {
			n++
		}
	}
	return n
}
