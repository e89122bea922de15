package decision

import (
	"fmt"
	"log"

	"arena-core/internal/engine"
	"arena-core/internal/orders"
)

// Result reports what applying an intent did.
type Result struct {
	Kind     Kind             `json:"kind"`
	Position *engine.Position `json:"position,omitempty"`
	Trade    *engine.Trade    `json:"trade,omitempty"`
	Orders   []orders.Order   `json:"orders,omitempty"`
}

// Executor applies validated intents to one engine and its order monitor.
type Executor struct {
	eng *engine.Engine
	mon *orders.Monitor
}

// NewExecutor binds an executor to an engine and monitor pair.
func NewExecutor(eng *engine.Engine, mon *orders.Monitor) *Executor {
	return &Executor{eng: eng, mon: mon}
}

// Apply executes an intent for an account at the current price. Opens are
// sized from available cash; stop-loss and take-profit levels carried on
// the intent are registered as conditional orders after a successful open.
func (x *Executor) Apply(accountID string, intent Intent, price float64) (Result, error) {
	switch intent.Kind {
	case KindHold:
		return Result{Kind: KindHold}, nil

	case KindClose:
		trade, err := x.eng.ClosePosition(accountID, intent.Symbol, price, reasonOr(intent.Reason, "signal close"))
		if err != nil {
			return Result{}, err
		}
		return Result{Kind: KindClose, Trade: &trade}, nil

	case KindLong, KindShort:
		return x.open(accountID, intent, price)

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownSignal, intent.Kind)
	}
}

func (x *Executor) open(accountID string, intent Intent, price float64) (Result, error) {
	snap, err := x.eng.Snapshot(accountID)
	if err != nil {
		return Result{}, err
	}
	quantity, err := SizeOrder(snap.AvailableCash, intent.Percentage, intent.Leverage, price)
	if err != nil {
		return Result{}, err
	}

	side := engine.SideLong
	if intent.Kind == KindShort {
		side = engine.SideShort
	}
	pos, err := x.eng.OpenPosition(accountID, intent.Symbol, side, quantity, price,
		intent.Leverage, intent.Risk, reasonOr(intent.Reason, "signal open"))
	if err != nil {
		return Result{}, err
	}

	res := Result{Kind: intent.Kind, Position: &pos}
	if intent.Risk.StopLoss > 0 {
		o, err := x.mon.CreateStopLoss(accountID, intent.Symbol, intent.Risk.StopLoss)
		if err != nil {
			log.Printf("stop-loss registration failed for %s/%s: %v", accountID, intent.Symbol, err)
		} else {
			res.Orders = append(res.Orders, o)
		}
	}
	if intent.Risk.ProfitTarget > 0 {
		o, err := x.mon.CreateTakeProfit(accountID, intent.Symbol, intent.Risk.ProfitTarget)
		if err != nil {
			log.Printf("take-profit registration failed for %s/%s: %v", accountID, intent.Symbol, err)
		} else {
			res.Orders = append(res.Orders, o)
		}
	}
	return res, nil
}

func reasonOr(reason, fallback string) string {
	if reason != "" {
		return reason
	}
	return fallback
}
