// Package engine implements the margin accounting core: it opens and closes
// leveraged positions, marks them to market, enforces liquidation, and is
// the only writer of account and position state.
package engine

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"arena-core/internal/events"
	"arena-core/internal/ledger"
)

const (
	// feeRate is a fixed taker-fee approximation applied to notional on
	// both open and close.
	feeRate = 0.001

	// maintenanceFactor is the fraction of posted margin an account may
	// lose before forced closure. Fixed regardless of leverage tier or
	// notional size.
	maintenanceFactor = 0.95

	// marginEpsilon bounds acceptable float drift between the stored
	// marginUsed and the sum of open position margins.
	marginEpsilon = 1e-6

	defaultReturnsCap = 2000
	repairLogCap      = 128
)

// ReasonLiquidation marks trades produced by a forced close.
const ReasonLiquidation = "liquidation"

// Config parametrizes one engine instance. Multiple competition editions
// are multiple Engine values, never shared globals.
type Config struct {
	Name           string        // edition name stamped on trades and repairs
	InitialBalance float64
	ReturnsCap     int           // bounded per-tick return history, 0 = default
	Bus            *events.Bus   // optional, trade/liquidation/repair events
	Sink           ValuationSink // optional, receives one valuation per tick
}

// Engine serializes all account mutation behind one RWMutex. A single
// writer lock keeps Trade ids globally monotonic and makes the margin
// invariant checkable at any quiescent point.
type Engine struct {
	mu sync.RWMutex

	name     string
	ledger   *ledger.Ledger
	book     *book
	trades   []Trade
	tradeSeq int64
	repairs  []MarginRepair

	initialBalance float64
	returnsCap     int
	bus            *events.Bus
	sink           ValuationSink

	now func() time.Time
}

// New creates an engine with its own ledger and position book.
func New(cfg Config) *Engine {
	returnsCap := cfg.ReturnsCap
	if returnsCap <= 0 {
		returnsCap = defaultReturnsCap
	}
	return &Engine{
		name:           cfg.Name,
		ledger:         ledger.New(),
		book:           newBook(),
		initialBalance: cfg.InitialBalance,
		returnsCap:     returnsCap,
		bus:            cfg.Bus,
		sink:           cfg.Sink,
		now:            time.Now,
	}
}

// InitialBalance returns the starting cash every account was funded with.
func (e *Engine) InitialBalance() float64 { return e.initialBalance }

// CreateAccount registers a competitor account funded with the engine's
// initial balance.
func (e *Engine) CreateAccount(id, name string) (AccountSnapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if id == "" {
		return AccountSnapshot{}, fmt.Errorf("%w: empty account id", ErrInvalidParameters)
	}
	acct, ok := e.ledger.Create(id, name, e.initialBalance)
	if !ok {
		return AccountSnapshot{}, fmt.Errorf("%w: %s", ErrAccountExists, id)
	}
	log.Printf("account created: %s (%s) balance=%.2f", id, name, e.initialBalance)
	return e.snapshotLocked(acct), nil
}

// OpenPosition opens a leveraged position. On any failure no state changes:
// a rejected open is indistinguishable from one never attempted.
func (e *Engine) OpenPosition(accountID, symbol string, side Side, quantity, price float64, leverage int, risk RiskMeta, reason string) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case quantity <= 0:
		return Position{}, fmt.Errorf("%w: quantity %.8f must be > 0", ErrInvalidParameters, quantity)
	case leverage < 1:
		return Position{}, fmt.Errorf("%w: leverage %d must be >= 1", ErrInvalidParameters, leverage)
	case price <= 0:
		return Position{}, fmt.Errorf("%w: price %.8f must be > 0", ErrInvalidParameters, price)
	case !side.Valid():
		return Position{}, fmt.Errorf("%w: side %q", ErrInvalidParameters, side)
	}

	acct := e.ledger.Get(accountID)
	if acct == nil {
		return Position{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if e.book.get(accountID, symbol) != nil {
		return Position{}, fmt.Errorf("%w: position already open for %s", ErrInvalidParameters, symbol)
	}

	notional := quantity * price
	margin := notional / float64(leverage)
	fee := notional * feeRate

	if acct.AvailableCash() < margin+fee {
		return Position{}, fmt.Errorf("%w: need %.2f, available %.2f",
			ErrInsufficientMargin, margin+fee, acct.AvailableCash())
	}

	var liquidationPrice float64
	if side == SideLong {
		liquidationPrice = price * (1 - maintenanceFactor/float64(leverage))
	} else {
		liquidationPrice = price * (1 + maintenanceFactor/float64(leverage))
	}

	now := e.now()
	pos := &Position{
		Symbol:           symbol,
		Side:             side,
		Quantity:         quantity,
		EntryPrice:       price,
		CurrentPrice:     price,
		Leverage:         leverage,
		Margin:           margin,
		LiquidationPrice: liquidationPrice,
		Notional:         notional,
		Risk:             risk,
		EntryTime:        now,
	}

	// Margin is reserved, not spent: only the fee leaves cash, so equity
	// is unchanged by opening.
	acct.Cash -= fee
	acct.MarginUsed += margin
	acct.TotalFees += fee
	acct.TradeCount++
	e.book.insert(accountID, pos)

	action := ActionOpenLong
	if side == SideShort {
		action = ActionOpenShort
	}
	trade := e.appendTradeLocked(Trade{
		AccountID: accountID,
		Symbol:    symbol,
		Action:    action,
		Side:      side,
		Quantity:  quantity,
		Price:     price,
		Leverage:  leverage,
		Notional:  notional,
		Margin:    margin,
		Fee:       fee,
		Timestamp: now,
		Reason:    reason,
	})

	log.Printf("open %s: %s %s qty=%.6f @%.2f %dx margin=%.2f fee=%.4f",
		accountID, side, symbol, quantity, price, leverage, margin, fee)
	if e.bus != nil {
		e.bus.Publish(events.EventTradeExecuted, trade)
	}
	return *pos, nil
}

// ClosePosition closes an open position at exitPrice, realizing P&L and
// releasing the full margin. Exactly one Trade is appended per close; a
// second call for the same symbol fails with ErrPositionNotFound.
func (e *Engine) ClosePosition(accountID, symbol string, exitPrice float64, reason string) (Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closeLocked(accountID, symbol, exitPrice, reason)
}

func (e *Engine) closeLocked(accountID, symbol string, exitPrice float64, reason string) (Trade, error) {
	if exitPrice <= 0 {
		return Trade{}, fmt.Errorf("%w: exit price %.8f must be > 0", ErrInvalidParameters, exitPrice)
	}
	acct := e.ledger.Get(accountID)
	if acct == nil {
		return Trade{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	pos := e.book.get(accountID, symbol)
	if pos == nil {
		return Trade{}, fmt.Errorf("%w: %s/%s", ErrPositionNotFound, accountID, symbol)
	}

	var rawPnL float64
	if pos.Side == SideLong {
		rawPnL = (exitPrice - pos.EntryPrice) * pos.Quantity
	} else {
		rawPnL = (pos.EntryPrice - exitPrice) * pos.Quantity
	}
	fee := pos.Quantity * exitPrice * feeRate
	netPnL := rawPnL - fee

	acct.Cash += netPnL
	acct.MarginUsed -= pos.Margin
	acct.RealizedPnL += netPnL
	acct.TotalFees += fee

	if netPnL >= 0 {
		acct.Wins++
		if netPnL > acct.BiggestWin {
			acct.BiggestWin = netPnL
		}
	} else {
		acct.Losses++
		if netPnL < acct.BiggestLoss {
			acct.BiggestLoss = netPnL
		}
	}

	e.book.remove(accountID, symbol)

	now := e.now()
	action := ActionCloseLong
	if pos.Side == SideShort {
		action = ActionCloseShort
	}
	trade := e.appendTradeLocked(Trade{
		AccountID:      accountID,
		Symbol:         symbol,
		Action:         action,
		Side:           pos.Side,
		Quantity:       pos.Quantity,
		Price:          exitPrice,
		Leverage:       pos.Leverage,
		Notional:       pos.Quantity * exitPrice,
		Margin:         pos.Margin,
		Fee:            fee,
		EntryPrice:     pos.EntryPrice,
		ExitPrice:      exitPrice,
		PnL:            netPnL,
		EntryTime:      pos.EntryTime,
		HoldingSeconds: int64(now.Sub(pos.EntryTime) / time.Second),
		Timestamp:      now,
		Reason:         reason,
	})

	log.Printf("close %s: %s %s qty=%.6f @%.2f pnl=%.4f fee=%.4f reason=%q",
		accountID, pos.Side, symbol, pos.Quantity, exitPrice, netPnL, fee, reason)
	if e.bus != nil {
		e.bus.Publish(events.EventTradeExecuted, trade)
		if reason == ReasonLiquidation {
			e.bus.Publish(events.EventLiquidation, trade)
		}
	}
	return trade, nil
}

// UpdatePositions marks every open position against prices, liquidates
// breached positions through the normal close path, recomputes account
// aggregates from scratch, reconciles stored margin against the position
// book, and emits one valuation per account.
func (e *Engine) UpdatePositions(prices map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, acct := range e.ledger.All() {
		// Mark to market and collect liquidation breaches. Closing
		// mutates the book, so breaches are closed after the scan.
		type breach struct {
			symbol string
			price  float64
		}
		var breaches []breach
		for _, pos := range e.book.forAccount(acct.ID) {
			price, ok := prices[pos.Symbol]
			if !ok {
				continue
			}
			pos.CurrentPrice = price
			if pos.Side == SideLong {
				pos.UnrealizedPnL = (price - pos.EntryPrice) * pos.Quantity
				if price <= pos.LiquidationPrice {
					breaches = append(breaches, breach{pos.Symbol, price})
				}
			} else {
				pos.UnrealizedPnL = (pos.EntryPrice - price) * pos.Quantity
				if price >= pos.LiquidationPrice {
					breaches = append(breaches, breach{pos.Symbol, price})
				}
			}
		}
		for _, b := range breaches {
			log.Printf("liquidation: %s %s @%.2f", acct.ID, b.symbol, b.price)
			if _, err := e.closeLocked(acct.ID, b.symbol, b.price, ReasonLiquidation); err != nil {
				log.Printf("liquidation close failed for %s/%s: %v", acct.ID, b.symbol, err)
			}
		}

		// Aggregates are recomputed from the surviving positions, never
		// carried forward incrementally.
		var totalUnrealized float64
		for _, pos := range e.book.forAccount(acct.ID) {
			totalUnrealized += pos.UnrealizedPnL
		}
		acct.UnrealizedPnL = totalUnrealized
		acct.TotalValue = acct.InitialBalance - acct.TotalFees + acct.RealizedPnL + totalUnrealized
		acct.PnLPercent = (acct.TotalValue - acct.InitialBalance) / acct.InitialBalance * 100

		e.reconcileLocked(acct)

		acct.RecordReturn(acct.TotalValue, e.returnsCap)
		if e.sink != nil {
			e.sink.RecordValuation(acct.ID, now, acct.TotalValue, acct.PnLPercent)
		}
		if e.bus != nil {
			e.bus.Publish(events.EventValuation, AccountSnapshot{
				AccountID:  acct.ID,
				Name:       acct.Name,
				TotalValue: acct.TotalValue,
				PnLPercent: acct.PnLPercent,
			})
		}
	}
}

// ReconcileMargin forces one reconciliation pass for an account outside the
// tick, returning the true margin sum.
func (e *Engine) ReconcileMargin(accountID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	acct := e.ledger.Get(accountID)
	if acct == nil {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	e.reconcileLocked(acct)
	return acct.MarginUsed, nil
}

// reconcileLocked overwrites stored marginUsed when it drifts from the sum
// of open position margins. Drift is a self-healing event, not an error.
func (e *Engine) reconcileLocked(acct *ledger.Account) {
	actual := e.book.marginSum(acct.ID)
	drift := acct.MarginUsed - actual
	if math.Abs(drift) <= marginEpsilon {
		return
	}

	repair := MarginRepair{
		Edition:   e.name,
		AccountID: acct.ID,
		Stored:    acct.MarginUsed,
		Actual:    actual,
		Drift:     drift,
		At:        e.now(),
	}
	acct.MarginUsed = actual

	e.repairs = append(e.repairs, repair)
	if len(e.repairs) > repairLogCap {
		e.repairs = e.repairs[len(e.repairs)-repairLogCap:]
	}
	log.Printf("margin repair: %s stored=%.4f actual=%.4f drift=%.4f",
		acct.ID, repair.Stored, repair.Actual, repair.Drift)
	if e.bus != nil {
		e.bus.Publish(events.EventMarginRepair, repair)
	}
}

// appendTradeLocked assigns the next sequential id and appends to the log.
func (e *Engine) appendTradeLocked(t Trade) Trade {
	e.tradeSeq++
	t.ID = e.tradeSeq
	t.Edition = e.name
	e.trades = append(e.trades, t)
	return t
}

// Snapshot returns the canonical projection for one account.
func (e *Engine) Snapshot(accountID string) (AccountSnapshot, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	acct := e.ledger.Get(accountID)
	if acct == nil {
		return AccountSnapshot{}, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return e.snapshotLocked(acct), nil
}

// Snapshots returns projections for every account in creation order.
func (e *Engine) Snapshots() []AccountSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	accts := e.ledger.All()
	out := make([]AccountSnapshot, 0, len(accts))
	for _, acct := range accts {
		out = append(out, e.snapshotLocked(acct))
	}
	return out
}

func (e *Engine) snapshotLocked(acct *ledger.Account) AccountSnapshot {
	positions := e.book.forAccount(acct.ID)
	posCopies := make([]Position, 0, len(positions))
	for _, p := range positions {
		posCopies = append(posCopies, *p)
	}
	returns := make([]float64, len(acct.Returns))
	copy(returns, acct.Returns)

	return AccountSnapshot{
		AccountID:      acct.ID,
		Name:           acct.Name,
		InitialBalance: acct.InitialBalance,
		Cash:           acct.Cash,
		MarginUsed:     acct.MarginUsed,
		AvailableCash:  acct.AvailableCash(),
		RealizedPnL:    acct.RealizedPnL,
		UnrealizedPnL:  acct.UnrealizedPnL,
		TotalFees:      acct.TotalFees,
		TotalValue:     acct.TotalValue,
		PnLPercent:     acct.PnLPercent,
		Wins:           acct.Wins,
		Losses:         acct.Losses,
		BiggestWin:     acct.BiggestWin,
		BiggestLoss:    acct.BiggestLoss,
		TradeCount:     acct.TradeCount,
		Returns:        returns,
		Positions:      posCopies,
		CreatedAt:      acct.CreatedAt,
	}
}

// Position returns a copy of one open position.
func (e *Engine) Position(accountID, symbol string) (Position, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	pos := e.book.get(accountID, symbol)
	if pos == nil {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of an account's open positions sorted by symbol.
func (e *Engine) Positions(accountID string) []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()

	positions := e.book.forAccount(accountID)
	out := make([]Position, 0, len(positions))
	for _, p := range positions {
		out = append(out, *p)
	}
	return out
}

// Trades returns up to limit trades, newest first.
func (e *Engine) Trades(limit int) []Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return filterTrades(e.trades, limit, func(Trade) bool { return true })
}

// TradesForAccount returns up to limit trades for one account, newest first.
func (e *Engine) TradesForAccount(accountID string, limit int) []Trade {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return filterTrades(e.trades, limit, func(t Trade) bool { return t.AccountID == accountID })
}

func filterTrades(trades []Trade, limit int, keep func(Trade) bool) []Trade {
	if limit <= 0 {
		limit = 100
	}
	out := make([]Trade, 0, limit)
	for i := len(trades) - 1; i >= 0 && len(out) < limit; i-- {
		if keep(trades[i]) {
			out = append(out, trades[i])
		}
	}
	return out
}

// Repairs returns recorded margin reconciliation events, newest last.
func (e *Engine) Repairs() []MarginRepair {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]MarginRepair, len(e.repairs))
	copy(out, e.repairs)
	return out
}

// AccountIDs lists account ids in creation order.
func (e *Engine) AccountIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ledger.IDs()
}
