package engine

import "time"

// Side of a leveraged position.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == SideLong || s == SideShort }

// Action recorded on a Trade.
type Action string

const (
	ActionOpenLong   Action = "open_long"
	ActionOpenShort  Action = "open_short"
	ActionCloseLong  Action = "close_long"
	ActionCloseShort Action = "close_short"
)

// RiskMeta carries the optional risk fields supplied by the decision layer.
// The engine stores them on the position verbatim; it never acts on them
// (stop/target execution belongs to the order monitor).
type RiskMeta struct {
	ProfitTarget     float64 `json:"profit_target,omitempty"`
	StopLoss         float64 `json:"stop_loss,omitempty"`
	InvalidationNote string  `json:"invalidation_note,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	RiskUSD          float64 `json:"risk_usd,omitempty"`
}

// Position is one open leveraged position. Margin is fixed at entry
// (notional/leverage); CurrentPrice and UnrealizedPnL are rewritten on
// every tick.
type Position struct {
	Symbol           string    `json:"symbol"`
	Side             Side      `json:"side"`
	Quantity         float64   `json:"quantity"`
	EntryPrice       float64   `json:"entry_price"`
	CurrentPrice     float64   `json:"current_price"`
	Leverage         int       `json:"leverage"`
	Margin           float64   `json:"margin"`
	LiquidationPrice float64   `json:"liquidation_price"`
	UnrealizedPnL    float64   `json:"unrealized_pnl"`
	Notional         float64   `json:"notional"`
	Risk             RiskMeta  `json:"risk"`
	EntryTime        time.Time `json:"entry_time"`
}

// Trade is one immutable row of the append-only trade log. IDs are assigned
// from a single sequence so they stay globally monotonic across accounts.
// Edition names the engine instance that produced the trade; ids are only
// unique within one edition.
type Trade struct {
	ID        int64   `json:"id"`
	Edition   string  `json:"edition,omitempty"`
	AccountID string  `json:"account_id"`
	Symbol    string  `json:"symbol"`
	Action    Action  `json:"action"`
	Side      Side    `json:"side"`
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
	Leverage  int     `json:"leverage"`
	Notional  float64 `json:"notional"`
	Margin    float64 `json:"margin"`
	Fee       float64 `json:"fee"`

	// Close-only fields.
	EntryPrice     float64 `json:"entry_price,omitempty"`
	ExitPrice      float64 `json:"exit_price,omitempty"`
	PnL            float64 `json:"pnl"`
	HoldingSeconds int64   `json:"holding_seconds,omitempty"`

	EntryTime time.Time `json:"entry_time,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// AccountSnapshot is a consistent point-in-time projection of one account
// and its open positions, taken under a single lock acquisition. Every
// external money view derives from this projection.
type AccountSnapshot struct {
	AccountID      string     `json:"account_id"`
	Name           string     `json:"name"`
	InitialBalance float64    `json:"initial_balance"`
	Cash           float64    `json:"cash"`
	MarginUsed     float64    `json:"margin_used"`
	AvailableCash  float64    `json:"available_cash"`
	RealizedPnL    float64    `json:"realized_pnl"`
	UnrealizedPnL  float64    `json:"unrealized_pnl"`
	TotalFees      float64    `json:"total_fees"`
	TotalValue     float64    `json:"total_value"`
	PnLPercent     float64    `json:"pnl_percent"`
	Wins           int        `json:"wins"`
	Losses         int        `json:"losses"`
	BiggestWin     float64    `json:"biggest_win"`
	BiggestLoss    float64    `json:"biggest_loss"`
	TradeCount     int        `json:"trade_count"`
	Returns        []float64  `json:"-"`
	Positions      []Position `json:"positions"`
	CreatedAt      time.Time  `json:"created_at"`
}

// MarginRepair records one self-healing reconciliation event: the stored
// marginUsed disagreed with the sum of open position margins and was
// overwritten.
type MarginRepair struct {
	Edition   string    `json:"edition,omitempty"`
	AccountID string    `json:"account_id"`
	Stored    float64   `json:"stored"`
	Actual    float64   `json:"actual"`
	Drift     float64   `json:"drift"`
	At        time.Time `json:"at"`
}

// ValuationSink receives one account valuation per tick. The valuation
// recorder implements it; the engine only pushes.
type ValuationSink interface {
	RecordValuation(accountID string, at time.Time, totalValue, pnlPercent float64)
}
