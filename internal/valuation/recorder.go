// Package valuation records per-account value history, maintains the
// buy-and-hold benchmark, and derives the leaderboard and financial
// metrics views.
package valuation

import (
	"math"
	"sort"
	"sync"
	"time"

	"arena-core/internal/engine"
)

const defaultHistoryCap = 1000

// BenchmarkID keys the synthetic buy-and-hold series in history views. It
// is reserved and never collides with competitor account ids.
const BenchmarkID = "buy_and_hold"

// Point is one recorded account valuation.
type Point struct {
	At         time.Time `json:"at"`
	TotalValue float64   `json:"total_value"`
	PnLPercent float64   `json:"pnl_percent"`
}

// LeaderboardEntry is one competitor row, ranked by total value.
type LeaderboardEntry struct {
	Rank       int     `json:"rank"`
	AccountID  string  `json:"account_id"`
	Name       string  `json:"name"`
	TotalValue float64 `json:"total_value"`
	PnLPercent float64 `json:"pnl_percent"`
	Wins       int     `json:"wins"`
	Losses     int     `json:"losses"`
	TradeCount int     `json:"trade_count"`
	RiskRatio  float64 `json:"risk_ratio"`
	Positions  int     `json:"open_positions"`
}

// Benchmark is the buy-and-hold comparison row: the value of putting the
// full initial balance into the reference symbol at the first observed
// price and never trading.
type Benchmark struct {
	Symbol     string  `json:"symbol"`
	TotalValue float64 `json:"total_value"`
	PnLPercent float64 `json:"pnl_percent"`
}

// Metrics is the per-account financial summary.
type Metrics struct {
	AccountID     string  `json:"account_id"`
	Name          string  `json:"name"`
	TotalValue    float64 `json:"total_value"`
	PnLPercent    float64 `json:"pnl_percent"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalFees     float64 `json:"total_fees"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	WinRate       float64 `json:"win_rate"`
	BiggestWin    float64 `json:"biggest_win"`
	BiggestLoss   float64 `json:"biggest_loss"`
	TradeCount    int     `json:"trade_count"`
	RiskRatio     float64 `json:"risk_ratio"`
}

// Recorder keeps bounded valuation history per account. It is the
// engine's ValuationSink; RecordValuation runs under the engine lock and
// must never call back into the engine.
type Recorder struct {
	mu      sync.RWMutex
	eng     *engine.Engine
	history map[string][]Point
	cap     int

	refSymbol     string
	firstRefPrice float64
	lastRefPrice  float64

	now func() time.Time
}

// Config parametrizes one recorder.
type Config struct {
	Engine          *engine.Engine
	HistoryCap      int    // bounded points per account, 0 = default
	ReferenceSymbol string // benchmark symbol, e.g. "BTC"
}

// NewRecorder creates a recorder for one engine instance.
func NewRecorder(cfg Config) *Recorder {
	capacity := cfg.HistoryCap
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &Recorder{
		eng:       cfg.Engine,
		history:   make(map[string][]Point),
		cap:       capacity,
		refSymbol: cfg.ReferenceSymbol,
		now:       time.Now,
	}
}

// RecordValuation appends one valuation point, keeping at most cap points.
func (r *Recorder) RecordValuation(accountID string, at time.Time, totalValue, pnlPercent float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appendLocked(accountID, Point{At: at, TotalValue: totalValue, PnLPercent: pnlPercent})
}

func (r *Recorder) appendLocked(id string, p Point) {
	pts := append(r.history[id], p)
	if len(pts) > r.cap {
		pts = pts[len(pts)-r.cap:]
	}
	r.history[id] = pts
}

// ObservePrices updates the benchmark from a tick's price map. The first
// observed reference price anchors the buy-and-hold baseline; every
// observation after that appends one point to the benchmark series, kept
// under the same bound as account history.
func (r *Recorder) ObservePrices(prices map[string]float64) {
	price, ok := prices[r.refSymbol]
	if !ok || price <= 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstRefPrice == 0 {
		r.firstRefPrice = price
	}
	r.lastRefPrice = price

	bench, _ := r.benchmarkLocked()
	r.appendLocked(BenchmarkID, Point{At: r.now(), TotalValue: bench.TotalValue, PnLPercent: bench.PnLPercent})
}

// BenchmarkValue returns the current buy-and-hold row, or false before the
// first reference price has been observed.
func (r *Recorder) BenchmarkValue() (Benchmark, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.benchmarkLocked()
}

func (r *Recorder) benchmarkLocked() (Benchmark, bool) {
	if r.firstRefPrice == 0 {
		return Benchmark{}, false
	}
	pct := (r.lastRefPrice - r.firstRefPrice) / r.firstRefPrice * 100
	return Benchmark{
		Symbol:     r.refSymbol,
		TotalValue: r.eng.InitialBalance() * (1 + pct/100),
		PnLPercent: pct,
	}, true
}

// Leaderboard ranks every account by total value, descending, ties broken
// by account id for a stable order. Once the benchmark is anchored it
// competes as a virtual row under BenchmarkID.
func (r *Recorder) Leaderboard() ([]LeaderboardEntry, Benchmark) {
	snaps := r.eng.Snapshots()

	r.mu.RLock()
	bench, anchored := r.benchmarkLocked()
	r.mu.RUnlock()

	entries := make([]LeaderboardEntry, 0, len(snaps)+1)
	for _, s := range snaps {
		entries = append(entries, LeaderboardEntry{
			AccountID:  s.AccountID,
			Name:       s.Name,
			TotalValue: s.TotalValue,
			PnLPercent: s.PnLPercent,
			Wins:       s.Wins,
			Losses:     s.Losses,
			TradeCount: s.TradeCount,
			RiskRatio:  RiskRatio(s.Returns),
			Positions:  len(s.Positions),
		})
	}
	if anchored {
		entries = append(entries, LeaderboardEntry{
			AccountID:  BenchmarkID,
			Name:       bench.Symbol + " BUY&HOLD",
			TotalValue: bench.TotalValue,
			PnLPercent: bench.PnLPercent,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalValue != entries[j].TotalValue {
			return entries[i].TotalValue > entries[j].TotalValue
		}
		return entries[i].AccountID < entries[j].AccountID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, bench
}

// FinancialMetrics returns the derived summary for one account.
func (r *Recorder) FinancialMetrics(accountID string) (Metrics, error) {
	s, err := r.eng.Snapshot(accountID)
	if err != nil {
		return Metrics{}, err
	}

	winRate := 0.0
	if closed := s.Wins + s.Losses; closed > 0 {
		winRate = float64(s.Wins) / float64(closed) * 100
	}
	return Metrics{
		AccountID:     s.AccountID,
		Name:          s.Name,
		TotalValue:    s.TotalValue,
		PnLPercent:    s.PnLPercent,
		RealizedPnL:   s.RealizedPnL,
		UnrealizedPnL: s.UnrealizedPnL,
		TotalFees:     s.TotalFees,
		Wins:          s.Wins,
		Losses:        s.Losses,
		WinRate:       winRate,
		BiggestWin:    s.BiggestWin,
		BiggestLoss:   s.BiggestLoss,
		TradeCount:    s.TradeCount,
		RiskRatio:     RiskRatio(s.Returns),
	}, nil
}

// History returns an account's valuation points within the timeframe.
// Recognized timeframes are "1h", "24h" and "7d"; anything else returns
// the full retained history. The window is exclusive at the cutoff: a
// point stamped exactly cutoff old is filtered out. BenchmarkID retrieves
// the synthetic buy-and-hold series.
func (r *Recorder) History(accountID, timeframe string) []Point {
	var cutoff time.Time
	switch timeframe {
	case "1h":
		cutoff = r.now().Add(-time.Hour)
	case "24h":
		cutoff = r.now().Add(-24 * time.Hour)
	case "7d":
		cutoff = r.now().Add(-7 * 24 * time.Hour)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	pts := r.history[accountID]
	out := make([]Point, 0, len(pts))
	for _, p := range pts {
		if cutoff.IsZero() || p.At.After(cutoff) {
			out = append(out, p)
		}
	}
	return out
}

// RiskRatio is the per-tick risk-adjusted return score:
// mean(returns)/stdev(returns)*sqrt(n). Zero when there are no returns or
// no variance.
func RiskRatio(returns []float64) float64 {
	n := len(returns)
	if n == 0 {
		return 0
	}

	var sum float64
	for _, x := range returns {
		sum += x
	}
	mean := sum / float64(n)

	var variance float64
	for _, x := range returns {
		d := x - mean
		variance += d * d
	}
	variance /= float64(n)

	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return mean / stdev * math.Sqrt(float64(n))
}
