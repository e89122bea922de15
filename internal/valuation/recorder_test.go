package valuation

import (
	"math"
	"testing"
	"time"

	"arena-core/internal/engine"
)

func approx(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, expected %v", name, got, want)
	}
}

func newRecorder(t *testing.T, accounts ...string) (*engine.Engine, *Recorder) {
	t.Helper()
	e := engine.New(engine.Config{InitialBalance: 10000})
	for _, id := range accounts {
		if _, err := e.CreateAccount(id, "Trader "+id); err != nil {
			t.Fatalf("CreateAccount %s: %v", id, err)
		}
	}
	return e, NewRecorder(Config{Engine: e, ReferenceSymbol: "BTC"})
}

func TestHistoryBounded(t *testing.T) {
	e, _ := newRecorder(t, "t1")
	r := NewRecorder(Config{Engine: e, HistoryCap: 3, ReferenceSymbol: "BTC"})

	base := time.Now()
	for i := 0; i < 5; i++ {
		r.RecordValuation("t1", base.Add(time.Duration(i)*time.Second), float64(10000+i), 0)
	}

	pts := r.History("t1", "all")
	if len(pts) != 3 {
		t.Fatalf("history length = %d, expected 3", len(pts))
	}
	approx(t, "oldest retained point", pts[0].TotalValue, 10002)
	approx(t, "newest point", pts[2].TotalValue, 10004)
}

func TestHistoryTimeframe(t *testing.T) {
	_, r := newRecorder(t, "t1")

	r.RecordValuation("t1", time.Now().Add(-2*time.Hour), 9900, -1)
	r.RecordValuation("t1", time.Now().Add(-10*time.Minute), 10100, 1)

	if got := len(r.History("t1", "1h")); got != 1 {
		t.Fatalf("1h history = %d points, expected 1", got)
	}
	if got := len(r.History("t1", "24h")); got != 2 {
		t.Fatalf("24h history = %d points, expected 2", got)
	}
	if got := len(r.History("t1", "all")); got != 2 {
		t.Fatalf("all history = %d points, expected 2", got)
	}
}

func TestHistoryCutoffExcludesBoundaryPoint(t *testing.T) {
	_, r := newRecorder(t, "t1")
	fixed := time.Now()
	r.now = func() time.Time { return fixed }

	// One point exactly at the cutoff, one just inside the window.
	r.RecordValuation("t1", fixed.Add(-time.Hour), 9900, -1)
	r.RecordValuation("t1", fixed.Add(-time.Hour+time.Second), 9950, -0.5)

	pts := r.History("t1", "1h")
	if len(pts) != 1 {
		t.Fatalf("1h history = %d points, expected the boundary point excluded", len(pts))
	}
	approx(t, "retained point", pts[0].TotalValue, 9950)
}

func TestBenchmarkSeriesBoundedAndAnchored(t *testing.T) {
	e, _ := newRecorder(t, "t1")
	r := NewRecorder(Config{Engine: e, HistoryCap: 3, ReferenceSymbol: "BTC"})

	for _, price := range []float64{100000, 101000, 102000, 103000, 104000} {
		r.ObservePrices(map[string]float64{"BTC": price})
	}

	pts := r.History(BenchmarkID, "all")
	if len(pts) != 3 {
		t.Fatalf("benchmark series length = %d, expected 3", len(pts))
	}
	// Still anchored to the first observed price after older points rotate out.
	approx(t, "oldest retained benchmark value", pts[0].TotalValue, 10200)
	approx(t, "newest benchmark value", pts[2].TotalValue, 10400)
	approx(t, "newest benchmark pnl percent", pts[2].PnLPercent, 4)
}

func TestLeaderboardRanksBenchmarkRow(t *testing.T) {
	e, r := newRecorder(t, "alpha")
	e.UpdatePositions(map[string]float64{"BTC": 100000})

	r.ObservePrices(map[string]float64{"BTC": 100000})
	r.ObservePrices(map[string]float64{"BTC": 110000})

	entries, bench := r.Leaderboard()
	if len(entries) != 2 {
		t.Fatalf("leaderboard has %d rows, expected account plus benchmark", len(entries))
	}
	if entries[0].AccountID != BenchmarkID || entries[0].Rank != 1 {
		t.Fatalf("benchmark row = %+v, expected rank 1", entries[0])
	}
	if entries[0].Name != "BTC BUY&HOLD" {
		t.Fatalf("benchmark row name = %q", entries[0].Name)
	}
	approx(t, "benchmark row value", entries[0].TotalValue, bench.TotalValue)
	if entries[1].AccountID != "alpha" || entries[1].Rank != 2 {
		t.Fatalf("account row = %+v, expected alpha at rank 2", entries[1])
	}
}

func TestBenchmarkAnchoredToFirstPrice(t *testing.T) {
	_, r := newRecorder(t, "t1")

	if _, ok := r.BenchmarkValue(); ok {
		t.Fatalf("benchmark available before any reference price")
	}

	r.ObservePrices(map[string]float64{"BTC": 100000})
	r.ObservePrices(map[string]float64{"BTC": 110000})

	bench, ok := r.BenchmarkValue()
	if !ok {
		t.Fatalf("benchmark missing after observations")
	}
	approx(t, "benchmark pnl percent", bench.PnLPercent, 10)
	approx(t, "benchmark value", bench.TotalValue, 11000)

	// A tick without the reference symbol leaves the benchmark unchanged.
	r.ObservePrices(map[string]float64{"ETH": 4000})
	bench, _ = r.BenchmarkValue()
	approx(t, "benchmark after unrelated tick", bench.TotalValue, 11000)
}

func TestLeaderboardOrdering(t *testing.T) {
	e, r := newRecorder(t, "alpha", "beta", "gamma")

	// beta trades profitably, gamma takes a loss, alpha stays flat.
	e.OpenPosition("beta", "BTC", engine.SideLong, 0.01, 100000, 10, engine.RiskMeta{}, "")
	e.ClosePosition("beta", "BTC", 105000, "")
	e.OpenPosition("gamma", "BTC", engine.SideLong, 0.01, 100000, 10, engine.RiskMeta{}, "")
	e.ClosePosition("gamma", "BTC", 96000, "")
	e.UpdatePositions(map[string]float64{"BTC": 100000})

	entries, _ := r.Leaderboard()
	if len(entries) != 3 {
		t.Fatalf("leaderboard has %d rows, expected 3", len(entries))
	}
	order := []string{"beta", "alpha", "gamma"}
	for i, want := range order {
		if entries[i].AccountID != want {
			t.Fatalf("rank %d = %s, expected %s", i+1, entries[i].AccountID, want)
		}
		if entries[i].Rank != i+1 {
			t.Fatalf("rank field = %d, expected %d", entries[i].Rank, i+1)
		}
	}
}

func TestLeaderboardTieBreaksByAccountID(t *testing.T) {
	_, r := newRecorder(t, "zeta", "alpha")

	entries, _ := r.Leaderboard()
	if entries[0].AccountID != "alpha" || entries[1].AccountID != "zeta" {
		t.Fatalf("tied accounts not ordered by id: %s, %s", entries[0].AccountID, entries[1].AccountID)
	}
}

func TestFinancialMetrics(t *testing.T) {
	e, r := newRecorder(t, "t1")
	e.OpenPosition("t1", "BTC", engine.SideLong, 0.01, 100000, 10, engine.RiskMeta{}, "")
	e.ClosePosition("t1", "BTC", 105000, "")
	e.OpenPosition("t1", "ETH", engine.SideLong, 1, 4000, 10, engine.RiskMeta{}, "")
	e.ClosePosition("t1", "ETH", 3900, "")

	m, err := r.FinancialMetrics("t1")
	if err != nil {
		t.Fatalf("FinancialMetrics: %v", err)
	}
	if m.Wins != 1 || m.Losses != 1 {
		t.Fatalf("wins/losses = %d/%d, expected 1/1", m.Wins, m.Losses)
	}
	approx(t, "win rate", m.WinRate, 50)

	if _, err := r.FinancialMetrics("ghost"); err == nil {
		t.Fatalf("expected error for unknown account")
	}
}

func TestRiskRatio(t *testing.T) {
	if got := RiskRatio(nil); got != 0 {
		t.Fatalf("RiskRatio(nil) = %v, expected 0", got)
	}
	if got := RiskRatio([]float64{0.01, 0.01, 0.01}); got != 0 {
		t.Fatalf("RiskRatio with zero variance = %v, expected 0", got)
	}

	returns := []float64{0.01, -0.01, 0.02, 0.0}
	got := RiskRatio(returns)

	mean := 0.005
	variance := 0.0
	for _, x := range returns {
		d := x - mean
		variance += d * d
	}
	variance /= 4
	want := mean / math.Sqrt(variance) * 2
	approx(t, "risk ratio", got, want)

	if RiskRatio([]float64{-0.01, -0.02, -0.01, -0.02}) >= 0 {
		t.Fatalf("losing streak should produce a negative ratio")
	}
}
