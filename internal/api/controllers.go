package api

import (
	"errors"
	"net/http"
	"time"

	"arena-core/internal/arena"
	"arena-core/internal/decision"
	"arena-core/internal/engine"
	"arena-core/internal/events"
	"arena-core/internal/valuation"

	"github.com/gin-gonic/gin"
)

type listTradesQuery struct {
	Limit int `form:"limit"`
}

func (q *listTradesQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondEngineError maps engine sentinels onto HTTP statuses.
func respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrAccountNotFound):
		respondError(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", err.Error())
	case errors.Is(err, engine.ErrPositionNotFound):
		respondError(c, http.StatusNotFound, "POSITION_NOT_FOUND", err.Error())
	case errors.Is(err, engine.ErrAccountExists):
		respondError(c, http.StatusConflict, "ACCOUNT_EXISTS", err.Error())
	case errors.Is(err, engine.ErrInsufficientMargin):
		respondError(c, http.StatusBadRequest, "INSUFFICIENT_MARGIN", err.Error())
	case errors.Is(err, engine.ErrInvalidParameters),
		errors.Is(err, decision.ErrUnknownSignal),
		errors.Is(err, decision.ErrBadLeverage),
		errors.Is(err, decision.ErrBadPercentage),
		errors.Is(err, decision.ErrBelowMinNotional):
		respondError(c, http.StatusBadRequest, "INVALID_PARAMETERS", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func (s *Server) edition(c *gin.Context) (*arena.Edition, bool) {
	ed, err := s.Arena.Edition(c.Param("edition"))
	if err != nil {
		respondError(c, http.StatusNotFound, "EDITION_NOT_FOUND", err.Error())
		return nil, false
	}
	return ed, true
}

func (s *Server) getSystemStatus(c *gin.Context) {
	editions := make([]string, 0)
	for _, ed := range s.Arena.Editions() {
		editions = append(editions, ed.Name)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"editions":         editions,
		"symbols":          s.Meta.Symbols,
		"reference_symbol": s.Meta.ReferenceSymbol,
		"tick_interval_ms": s.Meta.TickInterval.Milliseconds(),
		"stream_clients":   s.Bus.SubscriberCount(events.EventPriceTick),
		"version":          s.Meta.Version,
		"time":             time.Now().UTC(),
	})
}

func (s *Server) getSystemMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not enabled")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) getPrices(c *gin.Context) {
	if s.PriceCache != nil {
		out := make(map[string]gin.H)
		for sym := range s.Prices.Snapshot() {
			if price, age, ok := s.PriceCache.GetWithAge(sym); ok {
				out[sym] = gin.H{"price": price, "age_ms": age.Milliseconds()}
			}
		}
		c.JSON(http.StatusOK, gin.H{"prices": out, "cache": s.PriceCache.Stats()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"prices": s.Prices.Snapshot()})
}

func (s *Server) listEditions(c *gin.Context) {
	out := make([]gin.H, 0)
	for _, ed := range s.Arena.Editions() {
		out = append(out, gin.H{
			"name":     ed.Name,
			"accounts": ed.Engine.AccountIDs(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"editions": out})
}

func (s *Server) getLeaderboard(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	entries, bench := ed.Recorder.Leaderboard()
	c.JSON(http.StatusOK, gin.H{
		"edition":     ed.Name,
		"leaderboard": entries,
		"benchmark":   bench,
	})
}

func (s *Server) getAccount(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	metrics, err := ed.Recorder.FinancialMetrics(c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	snap, err := ed.Engine.Snapshot(c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"metrics":   metrics,
		"account":   snap,
		"positions": snap.Positions,
	})
}

func (s *Server) getPositions(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	if _, err := ed.Engine.Snapshot(c.Param("id")); err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": ed.Engine.Positions(c.Param("id"))})
}

func (s *Server) getEditionTrades(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	var q listTradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()
	c.JSON(http.StatusOK, gin.H{"trades": ed.Engine.Trades(q.Limit)})
}

func (s *Server) getAccountTrades(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	var q listTradesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()
	if _, err := ed.Engine.Snapshot(c.Param("id")); err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": ed.Engine.TradesForAccount(c.Param("id"), q.Limit)})
}

func (s *Server) getHistory(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	// The buy-and-hold series lives beside the accounts under a reserved id.
	if id := c.Param("id"); id != valuation.BenchmarkID {
		if _, err := ed.Engine.Snapshot(id); err != nil {
			respondEngineError(c, err)
			return
		}
	}
	timeframe := c.DefaultQuery("timeframe", "all")
	c.JSON(http.StatusOK, gin.H{
		"timeframe": timeframe,
		"history":   ed.Recorder.History(c.Param("id"), timeframe),
	})
}

func (s *Server) getOrders(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	if _, err := ed.Engine.Snapshot(c.Param("id")); err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": ed.Monitor.Orders(c.Param("id"))})
}

func (s *Server) getRepairs(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"repairs": ed.Engine.Repairs()})
}

// submitIntent validates a raw signal and applies it at the current price.
func (s *Server) submitIntent(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}

	var sig decision.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_PAYLOAD", "invalid request payload")
		return
	}
	intent, err := decision.Validate(sig)
	if err != nil {
		respondEngineError(c, err)
		return
	}

	price, ok := s.Prices.Snapshot()[intent.Symbol]
	if !ok && intent.Kind != decision.KindHold {
		respondError(c, http.StatusBadRequest, "UNKNOWN_SYMBOL", "no price for symbol "+intent.Symbol)
		return
	}

	res, err := ed.Executor.Apply(c.Param("id"), intent, price)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// reconcile forces one margin reconciliation pass for an account.
func (s *Server) reconcile(c *gin.Context) {
	ed, ok := s.edition(c)
	if !ok {
		return
	}
	marginUsed, err := ed.Engine.ReconcileMargin(c.Param("id"))
	if err != nil {
		respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_id":  c.Param("id"),
		"margin_used": marginUsed,
	})
}
