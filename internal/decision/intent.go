// Package decision validates loosely-typed trade signals into tagged
// intents and applies them to the accounting engine. Nothing untyped
// crosses this boundary: by the time an intent reaches the engine its
// kind, sizing and risk fields have all been checked.
package decision

import (
	"errors"
	"fmt"
	"strings"

	"arena-core/internal/engine"
)

// Kind is the validated intent variant.
type Kind string

const (
	KindLong  Kind = "long"
	KindShort Kind = "short"
	KindClose Kind = "close"
	KindHold  Kind = "hold"
)

const (
	maxLeverage = 20
	// minNotional rejects dust positions the fee model would distort.
	minNotional = 10.0
)

var (
	ErrUnknownSignal    = errors.New("unknown signal")
	ErrBadLeverage      = errors.New("leverage out of range")
	ErrBadPercentage    = errors.New("percentage out of range")
	ErrBelowMinNotional = errors.New("order below minimum notional")
)

// Signal is the raw payload as submitted by a strategy. Fields arrive
// loosely typed and optional; Validate is the only path to an Intent.
type Signal struct {
	Signal       string  `json:"signal" binding:"required"`
	Symbol       string  `json:"symbol" binding:"required"`
	Leverage     int     `json:"leverage"`
	Percentage   float64 `json:"percentage"`
	Confidence   float64 `json:"confidence"`
	StopLoss     float64 `json:"stop_loss"`
	ProfitTarget float64 `json:"profit_target"`
	Invalidation string  `json:"invalidation_condition"`
	RiskUSD      float64 `json:"risk_usd"`
	Reason       string  `json:"reason"`
}

// Intent is a fully validated trading decision.
type Intent struct {
	Kind       Kind
	Symbol     string
	Leverage   int
	Percentage float64
	Risk       engine.RiskMeta
	Reason     string
}

// Validate checks a raw signal and returns its typed intent.
func Validate(s Signal) (Intent, error) {
	kind, err := parseKind(s.Signal)
	if err != nil {
		return Intent{}, err
	}
	if s.Symbol == "" {
		return Intent{}, fmt.Errorf("%w: empty symbol", engine.ErrInvalidParameters)
	}

	intent := Intent{
		Kind:   kind,
		Symbol: strings.ToUpper(s.Symbol),
		Reason: s.Reason,
		Risk: engine.RiskMeta{
			ProfitTarget:     s.ProfitTarget,
			StopLoss:         s.StopLoss,
			InvalidationNote: s.Invalidation,
			Confidence:       s.Confidence,
			RiskUSD:          s.RiskUSD,
		},
	}
	if kind == KindClose || kind == KindHold {
		return intent, nil
	}

	if s.Leverage < 1 || s.Leverage > maxLeverage {
		return Intent{}, fmt.Errorf("%w: %d (allowed 1-%d)", ErrBadLeverage, s.Leverage, maxLeverage)
	}
	if s.Percentage <= 0 || s.Percentage > 100 {
		return Intent{}, fmt.Errorf("%w: %.2f (allowed 0-100]", ErrBadPercentage, s.Percentage)
	}
	intent.Leverage = s.Leverage
	intent.Percentage = s.Percentage
	return intent, nil
}

func parseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy_long", "open_long", "long":
		return KindLong, nil
	case "buy_short", "open_short", "short":
		return KindShort, nil
	case "sell", "close":
		return KindClose, nil
	case "hold", "":
		return KindHold, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSignal, raw)
	}
}

// SizeOrder converts a percentage of available cash into a quantity at
// price: invest = available * pct/100, quantity = invest * leverage / price.
func SizeOrder(available, percentage float64, leverage int, price float64) (float64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: price %.8f", engine.ErrInvalidParameters, price)
	}
	invest := available * percentage / 100
	quantity := invest * float64(leverage) / price
	if quantity*price < minNotional {
		return 0, fmt.Errorf("%w: %.2f < %.2f", ErrBelowMinNotional, quantity*price, minNotional)
	}
	return quantity, nil
}
