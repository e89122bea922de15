// Package arena composes the per-edition trading cores and drives the
// shared tick pipeline over all of them.
package arena

import (
	"context"
	"fmt"
	"log"
	"time"

	"arena-core/internal/decision"
	"arena-core/internal/engine"
	"arena-core/internal/events"
	"arena-core/internal/monitor"
	"arena-core/internal/orders"
	"arena-core/internal/valuation"
)

// Edition is one self-contained competition instance: its own engine,
// order monitor, valuation recorder and executor. Editions never share
// account state.
type Edition struct {
	Name     string
	Engine   *engine.Engine
	Monitor  *orders.Monitor
	Recorder *valuation.Recorder
	Executor *decision.Executor
}

// NewEdition wires one edition around a fresh engine.
func NewEdition(name string, initialBalance float64, historyCap int, referenceSymbol string, bus *events.Bus) *Edition {
	ed := &Edition{Name: name}
	var recorder *valuation.Recorder

	ed.Engine = engine.New(engine.Config{
		Name:           name,
		InitialBalance: initialBalance,
		Bus:            bus,
		Sink: sinkFunc(func(accountID string, at time.Time, totalValue, pnlPercent float64) {
			recorder.RecordValuation(accountID, at, totalValue, pnlPercent)
		}),
	})
	recorder = valuation.NewRecorder(valuation.Config{
		Engine:          ed.Engine,
		HistoryCap:      historyCap,
		ReferenceSymbol: referenceSymbol,
	})
	ed.Recorder = recorder
	ed.Monitor = orders.NewMonitor(ed.Engine, bus)
	ed.Executor = decision.NewExecutor(ed.Engine, ed.Monitor)
	return ed
}

// sinkFunc adapts a function to the engine's valuation sink.
type sinkFunc func(accountID string, at time.Time, totalValue, pnlPercent float64)

func (f sinkFunc) RecordValuation(accountID string, at time.Time, totalValue, pnlPercent float64) {
	f(accountID, at, totalValue, pnlPercent)
}

// PriceSource supplies the current price per symbol.
type PriceSource interface {
	Snapshot() map[string]float64
}

// Arena owns all editions and the tick loop that drives them.
type Arena struct {
	editions []*Edition
	byName   map[string]*Edition
	source   PriceSource
	metrics  *monitor.SystemMetrics
	interval time.Duration
}

// New creates an arena over editions, ticking at interval.
func New(editions []*Edition, source PriceSource, metrics *monitor.SystemMetrics, interval time.Duration) *Arena {
	if interval <= 0 {
		interval = time.Second
	}
	byName := make(map[string]*Edition, len(editions))
	for _, ed := range editions {
		byName[ed.Name] = ed
	}
	return &Arena{
		editions: editions,
		byName:   byName,
		source:   source,
		metrics:  metrics,
		interval: interval,
	}
}

// Editions returns all editions in declaration order.
func (a *Arena) Editions() []*Edition { return a.editions }

// Edition returns one edition by name.
func (a *Arena) Edition(name string) (*Edition, error) {
	ed, ok := a.byName[name]
	if !ok {
		return nil, fmt.Errorf("unknown edition %q", name)
	}
	return ed, nil
}

// Run drives the tick pipeline until ctx is cancelled. Each tick marks
// positions, checks conditional orders, then feeds the benchmark, in that
// order for every edition.
func (a *Arena) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	log.Printf("arena running: %d editions, tick %s", len(a.editions), a.interval)
	for {
		select {
		case <-ctx.Done():
			log.Println("arena stopped")
			return
		case <-ticker.C:
			a.Tick(a.source.Snapshot())
		}
	}
}

// Tick runs one pipeline pass over all editions with the given prices.
func (a *Arena) Tick(prices map[string]float64) {
	if len(prices) == 0 {
		return
	}
	for _, ed := range a.editions {
		var tickTimer *monitor.Timer
		if a.metrics != nil {
			tickTimer = monitor.NewTimer(a.metrics.TickLatency)
		}
		ed.Engine.UpdatePositions(prices)
		if tickTimer != nil {
			tickTimer.Stop()
		}

		var checkTimer *monitor.Timer
		if a.metrics != nil {
			checkTimer = monitor.NewTimer(a.metrics.OrderCheckLatency)
		}
		ed.Monitor.CheckOrders(prices)
		if checkTimer != nil {
			checkTimer.Stop()
		}

		ed.Recorder.ObservePrices(prices)
	}
	if a.metrics != nil {
		a.metrics.IncrementTicks()
	}
}
