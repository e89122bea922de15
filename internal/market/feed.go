// Package market provides the simulated price feed that drives the
// competition tick loop.
package market

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"arena-core/internal/events"
	"arena-core/pkg/cache"
)

// Tick is one published price observation.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	At     time.Time `json:"at"`
}

// SimulatedFeed generates a bounded random walk per symbol. Step is a
// fraction of the current price, so walks stay proportional across
// symbols with very different price levels. Latest prices land in a
// shared cache the API reads directly.
type SimulatedFeed struct {
	Bus         *events.Bus
	Symbols     []string
	StartPrices map[string]float64 // optional per-symbol seeds
	StartPrice  float64            // fallback seed when a symbol has none
	Step        float64            // max fractional move per tick
	Interval    time.Duration
	Cache       *cache.ShardedPriceCache

	mu  sync.Mutex
	rng *rand.Rand
}

// Start seeds prices and begins walking them until ctx is cancelled. Each
// tick publishes one price event per symbol.
func (f *SimulatedFeed) Start(ctx context.Context) {
	if f.Bus == nil {
		log.Println("simulated feed: bus not set")
		return
	}
	if len(f.Symbols) == 0 {
		f.Symbols = []string{"BTC"}
	}
	if f.StartPrice <= 0 {
		f.StartPrice = 100.0
	}
	if f.Step <= 0 {
		f.Step = 0.002
	}
	if f.Interval <= 0 {
		f.Interval = time.Second
	}
	if f.Cache == nil {
		f.Cache = cache.NewShardedPriceCache()
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for _, sym := range f.Symbols {
		price := f.StartPrices[sym]
		if price <= 0 {
			price = f.StartPrice
		}
		f.Cache.Set(sym, price)
	}

	go func() {
		t := time.NewTicker(f.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				f.step()
			}
		}
	}()
}

func (f *SimulatedFeed) step() {
	now := time.Now()
	f.mu.Lock()
	ticks := make([]Tick, 0, len(f.Symbols))
	for _, sym := range f.Symbols {
		price, ok := f.Cache.Get(sym)
		if !ok {
			continue
		}
		price *= 1 + (f.rng.Float64()*2-1)*f.Step
		f.Cache.Set(sym, price)
		ticks = append(ticks, Tick{Symbol: sym, Price: price, At: now})
	}
	f.mu.Unlock()

	for _, tick := range ticks {
		f.Bus.Publish(events.EventPriceTick, tick)
	}
}

// Snapshot returns a copy of the current price per symbol.
func (f *SimulatedFeed) Snapshot() map[string]float64 {
	if f.Cache == nil {
		return map[string]float64{}
	}
	return f.Cache.GetAll()
}
