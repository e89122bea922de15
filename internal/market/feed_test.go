package market

import (
	"context"
	"testing"
	"time"

	"arena-core/internal/events"
)

func TestStartSeedsPrices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &SimulatedFeed{
		Bus:         events.NewBus(),
		Symbols:     []string{"BTC", "ETH"},
		StartPrices: map[string]float64{"BTC": 100000},
		StartPrice:  4000,
		Interval:    time.Hour, // no walk during the test
	}
	f.Start(ctx)

	snap := f.Snapshot()
	if snap["BTC"] != 100000 {
		t.Fatalf("BTC seed = %v, expected 100000", snap["BTC"])
	}
	// Symbols without an explicit seed fall back to StartPrice.
	if snap["ETH"] != 4000 {
		t.Fatalf("ETH seed = %v, expected 4000", snap["ETH"])
	}
}

func TestStepPublishesTicksAndStaysPositive(t *testing.T) {
	bus := events.NewBus()
	ch, unsub := bus.Subscribe(events.EventPriceTick, 16)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := &SimulatedFeed{
		Bus:        bus,
		Symbols:    []string{"BTC"},
		StartPrice: 100,
		Step:       0.01,
		Interval:   time.Hour,
	}
	f.Start(ctx)

	for i := 0; i < 10; i++ {
		f.step()
	}

	price := f.Snapshot()["BTC"]
	if price <= 0 {
		t.Fatalf("price walked non-positive: %v", price)
	}
	// 10 steps at 1% keep the walk near the seed.
	if price < 80 || price > 125 {
		t.Fatalf("price drifted implausibly: %v", price)
	}

	select {
	case msg := <-ch:
		tick, ok := msg.(Tick)
		if !ok || tick.Symbol != "BTC" || tick.Price <= 0 {
			t.Fatalf("unexpected tick payload: %#v", msg)
		}
	default:
		t.Fatalf("no tick published")
	}
}
