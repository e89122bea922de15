// Package monitor tracks runtime health of the competition core: tick and
// order-check latencies plus counters for forced transitions.
package monitor

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"arena-core/internal/events"
)

// SystemMetrics aggregates latency histograms and event counters for the
// whole process.
type SystemMetrics struct {
	TickLatency       *LatencyHistogram
	OrderCheckLatency *LatencyHistogram
	JournalLatency    *LatencyHistogram

	ticksProcessed  uint64
	liquidations    uint64
	ordersTriggered uint64
	marginRepairs   uint64
	errorsCount     uint64
}

// NewSystemMetrics creates a metrics instance with default window sizes.
func NewSystemMetrics() *SystemMetrics {
	return &SystemMetrics{
		TickLatency:       NewLatencyHistogram(1000),
		OrderCheckLatency: NewLatencyHistogram(1000),
		JournalLatency:    NewLatencyHistogram(1000),
	}
}

// LatencyHistogram tracks latency samples in a sliding window. Stats are
// recomputed lazily, only when samples changed since the last call.
type LatencyHistogram struct {
	mu          sync.Mutex
	samples     []float64
	maxSize     int
	dirty       bool
	cachedStats LatencyStats
}

// NewLatencyHistogram creates a sliding window histogram.
func NewLatencyHistogram(size int) *LatencyHistogram {
	if size <= 0 {
		size = 1000
	}
	return &LatencyHistogram{
		samples: make([]float64, 0, size),
		maxSize: size,
		dirty:   true,
	}
}

// Record adds a latency sample in milliseconds.
func (h *LatencyHistogram) Record(latencyMs float64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		h.samples = h.samples[1:]
	}
	h.samples = append(h.samples, latencyMs)
	h.dirty = true
}

// RecordDuration converts a duration to milliseconds and records it.
func (h *LatencyHistogram) RecordDuration(d time.Duration) {
	h.Record(float64(d.Nanoseconds()) / 1e6)
}

// Stats returns min, max, avg, p50, p95, p99 over the current window.
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.dirty && h.cachedStats.Count > 0 {
		return h.cachedStats
	}

	n := len(h.samples)
	if n == 0 {
		return LatencyStats{}
	}

	sorted := make([]float64, n)
	copy(sorted, h.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	h.cachedStats = LatencyStats{
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   sum / float64(n),
		P50:   sorted[n/2],
		P95:   sorted[int(float64(n)*0.95)],
		P99:   sorted[int(float64(n)*0.99)],
		Count: n,
	}
	h.dirty = false
	return h.cachedStats
}

// LatencyStats holds computed latency statistics.
type LatencyStats struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Count int     `json:"count"`
}

// IncrementTicks counts one completed tick pipeline pass.
func (m *SystemMetrics) IncrementTicks() { atomic.AddUint64(&m.ticksProcessed, 1) }

// IncrementErrors counts one pipeline error.
func (m *SystemMetrics) IncrementErrors() { atomic.AddUint64(&m.errorsCount, 1) }

// WatchBus counts forced transitions published on the bus until ctx is
// cancelled.
func (m *SystemMetrics) WatchBus(ctx context.Context, bus *events.Bus) {
	watch := func(topic events.Event, counter *uint64) {
		ch, unsub := bus.Subscribe(topic, 64)
		go func() {
			defer unsub()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-ch:
					if !ok {
						return
					}
					atomic.AddUint64(counter, 1)
				}
			}
		}()
	}
	watch(events.EventLiquidation, &m.liquidations)
	watch(events.EventOrderFired, &m.ordersTriggered)
	watch(events.EventMarginRepair, &m.marginRepairs)
}

// MetricsSnapshot is a point-in-time view of all metrics.
type MetricsSnapshot struct {
	TickLatency       LatencyStats `json:"tick_latency"`
	OrderCheckLatency LatencyStats `json:"order_check_latency"`
	JournalLatency    LatencyStats `json:"journal_latency"`
	TicksProcessed    uint64       `json:"ticks_processed"`
	Liquidations      uint64       `json:"liquidations"`
	OrdersTriggered   uint64       `json:"orders_triggered"`
	MarginRepairs     uint64       `json:"margin_repairs"`
	ErrorsCount       uint64       `json:"errors_count"`
	GoroutineCount    int          `json:"goroutine_count"`
	HeapAlloc         uint64       `json:"heap_alloc_bytes"`
	Timestamp         time.Time    `json:"timestamp"`
}

// GetSnapshot returns the current metrics snapshot.
func (m *SystemMetrics) GetSnapshot() MetricsSnapshot {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return MetricsSnapshot{
		TickLatency:       m.TickLatency.Stats(),
		OrderCheckLatency: m.OrderCheckLatency.Stats(),
		JournalLatency:    m.JournalLatency.Stats(),
		TicksProcessed:    atomic.LoadUint64(&m.ticksProcessed),
		Liquidations:      atomic.LoadUint64(&m.liquidations),
		OrdersTriggered:   atomic.LoadUint64(&m.ordersTriggered),
		MarginRepairs:     atomic.LoadUint64(&m.marginRepairs),
		ErrorsCount:       atomic.LoadUint64(&m.errorsCount),
		GoroutineCount:    runtime.NumGoroutine(),
		HeapAlloc:         memStats.HeapAlloc,
		Timestamp:         time.Now(),
	}
}

// Timer measures one operation.
type Timer struct {
	start     time.Time
	histogram *LatencyHistogram
}

// NewTimer starts a timer recording into h.
func NewTimer(h *LatencyHistogram) *Timer {
	return &Timer{start: time.Now(), histogram: h}
}

// Stop records the elapsed time.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	if t.histogram != nil {
		t.histogram.RecordDuration(elapsed)
	}
	return elapsed
}
