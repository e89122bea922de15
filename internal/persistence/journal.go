package persistence

import (
	"context"
	"log"

	"arena-core/internal/engine"
	"arena-core/internal/events"
	"arena-core/pkg/db"
)

// Journal appends executed trades and margin repairs to the audit
// database. It only ever writes. Rows are tagged with the edition the
// engine stamped on each event.
type Journal struct {
	writer *BatchWriter
}

// NewJournal creates a journal over a batch writer.
func NewJournal(writer *BatchWriter) *Journal {
	return &Journal{writer: writer}
}

// RecordTrade appends one trade row.
func (j *Journal) RecordTrade(t engine.Trade) {
	j.writer.WriteQuery(db.InsertTradeSQL,
		t.Edition, t.ID, t.AccountID, t.Symbol, string(t.Action), string(t.Side),
		t.Quantity, t.Price, t.Leverage, t.Notional, t.Margin, t.Fee,
		t.EntryPrice, t.ExitPrice, t.PnL, t.HoldingSeconds, t.Reason, t.Timestamp)
}

// RecordRepair appends one margin reconciliation row.
func (j *Journal) RecordRepair(r engine.MarginRepair) {
	j.writer.WriteQuery(db.InsertRepairSQL,
		r.Edition, r.AccountID, r.Stored, r.Actual, r.Drift, r.At)
}

// Watch journals every trade and margin repair published on the bus until
// ctx is cancelled.
func (j *Journal) Watch(ctx context.Context, bus *events.Bus) {
	trades, unsubTrades := bus.Subscribe(events.EventTradeExecuted, 256)
	repairs, unsubRepairs := bus.Subscribe(events.EventMarginRepair, 64)

	go func() {
		defer unsubTrades()
		defer unsubRepairs()
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-trades:
				if !ok {
					return
				}
				if t, ok := payload.(engine.Trade); ok {
					j.RecordTrade(t)
				} else {
					log.Printf("journal: unexpected trade payload %T", payload)
				}
			case payload, ok := <-repairs:
				if !ok {
					return
				}
				if r, ok := payload.(engine.MarginRepair); ok {
					j.RecordRepair(r)
				}
			}
		}
	}()
}
