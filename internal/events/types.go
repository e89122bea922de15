package events

// Event enumerates high-level topics inside the accounting core.
type Event string

const (
	EventPriceTick     Event = "price_tick"
	EventTradeExecuted Event = "trade_executed"
	EventLiquidation   Event = "position_liquidated"
	EventOrderFired    Event = "order_triggered"
	EventMarginRepair  Event = "margin_repair"
	EventValuation     Event = "valuation_update"
)
