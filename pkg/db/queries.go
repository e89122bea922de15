package db

// InsertTradeSQL appends one executed trade to the journal.
const InsertTradeSQL = `
INSERT INTO trade_journal (
    edition, trade_id, account_id, symbol, action, side, qty, price,
    leverage, notional, margin, fee, entry_price, exit_price, pnl,
    holding_seconds, reason, executed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// InsertRepairSQL appends one margin reconciliation event.
const InsertRepairSQL = `
INSERT INTO margin_repairs (
    edition, account_id, stored, actual, drift, repaired_at
) VALUES (?, ?, ?, ?, ?, ?)`

// CountJournalRows returns the number of journaled trades for an edition.
func (d *Database) CountJournalRows(edition string) (int, error) {
	var n int
	err := d.DB.QueryRow(
		"SELECT COUNT(*) FROM trade_journal WHERE edition = ?", edition).Scan(&n)
	return n, err
}

// CountRepairRows returns the number of journaled margin repairs.
func (d *Database) CountRepairRows(edition string) (int, error) {
	var n int
	err := d.DB.QueryRow(
		"SELECT COUNT(*) FROM margin_repairs WHERE edition = ?", edition).Scan(&n)
	return n, err
}
