package db

import "fmt"

const schema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS trade_journal (
    edition TEXT NOT NULL,
    trade_id INTEGER NOT NULL,
    account_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    action TEXT NOT NULL,
    side TEXT NOT NULL,
    qty REAL NOT NULL,
    price REAL NOT NULL,
    leverage INTEGER NOT NULL,
    notional REAL NOT NULL,
    margin REAL NOT NULL,
    fee REAL DEFAULT 0,
    entry_price REAL DEFAULT 0,
    exit_price REAL DEFAULT 0,
    pnl REAL DEFAULT 0,
    holding_seconds INTEGER DEFAULT 0,
    reason TEXT,
    executed_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (edition, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_trade_journal_account
    ON trade_journal (edition, account_id);

CREATE TABLE IF NOT EXISTS margin_repairs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    edition TEXT NOT NULL,
    account_id TEXT NOT NULL,
    stored REAL NOT NULL,
    actual REAL NOT NULL,
    drift REAL NOT NULL,
    repaired_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// ApplyMigrations bootstraps the schema; keep lightweight for fast startup.
func ApplyMigrations(d *Database) error {
	if d == nil || d.DB == nil {
		return fmt.Errorf("database is not initialized")
	}
	if _, err := d.DB.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
