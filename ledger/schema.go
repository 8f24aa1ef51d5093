// ledger/schema.go
package ledger

const Schema = `
CREATE TABLE IF NOT EXISTS trading_runs (
	run_id TEXT PRIMARY KEY,
	timestamp_local DATETIME NOT NULL,
	schema_version INTEGER NOT NULL,
	universe_json TEXT NOT NULL,
	cash_estimate TEXT NOT NULL,
	notable_exposures_json TEXT NOT NULL,
	notes_json TEXT NOT NULL,
	safety_json TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	confidence REAL NOT NULL,
	upside_downside_ratio REAL NOT NULL,
	exp_return_brief TEXT NOT NULL,
	order_plan_json TEXT,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS orders (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	op_id TEXT NOT NULL UNIQUE,
	run_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	action TEXT NOT NULL,
	order_type TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	limit_price REAL,
	stop_price REAL,
	take_profit_price REAL,
	broker_order_id TEXT,
	status TEXT NOT NULL,
	filled_qty INTEGER NOT NULL DEFAULT 0,
	filled_price REAL,
	error_message TEXT,
	submitted_at DATETIME NOT NULL,
	filled_at DATETIME
);

CREATE TABLE IF NOT EXISTS equity_curve (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	total_equity REAL NOT NULL,
	cash REAL NOT NULL,
	positions_value REAL NOT NULL,
	unrealized_pnl REAL NOT NULL,
	realized_pnl_daily REAL NOT NULL,
	drawdown_pct REAL NOT NULL,
	peak_equity REAL NOT NULL,
	num_positions INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	level TEXT NOT NULL,
	logger TEXT NOT NULL,
	message TEXT NOT NULL,
	run_id TEXT,
	symbol TEXT,
	extra_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_orders_run ON orders(run_id);
CREATE INDEX IF NOT EXISTS idx_orders_submitted ON orders(submitted_at);
CREATE INDEX IF NOT EXISTS idx_decisions_run ON decisions(run_id);
CREATE INDEX IF NOT EXISTS idx_equity_timestamp ON equity_curve(timestamp);
CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
`
