// Package ledger is the execution ledger: every submitted order, every
// decision, every equity snapshot lands here. The orders table carries a
// UNIQUE op_id so re-running a cycle can never submit the same operation
// twice.
package ledger

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"llmtrader/decision"
)

// ErrDuplicateOperation is returned by RecordOrder when an order with the
// same op_id already exists. Callers treat it as "already done", not as a
// failure.
var ErrDuplicateOperation = errors.New("operation already recorded")

// OrderRecord is one row of the orders table.
type OrderRecord struct {
	OpID            string
	RunID           string
	Symbol          string
	Action          string
	OrderType       string
	Quantity        int
	LimitPrice      *float64
	StopPrice       *float64
	TakeProfitPrice *float64
	BrokerOrderID   string
	Status          string
	FilledQty       int
	FilledPrice     *float64
	ErrorMessage    string
	SubmittedAt     time.Time
	FilledAt        *time.Time
}

// EquityPoint is one row of the equity_curve table.
type EquityPoint struct {
	Timestamp       time.Time
	TotalEquity     float64
	Cash            float64
	PositionsValue  float64
	UnrealizedPL    float64
	RealizedPLDaily float64
	DrawdownPct     float64
	PeakEquity      float64
	NumPositions    int
}

// Store is the sqlite-backed ledger.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger database at path. WAL mode
// keeps the runner and read-side CLI commands from blocking each other.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger schema: %w", err)
	}

	return &Store{db: db}, nil
}

// IsExecuted reports whether an order with this op_id has been recorded.
func (s *Store) IsExecuted(opID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE op_id = ?`, opID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecordOrder inserts an order row. The UNIQUE constraint on op_id is the
// idempotency barrier: a duplicate returns ErrDuplicateOperation and writes
// nothing.
func (s *Store) RecordOrder(rec OrderRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO orders
		(op_id, run_id, symbol, action, order_type, quantity, limit_price, stop_price, take_profit_price,
		 broker_order_id, status, filled_qty, filled_price, error_message, submitted_at, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OpID, rec.RunID, rec.Symbol, rec.Action, rec.OrderType, rec.Quantity,
		rec.LimitPrice, rec.StopPrice, rec.TakeProfitPrice,
		rec.BrokerOrderID, rec.Status, rec.FilledQty, rec.FilledPrice,
		rec.ErrorMessage, rec.SubmittedAt, rec.FilledAt,
	)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return fmt.Errorf("%w: %s", ErrDuplicateOperation, rec.OpID)
		}
		return err
	}
	return nil
}

// GetOrder returns the recorded order for op_id, or (nil, nil) when absent.
func (s *Store) GetOrder(opID string) (*OrderRecord, error) {
	row := s.db.QueryRow(`
		SELECT op_id, run_id, symbol, action, order_type, quantity, limit_price, stop_price, take_profit_price,
		       broker_order_id, status, filled_qty, filled_price, error_message, submitted_at, filled_at
		FROM orders WHERE op_id = ?`, opID)

	rec, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// UpdateOrderStatus records the broker's view of an already-submitted order.
func (s *Store) UpdateOrderStatus(opID, status string, filledQty int, filledPrice *float64, filledAt *time.Time) error {
	res, err := s.db.Exec(`
		UPDATE orders SET status = ?, filled_qty = ?, filled_price = ?, filled_at = ?
		WHERE op_id = ?`,
		status, filledQty, filledPrice, filledAt, opID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %q not found", opID)
	}
	return nil
}

// StoreDecision persists a full decision: one trading_runs row plus one
// decisions row per item. Order plans are kept as JSON for audit.
func (s *Store) StoreDecision(d *decision.Decision) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	universe, err := json.Marshal(d.Universe)
	if err != nil {
		return err
	}
	exposures, err := json.Marshal(d.PositionsContext.NotableExposures)
	if err != nil {
		return err
	}
	notes, err := json.Marshal(d.Notes)
	if err != nil {
		return err
	}
	safety, err := json.Marshal(d.Safety)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = tx.Exec(`
		INSERT INTO trading_runs
		(run_id, timestamp_local, schema_version, universe_json, cash_estimate, notable_exposures_json, notes_json, safety_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Timestamp, d.SchemaVersion, string(universe),
		d.PositionsContext.CashEstimate, string(exposures), string(notes), string(safety), now,
	)
	if err != nil {
		return fmt.Errorf("store run %s: %w", d.RunID, err)
	}

	for _, item := range d.Items {
		var planJSON *string
		if item.OrderPlan != nil {
			b, err := json.Marshal(item.OrderPlan)
			if err != nil {
				return err
			}
			str := string(b)
			planJSON = &str
		}
		_, err = tx.Exec(`
			INSERT INTO decisions
			(run_id, symbol, action, confidence, upside_downside_ratio, exp_return_brief, order_plan_json, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			d.RunID, item.Symbol, string(item.Action), item.Confidence,
			item.UpsideDownsideRatio, item.ExpectedReturn, planJSON, now,
		)
		if err != nil {
			return fmt.Errorf("store decision %s/%s: %w", d.RunID, item.Symbol, err)
		}
	}

	return tx.Commit()
}

// AppendEquityPoint appends one equity snapshot.
func (s *Store) AppendEquityPoint(p EquityPoint) error {
	_, err := s.db.Exec(`
		INSERT INTO equity_curve
		(timestamp, total_equity, cash, positions_value, unrealized_pnl, realized_pnl_daily, drawdown_pct, peak_equity, num_positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Timestamp, p.TotalEquity, p.Cash, p.PositionsValue,
		p.UnrealizedPL, p.RealizedPLDaily, p.DrawdownPct, p.PeakEquity, p.NumPositions,
	)
	return err
}

// MaxTotalEquity returns the highest total_equity recorded at or after
// since, or 0 when no points exist in the window.
func (s *Store) MaxTotalEquity(since time.Time) (float64, error) {
	var peak sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT MAX(total_equity) FROM equity_curve WHERE timestamp >= ?`, since).Scan(&peak)
	if err != nil {
		return 0, err
	}
	if !peak.Valid {
		return 0, nil
	}
	return peak.Float64, nil
}

// MaxPeakEquity returns the highest peak_equity ever recorded, or 0 when
// the curve is empty. The recorded peak only ever rises.
func (s *Store) MaxPeakEquity() (float64, error) {
	var peak sql.NullFloat64
	err := s.db.QueryRow(`SELECT MAX(peak_equity) FROM equity_curve`).Scan(&peak)
	if err != nil {
		return 0, err
	}
	if !peak.Valid {
		return 0, nil
	}
	return peak.Float64, nil
}

// AppendLog stores one structured log row.
func (s *Store) AppendLog(level, logger, message, runID, symbol string, extra map[string]any) error {
	var extraJSON *string
	if len(extra) > 0 {
		b, err := json.Marshal(extra)
		if err != nil {
			return err
		}
		str := string(b)
		extraJSON = &str
	}
	var runPtr, symPtr *string
	if runID != "" {
		runPtr = &runID
	}
	if symbol != "" {
		symPtr = &symbol
	}
	_, err := s.db.Exec(`
		INSERT INTO logs (timestamp, level, logger, message, run_id, symbol, extra_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), level, logger, message, runPtr, symPtr, extraJSON,
	)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*OrderRecord, error) {
	var (
		rec           OrderRecord
		brokerOrderID sql.NullString
		errorMessage  sql.NullString
		filledAt      sql.NullTime
	)
	err := row.Scan(
		&rec.OpID, &rec.RunID, &rec.Symbol, &rec.Action, &rec.OrderType, &rec.Quantity,
		&rec.LimitPrice, &rec.StopPrice, &rec.TakeProfitPrice,
		&brokerOrderID, &rec.Status, &rec.FilledQty, &rec.FilledPrice,
		&errorMessage, &rec.SubmittedAt, &filledAt,
	)
	if err != nil {
		return nil, err
	}
	rec.BrokerOrderID = brokerOrderID.String
	rec.ErrorMessage = errorMessage.String
	if filledAt.Valid {
		t := filledAt.Time
		rec.FilledAt = &t
	}
	return &rec, nil
}
