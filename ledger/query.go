package ledger

import (
	"fmt"
	"time"
)

// DecisionSummary is the read-side view of one decided item.
type DecisionSummary struct {
	RunID               string
	Symbol              string
	Action              string
	Confidence          float64
	UpsideDownsideRatio float64
	ExpectedReturn      string
	CreatedAt           time.Time
}

// Metrics aggregates performance over a trailing window.
type Metrics struct {
	TotalReturnPct float64
	MaxDrawdownPct float64
	StartEquity    float64
	EndEquity      float64
	TotalOrders    int
	FilledOrders   int
	FillRatePct    float64
	Days           int
}

// RecentOrders returns the most recently submitted orders, newest first.
func (s *Store) RecentOrders(limit int) ([]OrderRecord, error) {
	rows, err := s.db.Query(`
		SELECT op_id, run_id, symbol, action, order_type, quantity, limit_price, stop_price, take_profit_price,
		       broker_order_id, status, filled_qty, filled_price, error_message, submitted_at, filled_at
		FROM orders
		ORDER BY submitted_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// OrdersByStatus returns orders in the given status, oldest first.
func (s *Store) OrdersByStatus(status string) ([]OrderRecord, error) {
	rows, err := s.db.Query(`
		SELECT op_id, run_id, symbol, action, order_type, quantity, limit_price, stop_price, take_profit_price,
		       broker_order_id, status, filled_qty, filled_price, error_message, submitted_at, filled_at
		FROM orders
		WHERE status = ?
		ORDER BY submitted_at ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OrderRecord
	for rows.Next() {
		rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentDecisions returns the latest decided items, newest first.
func (s *Store) RecentDecisions(limit int) ([]DecisionSummary, error) {
	rows, err := s.db.Query(`
		SELECT run_id, symbol, action, confidence, upside_downside_ratio, exp_return_brief, created_at
		FROM decisions
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionSummary
	for rows.Next() {
		var d DecisionSummary
		if err := rows.Scan(&d.RunID, &d.Symbol, &d.Action, &d.Confidence,
			&d.UpsideDownsideRatio, &d.ExpectedReturn, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// EquityCurve returns equity points from the last N days, oldest first.
func (s *Store) EquityCurve(days int) ([]EquityPoint, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := s.db.Query(`
		SELECT timestamp, total_equity, cash, positions_value, unrealized_pnl, realized_pnl_daily, drawdown_pct, peak_equity, num_positions
		FROM equity_curve
		WHERE timestamp >= ?
		ORDER BY timestamp ASC`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquityPoint
	for rows.Next() {
		var p EquityPoint
		if err := rows.Scan(&p.Timestamp, &p.TotalEquity, &p.Cash, &p.PositionsValue,
			&p.UnrealizedPL, &p.RealizedPLDaily, &p.DrawdownPct, &p.PeakEquity, &p.NumPositions); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PerformanceMetrics summarizes returns, drawdown and fill rate over the
// last N days. Returns (nil, nil) when no equity points exist in the window.
func (s *Store) PerformanceMetrics(days int) (*Metrics, error) {
	points, err := s.EquityCurve(days)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}

	start := points[0].TotalEquity
	end := points[len(points)-1].TotalEquity

	m := &Metrics{
		StartEquity: start,
		EndEquity:   end,
		Days:        days,
	}
	for _, p := range points {
		if p.DrawdownPct > m.MaxDrawdownPct {
			m.MaxDrawdownPct = p.DrawdownPct
		}
	}
	if start > 0 {
		m.TotalReturnPct = (end - start) / start * 100
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	err = s.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'filled' THEN 1 ELSE 0 END), 0)
		FROM orders WHERE submitted_at >= ?`, cutoff).Scan(&m.TotalOrders, &m.FilledOrders)
	if err != nil {
		return nil, err
	}
	if m.TotalOrders > 0 {
		m.FillRatePct = float64(m.FilledOrders) / float64(m.TotalOrders) * 100
	}
	return m, nil
}

// CleanupOldData deletes logs and equity points older than the retention
// window. Orders and decisions are kept: they are the audit trail.
func (s *Store) CleanupOldData(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var total int64
	res, err := s.db.Exec(`DELETE FROM logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup logs: %w", err)
	}
	n, _ := res.RowsAffected()
	total += n

	res, err = s.db.Exec(`DELETE FROM equity_curve WHERE timestamp < ?`, cutoff)
	if err != nil {
		return total, fmt.Errorf("cleanup equity curve: %w", err)
	}
	n, _ = res.RowsAffected()
	total += n

	return total, nil
}
