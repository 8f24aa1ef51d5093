// Package equity tracks account equity over time and drives the drawdown
// kill switch. The kill switch is recomputed from ledger history on every
// cycle and never persisted, so a recovery in equity re-enables trading
// without operator action.
package equity

import (
	"time"

	"go.uber.org/zap"

	"llmtrader/broker"
	"llmtrader/config"
	"llmtrader/ledger"
)

// Tracker appends equity snapshots to the ledger and evaluates drawdown
// against the configured kill-switch threshold.
type Tracker struct {
	store *ledger.Store
	cfg   config.StrategyConfig
	log   *zap.Logger
}

func NewTracker(store *ledger.Store, cfg config.StrategyConfig, log *zap.Logger) *Tracker {
	return &Tracker{store: store, cfg: cfg, log: log}
}

// RecordSnapshot derives an equity point from the account and open
// positions and appends it to the curve. The stored peak is monotone: it
// only rises, carrying forward the highest peak ever recorded.
func (t *Tracker) RecordSnapshot(account *broker.Account, positions []broker.Position) (ledger.EquityPoint, error) {
	var positionsValue, unrealized float64
	for _, p := range positions {
		positionsValue += p.MarketValue
		unrealized += p.UnrealizedPL
	}

	peak, err := t.store.MaxPeakEquity()
	if err != nil {
		return ledger.EquityPoint{}, err
	}
	if account.Equity > peak {
		peak = account.Equity
	}

	var drawdown float64
	if peak > 0 {
		drawdown = (peak - account.Equity) / peak * 100
	}

	point := ledger.EquityPoint{
		Timestamp:      time.Now().UTC(),
		TotalEquity:    account.Equity,
		Cash:           account.Cash,
		PositionsValue: positionsValue,
		UnrealizedPL:   unrealized,
		DrawdownPct:    drawdown,
		PeakEquity:     peak,
		NumPositions:   len(positions),
	}
	if err := t.store.AppendEquityPoint(point); err != nil {
		return ledger.EquityPoint{}, err
	}

	t.log.Debug("equity snapshot recorded",
		zap.Float64("total_equity", point.TotalEquity),
		zap.Float64("drawdown_pct", point.DrawdownPct),
		zap.Int("num_positions", point.NumPositions))

	return point, nil
}

// KillSwitchActive reports whether current drawdown from the trailing-window
// peak exceeds the configured threshold. With no history in the window the
// switch is inactive. The returned drawdown is the computed percentage.
func (t *Tracker) KillSwitchActive(currentEquity float64) (bool, float64, error) {
	since := time.Now().UTC().AddDate(0, 0, -t.cfg.KillSwitchDays)
	peak, err := t.store.MaxTotalEquity(since)
	if err != nil {
		return false, 0, err
	}
	if peak <= 0 {
		return false, 0, nil
	}

	drawdown := (peak - currentEquity) / peak * 100
	if drawdown > t.cfg.KillSwitchPct {
		t.log.Warn("kill switch activated",
			zap.Float64("drawdown_pct", drawdown),
			zap.Float64("limit_pct", t.cfg.KillSwitchPct),
			zap.Float64("peak_equity", peak),
			zap.Float64("current_equity", currentEquity))
		return true, drawdown, nil
	}
	return false, drawdown, nil
}
