// Package runner owns the trading loop: one cycle per interval, exponential
// backoff on failures, periodic maintenance, and graceful shutdown through
// context cancellation. A closed market or an active kill switch makes a
// cycle a no-op, not a failure.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"llmtrader/broker"
	"llmtrader/config"
	"llmtrader/decision"
	"llmtrader/equity"
	"llmtrader/executor"
	"llmtrader/ledger"
	"llmtrader/risk"
)

// ErrTooManyFailures terminates the continuous loop after the configured
// number of consecutive cycle failures.
var ErrTooManyFailures = errors.New("too many consecutive cycle failures")

// Stats counts runner activity since start.
type Stats struct {
	TotalRuns          int
	SuccessfulRuns     int
	FailedRuns         int
	DecisionsGenerated int
	OrdersSubmitted    int
	StartTime          time.Time
}

// Runner drives the full cycle: snapshot, kill switch, decision, execution.
type Runner struct {
	gateway   broker.Gateway
	generator decision.Generator
	store     *ledger.Store
	exec      *executor.Executor
	tracker   *equity.Tracker
	cfg       config.Config
	log       *zap.Logger

	mu                sync.Mutex
	stats             Stats
	consecutiveErrors int
	lastCleanup       time.Time
}

func New(
	gateway broker.Gateway,
	generator decision.Generator,
	store *ledger.Store,
	exec *executor.Executor,
	tracker *equity.Tracker,
	cfg config.Config,
	log *zap.Logger,
) *Runner {
	return &Runner{
		gateway:   gateway,
		generator: generator,
		store:     store,
		exec:      exec,
		tracker:   tracker,
		cfg:       cfg,
		log:       log,
	}
}

// Backoff returns the delay before the next cycle after `consecutive`
// failures: base doubled per failure, capped at base x 32.
func Backoff(base time.Duration, consecutive int) time.Duration {
	n := consecutive
	if n > 5 {
		n = 5
	}
	return base << n
}

// RunOnce executes a single trading cycle. Market-closed and
// kill-switch-active cycles return nil: they are expected idle states.
func (r *Runner) RunOnce(ctx context.Context, focusSymbols []string) error {
	r.mu.Lock()
	r.stats.TotalRuns++
	r.mu.Unlock()

	err := r.cycle(ctx, focusSymbols)

	r.mu.Lock()
	if err != nil {
		r.stats.FailedRuns++
		r.consecutiveErrors++
	} else {
		r.stats.SuccessfulRuns++
		r.consecutiveErrors = 0
	}
	r.mu.Unlock()

	return err
}

func (r *Runner) cycle(ctx context.Context, focusSymbols []string) error {
	if r.cfg.Runner.MarketHoursOnly {
		open, err := r.gateway.IsMarketOpen(ctx)
		if err != nil {
			return fmt.Errorf("market clock: %w", err)
		}
		if !open {
			r.log.Info("market is closed, skipping trading cycle")
			return nil
		}
	}

	account, err := r.gateway.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account snapshot: %w", err)
	}

	positions, err := r.gateway.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("positions snapshot: %w", err)
	}

	if _, err := r.tracker.RecordSnapshot(account, positions); err != nil {
		// Equity history is best-effort: a write failure must not block
		// trading while the kill switch still sees older points.
		r.log.Warn("equity snapshot failed", zap.Error(err))
	}

	active, drawdown, err := r.tracker.KillSwitchActive(account.Equity)
	if err != nil {
		return fmt.Errorf("kill switch check: %w", err)
	}
	if active {
		r.log.Warn("kill switch active, skipping trading",
			zap.Float64("drawdown_pct", drawdown))
		return nil
	}

	exposures := make([]string, 0, len(positions))
	for _, p := range positions {
		exposures = append(exposures, p.Symbol)
	}

	d, err := r.generator.GenerateDecision(ctx, decision.Request{
		FocusSymbols:     focusSymbols,
		CashEstimate:     fmt.Sprintf("$%.2f", account.Cash),
		NotableExposures: exposures,
		NumPositions:     len(positions),
	})
	if err != nil {
		return fmt.Errorf("generate decision: %w", err)
	}

	log := r.log.With(zap.String("run_id", d.RunID))

	if err := r.store.StoreDecision(d); err != nil {
		log.Warn("decision audit store failed", zap.Error(err))
	}
	r.mu.Lock()
	r.stats.DecisionsGenerated++
	r.mu.Unlock()

	submitted := 0
	for _, item := range d.TradeItems() {
		quote, err := r.gateway.GetQuote(ctx, item.Symbol)
		if err != nil {
			log.Warn("no quote, skipping symbol",
				zap.String("symbol", item.Symbol), zap.Error(err))
			continue
		}

		result, err := r.exec.ExecuteDecision(ctx, item, account.Equity, quote.Mid(), d.RunID)
		if err != nil {
			switch {
			case errors.Is(err, executor.ErrGateRejected), errors.Is(err, risk.ErrUnsizeable):
				log.Warn("trade skipped", zap.String("symbol", item.Symbol), zap.Error(err))
			default:
				log.Error("execution error", zap.String("symbol", item.Symbol), zap.Error(err))
			}
			continue
		}
		if result != nil && result.OrderID != "" {
			submitted++
		}
	}

	r.mu.Lock()
	r.stats.OrdersSubmitted += submitted
	r.mu.Unlock()

	log.Info("trading cycle completed",
		zap.Int("symbols_analyzed", len(d.Research)),
		zap.Int("orders_submitted", submitted))
	return nil
}

// Run loops until the context is cancelled or too many consecutive cycles
// fail. Maintenance runs after every cycle regardless of its outcome.
func (r *Runner) Run(ctx context.Context) error {
	r.mu.Lock()
	r.stats.StartTime = time.Now().UTC()
	r.mu.Unlock()

	r.log.Info("starting continuous trading loop",
		zap.Duration("interval", r.cfg.Runner.LoopInterval()))

	defer r.shutdown()

	for {
		if ctx.Err() != nil {
			return nil
		}

		r.mu.Lock()
		failures := r.consecutiveErrors
		r.mu.Unlock()
		if failures >= r.cfg.Runner.MaxConsecutiveErrors {
			r.log.Error("stopping trading loop",
				zap.Int("consecutive_errors", failures))
			return fmt.Errorf("%w: %d", ErrTooManyFailures, failures)
		}

		err := r.RunOnce(ctx, r.cfg.Runner.FocusSymbols)

		delay := r.cfg.Runner.LoopInterval()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			r.mu.Lock()
			failures = r.consecutiveErrors
			r.mu.Unlock()
			delay = Backoff(r.cfg.Runner.BaseBackoff(), failures)
			r.log.Warn("trading cycle failed, backing off",
				zap.Duration("delay", delay), zap.Error(err))
		}

		r.maintain(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// maintain reconciles recently submitted orders against the broker, purges
// stale pending operations, and runs the daily retention cleanup.
func (r *Runner) maintain(ctx context.Context) {
	recent, err := r.store.RecentOrders(r.cfg.Runner.ReconcileOrderLimit)
	if err != nil {
		r.log.Warn("maintenance: recent orders query failed", zap.Error(err))
	} else {
		for _, rec := range recent {
			if rec.Status != string(executor.StatusSubmitted) && rec.Status != string(executor.StatusPending) {
				continue
			}
			if _, err := r.exec.UpdateOrderStatus(ctx, rec.OpID); err != nil {
				r.log.Warn("maintenance: order reconcile failed",
					zap.String("op_id", rec.OpID), zap.Error(err))
			}
		}
	}

	r.exec.CleanupStaleOperations(time.Duration(r.cfg.Runner.PendingOpMaxAgeHours) * time.Hour)

	r.mu.Lock()
	due := r.lastCleanup.IsZero() || time.Since(r.lastCleanup) >= 24*time.Hour
	if due {
		r.lastCleanup = time.Now().UTC()
	}
	r.mu.Unlock()

	if due {
		deleted, err := r.store.CleanupOldData(r.cfg.Ledger.RetentionDays)
		if err != nil {
			r.log.Warn("maintenance: retention cleanup failed", zap.Error(err))
		} else if deleted > 0 {
			r.log.Info("retention cleanup", zap.Int64("rows_deleted", deleted))
		}
	}
}

func (r *Runner) shutdown() {
	r.log.Info("initiating graceful shutdown")

	if r.cfg.Runner.CancelOrdersOnStop {
		// The loop context is already cancelled at this point.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		cancelled, err := r.exec.CancelPendingOrders(ctx, "")
		if err != nil {
			r.log.Warn("shutdown: cancel orders failed", zap.Error(err))
		} else if cancelled > 0 {
			r.log.Info("shutdown: cancelled pending orders", zap.Int("count", cancelled))
		}
	}

	s := r.GetStats()
	runtime := time.Duration(0)
	if !s.StartTime.IsZero() {
		runtime = time.Since(s.StartTime)
	}
	r.log.Info("trading session summary",
		zap.Duration("runtime", runtime),
		zap.Int("total_runs", s.TotalRuns),
		zap.Int("successful_runs", s.SuccessfulRuns),
		zap.Int("decisions_generated", s.DecisionsGenerated),
		zap.Int("orders_submitted", s.OrdersSubmitted))
}

// GetStats returns a copy of the counters.
func (r *Runner) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
