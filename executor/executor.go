// Package executor turns decided trades into broker orders. Every pass is
// keyed by an operation id derived from the run, symbol and action; the
// ledger's unique constraint on that id makes re-execution a read, not a
// second order.
package executor

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
	"llmtrader/ledger"
	"llmtrader/risk"
)

// Status of one execution pass.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusFilled    Status = "filled"
	StatusCancelled Status = "cancelled"
	StatusRejected  Status = "rejected"
	StatusFailed    Status = "failed"
)

// ErrGateRejected marks a plan that failed a pre-trade gate (buying power,
// position count, risk budget, existing position). Gate failures write
// nothing to the ledger: the operation can be retried on a later run.
var ErrGateRejected = errors.New("pre-trade gate rejected")

// Plan is a fully sized order ready for the gates.
type Plan struct {
	OpID            string
	Symbol          string
	Action          decision.Action
	Quantity        int
	EntryPrice      *float64
	StopPrice       *float64
	TakeProfitPrice *float64
	OrderType       string
	EstimatedCost   float64
	RiskAmount      float64
	CreatedAt       time.Time
}

// Result is the outcome of one execution pass.
type Result struct {
	OpID        string
	Status      Status
	OrderID     string
	FilledQty   int
	FilledPrice *float64
	Err         string
}

// Executor drives decisions through sizing, gates and submission.
type Executor struct {
	gateway broker.Gateway
	store   *ledger.Store
	cfg     config.StrategyConfig
	log     *zap.Logger

	mu      sync.Mutex
	pending map[string]Plan
}

func New(gateway broker.Gateway, store *ledger.Store, cfg config.StrategyConfig, log *zap.Logger) *Executor {
	return &Executor{
		gateway: gateway,
		store:   store,
		cfg:     cfg,
		log:     log,
		pending: make(map[string]Plan),
	}
}

// OpID builds the idempotency key for one operation. Same run, symbol and
// action always produce the same id.
func OpID(runID, symbol string, action decision.Action) string {
	return fmt.Sprintf("%s_%s_%s", runID, symbol, action)
}

// ExecuteDecision runs one decided item through the full pipeline. No-trade
// items return (nil, nil). An already-executed operation returns the
// recorded result without touching the broker. Sizing and gate failures
// return an error and leave the ledger untouched; only a pass that reaches
// submission writes an order row.
func (e *Executor) ExecuteDecision(ctx context.Context, item decision.Item, equity, price float64, runID string) (*Result, error) {
	if !item.Action.IsTrade() {
		e.log.Info("skipping no-trade decision", zap.String("symbol", item.Symbol))
		return nil, nil
	}

	opID := OpID(runID, item.Symbol, item.Action)
	log := e.log.With(zap.String("op_id", opID), zap.String("symbol", item.Symbol))

	done, err := e.store.IsExecuted(opID)
	if err != nil {
		return nil, fmt.Errorf("dedupe check %s: %w", opID, err)
	}
	if done {
		log.Info("operation already executed, returning recorded result")
		return e.recordedResult(opID)
	}

	plan, err := e.buildPlan(item, equity, price, opID)
	if err != nil {
		return nil, err
	}

	if err := e.validatePlan(ctx, plan); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.pending[opID] = *plan
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pending, opID)
		e.mu.Unlock()
	}()

	result := e.submit(ctx, plan, log)

	if err := e.recordResult(result, plan, runID); err != nil {
		if errors.Is(err, ledger.ErrDuplicateOperation) {
			// Lost a race with another submission of the same op.
			log.Warn("duplicate operation detected at record time")
			return e.recordedResult(opID)
		}
		return result, fmt.Errorf("record result %s: %w", opID, err)
	}

	log.Info("execution completed", zap.String("status", string(result.Status)))
	return result, nil
}

func (e *Executor) buildPlan(item decision.Item, equity, price float64, opID string) (*Plan, error) {
	if item.OrderPlan == nil {
		return nil, fmt.Errorf("decision for %s has no order plan", item.Symbol)
	}

	sized, err := risk.Calculate(risk.Inputs{
		Action:          item.Action,
		Equity:          equity,
		Price:           price,
		SizePctEquity:   item.OrderPlan.SizePctEquity,
		MaxRiskPct:      e.cfg.RiskPerPositionPct,
		StopLogic:       item.OrderPlan.StopLogic,
		TakeProfitLogic: item.OrderPlan.TakeProfitLogic,
	})
	if err != nil {
		return nil, fmt.Errorf("size %s: %w", item.Symbol, err)
	}

	var entryPrice *float64
	if item.OrderPlan.Type == decision.OrderLimit {
		entryPrice = item.OrderPlan.LimitPrice
	}

	cost := float64(sized.Quantity) * price
	if entryPrice != nil {
		cost = float64(sized.Quantity) * *entryPrice
	}

	stop := sized.StopPrice
	tp := sized.TakeProfitPrice
	return &Plan{
		OpID:            opID,
		Symbol:          item.Symbol,
		Action:          item.Action,
		Quantity:        sized.Quantity,
		EntryPrice:      entryPrice,
		StopPrice:       &stop,
		TakeProfitPrice: &tp,
		OrderType:       string(item.OrderPlan.Type),
		EstimatedCost:   cost,
		RiskAmount:      sized.RiskAmount,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

func (e *Executor) validatePlan(ctx context.Context, plan *Plan) error {
	account, err := e.gateway.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("validate %s: %w", plan.OpID, err)
	}

	if plan.EstimatedCost > account.BuyingPower {
		return fmt.Errorf("%w: cost %.2f exceeds buying power %.2f", ErrGateRejected, plan.EstimatedCost, account.BuyingPower)
	}

	positions, err := e.gateway.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("validate %s: %w", plan.OpID, err)
	}
	if len(positions) >= e.cfg.MaxPositions {
		return fmt.Errorf("%w: %d positions open, limit %d", ErrGateRejected, len(positions), e.cfg.MaxPositions)
	}
	for _, p := range positions {
		if p.Symbol == plan.Symbol {
			return fmt.Errorf("%w: position already open for %s", ErrGateRejected, plan.Symbol)
		}
	}

	maxRisk := account.Equity * e.cfg.RiskPerPositionPct / 100
	if plan.RiskAmount > maxRisk {
		return fmt.Errorf("%w: risk %.2f exceeds budget %.2f", ErrGateRejected, plan.RiskAmount, maxRisk)
	}

	return nil
}

func (e *Executor) submit(ctx context.Context, plan *Plan, log *zap.Logger) *Result {
	side := broker.Buy
	if plan.Action == decision.ActionShort {
		side = broker.Sell
	}

	req := broker.OrderRequest{
		Symbol:     plan.Symbol,
		Side:       side,
		Quantity:   plan.Quantity,
		Type:       plan.OrderType,
		LimitPrice: plan.EntryPrice,
	}
	if e.cfg.UseBracketOrders {
		req.StopLoss = plan.StopPrice
		req.TakeProfit = plan.TakeProfitPrice
	}

	orderID, err := e.gateway.SubmitOrder(ctx, req)
	if err != nil {
		log.Error("order submission failed", zap.Error(err))
		return &Result{
			OpID:   plan.OpID,
			Status: StatusRejected,
			Err:    err.Error(),
		}
	}

	log.Info("order submitted",
		zap.String("order_id", orderID),
		zap.Int("quantity", plan.Quantity),
		zap.String("side", string(side)))

	return &Result{
		OpID:    plan.OpID,
		Status:  StatusSubmitted,
		OrderID: orderID,
	}
}

func (e *Executor) recordResult(result *Result, plan *Plan, runID string) error {
	return e.store.RecordOrder(ledger.OrderRecord{
		OpID:            result.OpID,
		RunID:           runID,
		Symbol:          plan.Symbol,
		Action:          string(plan.Action),
		OrderType:       plan.OrderType,
		Quantity:        plan.Quantity,
		LimitPrice:      plan.EntryPrice,
		StopPrice:       plan.StopPrice,
		TakeProfitPrice: plan.TakeProfitPrice,
		BrokerOrderID:   result.OrderID,
		Status:          string(result.Status),
		FilledQty:       result.FilledQty,
		FilledPrice:     result.FilledPrice,
		ErrorMessage:    result.Err,
		SubmittedAt:     time.Now().UTC(),
	})
}

func (e *Executor) recordedResult(opID string) (*Result, error) {
	rec, err := e.store.GetOrder(opID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("operation %s marked executed but not found", opID)
	}
	return &Result{
		OpID:        rec.OpID,
		Status:      Status(rec.Status),
		OrderID:     rec.BrokerOrderID,
		FilledQty:   rec.FilledQty,
		FilledPrice: rec.FilledPrice,
		Err:         rec.ErrorMessage,
	}, nil
}

// UpdateOrderStatus reconciles one recorded order against the broker. No-op
// when the order never reached the broker or is no longer reported.
func (e *Executor) UpdateOrderStatus(ctx context.Context, opID string) (*Result, error) {
	rec, err := e.store.GetOrder(opID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.BrokerOrderID == "" {
		return nil, nil
	}

	orders, err := e.gateway.GetOrders(ctx, broker.OrdersFilter{
		Status:  "all",
		Symbols: []string{rec.Symbol},
		Limit:   50,
	})
	if err != nil {
		return nil, fmt.Errorf("reconcile %s: %w", opID, err)
	}

	for _, o := range orders {
		if o.ID != rec.BrokerOrderID {
			continue
		}
		status := mapBrokerStatus(o.Status)
		if err := e.store.UpdateOrderStatus(opID, string(status), o.FilledQty, o.FilledPrice, o.FilledAt); err != nil {
			return nil, err
		}
		e.log.Debug("order status updated",
			zap.String("op_id", opID),
			zap.String("status", string(status)))
		return &Result{
			OpID:        opID,
			Status:      status,
			OrderID:     o.ID,
			FilledQty:   o.FilledQty,
			FilledPrice: o.FilledPrice,
		}, nil
	}
	return nil, nil
}

func mapBrokerStatus(s string) Status {
	switch s {
	case "filled":
		return StatusFilled
	case "canceled", "cancelled", "expired":
		return StatusCancelled
	case "rejected":
		return StatusRejected
	default:
		return StatusSubmitted
	}
}

// CancelPendingOrders cancels open broker orders, optionally limited to one
// symbol. Returns how many were cancelled.
func (e *Executor) CancelPendingOrders(ctx context.Context, symbol string) (int, error) {
	orders, err := e.gateway.GetOrders(ctx, broker.OrdersFilter{Status: "open"})
	if err != nil {
		return 0, fmt.Errorf("list open orders: %w", err)
	}

	cancelled := 0
	for _, o := range orders {
		if symbol != "" && o.Symbol != symbol {
			continue
		}
		if err := e.gateway.CancelOrder(ctx, o.ID); err != nil {
			e.log.Warn("cancel failed", zap.String("order_id", o.ID), zap.Error(err))
			continue
		}
		cancelled++
	}

	if cancelled > 0 {
		e.log.Info("cancelled open orders", zap.Int("count", cancelled))
	}
	return cancelled, nil
}

// PendingOperations snapshots the in-flight plans. The map is bookkeeping
// for observability; the ledger remains the source of truth.
func (e *Executor) PendingOperations() []Plan {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Plan, 0, len(e.pending))
	for _, p := range e.pending {
		out = append(out, p)
	}
	return out
}

// CleanupStaleOperations drops pending entries older than maxAge and
// returns how many were removed.
func (e *Executor) CleanupStaleOperations(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	for id, p := range e.pending {
		if p.CreatedAt.Before(cutoff) {
			delete(e.pending, id)
			removed++
		}
	}
	if removed > 0 {
		e.log.Info("cleaned up stale operations", zap.Int("count", removed))
	}
	return removed
}
