package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"llmtrader/broker"
	"llmtrader/config"
	"llmtrader/decision"
	"llmtrader/ledger"
	"llmtrader/risk"
)

type stubGateway struct {
	account    broker.Account
	positions  []broker.Position
	orders     []broker.Order
	submitErr  error
	submitted  []broker.OrderRequest
	cancelled  []string
	marketOpen bool
}

func (g *stubGateway) GetAccount(ctx context.Context) (*broker.Account, error) {
	a := g.account
	return &a, nil
}

func (g *stubGateway) GetPositions(ctx context.Context) ([]broker.Position, error) {
	return g.positions, nil
}

func (g *stubGateway) GetPosition(ctx context.Context, symbol string) (*broker.Position, error) {
	for _, p := range g.positions {
		if p.Symbol == symbol {
			pos := p
			return &pos, nil
		}
	}
	return nil, fmt.Errorf("no position for %s", symbol)
}

func (g *stubGateway) SubmitOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	if g.submitErr != nil {
		return "", g.submitErr
	}
	g.submitted = append(g.submitted, req)
	return fmt.Sprintf("order-%d", len(g.submitted)), nil
}

func (g *stubGateway) GetOrders(ctx context.Context, filter broker.OrdersFilter) ([]broker.Order, error) {
	return g.orders, nil
}

func (g *stubGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *stubGateway) GetQuote(ctx context.Context, symbol string) (*broker.Quote, error) {
	return &broker.Quote{Symbol: symbol, Bid: 49.99, Ask: 50.01}, nil
}

func (g *stubGateway) IsMarketOpen(ctx context.Context) (bool, error) {
	return g.marketOpen, nil
}

func newTestExecutor(t *testing.T, gw *stubGateway) (*Executor, *ledger.Store) {
	t.Helper()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return New(gw, store, config.Default().Strategy, zap.NewNop()), store
}

func healthyGateway() *stubGateway {
	return &stubGateway{
		account: broker.Account{
			Equity:      100000,
			Cash:        50000,
			BuyingPower: 50000,
		},
		marketOpen: true,
	}
}

func longItem() decision.Item {
	return decision.Item{
		Symbol:     "AAPL",
		Action:     decision.ActionLong,
		Confidence: 0.8,
		OrderPlan: &decision.OrderPlan{
			Type:            decision.OrderMarket,
			StopLogic:       "stop 2% below entry",
			TakeProfitLogic: "take profit at 1.5R",
			SizePctEquity:   0.5,
		},
	}
}

func TestOpID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "run-1_AAPL_long", OpID("run-1", "AAPL", decision.ActionLong))
	assert.Equal(t, "run-1_NVDA_short", OpID("run-1", "NVDA", decision.ActionShort))
}

func TestExecuteDecisionSubmits(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, store := newTestExecutor(t, gw)

	result, err := ex.ExecuteDecision(context.Background(), longItem(), 100000, 50, "run-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, StatusSubmitted, result.Status)
	assert.Equal(t, "order-1", result.OrderID)

	require.Len(t, gw.submitted, 1)
	req := gw.submitted[0]
	assert.Equal(t, "AAPL", req.Symbol)
	assert.Equal(t, broker.Buy, req.Side)
	assert.Equal(t, 200, req.Quantity) // clamped to 10% of equity / price
	assert.Equal(t, "market", req.Type)
	assert.Nil(t, req.StopLoss) // bracket orders off by default
	assert.Nil(t, req.TakeProfit)

	rec, err := store.GetOrder(result.OpID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "submitted", rec.Status)
	assert.Equal(t, "order-1", rec.BrokerOrderID)
	assert.Equal(t, 200, rec.Quantity)
}

func TestExecuteDecisionIdempotent(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, _ := newTestExecutor(t, gw)

	first, err := ex.ExecuteDecision(context.Background(), longItem(), 100000, 50, "run-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	// Re-running the same operation must not reach the broker again.
	second, err := ex.ExecuteDecision(context.Background(), longItem(), 100000, 50, "run-1")
	require.NoError(t, err)
	require.NotNil(t, second)

	assert.Equal(t, first.OpID, second.OpID)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Len(t, gw.submitted, 1)

	// A different run is a fresh operation.
	gw.positions = nil
	third, err := ex.ExecuteDecision(context.Background(), longItem(), 100000, 50, "run-2")
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.Len(t, gw.submitted, 2)
}

func TestExecuteDecisionNoTrade(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, _ := newTestExecutor(t, gw)

	item := decision.Item{Symbol: "NVDA", Action: decision.ActionNoTrade}
	result, err := ex.ExecuteDecision(context.Background(), item, 100000, 50, "run-1")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, gw.submitted)
}

func TestExecuteDecisionShortSells(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, _ := newTestExecutor(t, gw)

	item := longItem()
	item.Action = decision.ActionShort

	result, err := ex.ExecuteDecision(context.Background(), item, 100000, 50, "run-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, gw.submitted, 1)
	assert.Equal(t, broker.Sell, gw.submitted[0].Side)
}

func TestExecuteDecisionGates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(gw *stubGateway)
	}{
		{
			"insufficient buying power",
			func(gw *stubGateway) { gw.account.BuyingPower = 100 },
		},
		{
			"max positions reached",
			func(gw *stubGateway) {
				for i := 0; i < config.Default().Strategy.MaxPositions; i++ {
					gw.positions = append(gw.positions, broker.Position{Symbol: fmt.Sprintf("SYM%d", i)})
				}
			},
		},
		{
			"position already open",
			func(gw *stubGateway) {
				gw.positions = []broker.Position{{Symbol: "AAPL", Quantity: 10}}
			},
		},
		{
			"risk budget exceeded",
			func(gw *stubGateway) { gw.account.Equity = 10000 },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := healthyGateway()
			tt.setup(gw)
			ex, store := newTestExecutor(t, gw)

			result, err := ex.ExecuteDecision(context.Background(), longItem(), 100000, 50, "run-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrGateRejected)
			assert.Nil(t, result)
			assert.Empty(t, gw.submitted)

			// Gate failures must leave no trace in the ledger.
			done, err := store.IsExecuted("run-1_AAPL_long")
			require.NoError(t, err)
			assert.False(t, done)
		})
	}
}

func TestExecuteDecisionUnsizeable(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, store := newTestExecutor(t, gw)

	// 10% of equity cannot buy a single share.
	result, err := ex.ExecuteDecision(context.Background(), longItem(), 1000, 500, "run-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, risk.ErrUnsizeable)
	assert.Nil(t, result)

	done, err := store.IsExecuted("run-1_AAPL_long")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestExecuteDecisionMissingPlan(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, _ := newTestExecutor(t, gw)

	item := decision.Item{Symbol: "AAPL", Action: decision.ActionLong}
	_, err := ex.ExecuteDecision(context.Background(), item, 100000, 50, "run-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrGateRejected)
}

func TestExecuteDecisionSubmitFailureRecorded(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	gw.submitErr = errors.New("broker unavailable")
	ex, store := newTestExecutor(t, gw)

	result, err := ex.ExecuteDecision(context.Background(), longItem(), 100000, 50, "run-1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, StatusRejected, result.Status)
	assert.Contains(t, result.Err, "broker unavailable")

	// The rejection is recorded so the op is not retried within the run.
	rec, err := store.GetOrder(result.OpID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "rejected", rec.Status)
}

func TestBracketOrdersOptIn(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()

	store, err := ledger.Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := config.Default().Strategy
	cfg.UseBracketOrders = true
	ex := New(gw, store, cfg, zap.NewNop())

	result, err := ex.ExecuteDecision(context.Background(), longItem(), 100000, 50, "run-1")
	require.NoError(t, err)
	require.NotNil(t, result)

	require.Len(t, gw.submitted, 1)
	req := gw.submitted[0]
	require.NotNil(t, req.StopLoss)
	require.NotNil(t, req.TakeProfit)
	assert.InDelta(t, 49.00, *req.StopLoss, 1e-9)
	assert.InDelta(t, 51.50, *req.TakeProfit, 1e-9)
}

func TestUpdateOrderStatus(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, store := newTestExecutor(t, gw)

	first, err := ex.ExecuteDecision(context.Background(), longItem(), 100000, 50, "run-1")
	require.NoError(t, err)
	require.NotNil(t, first)

	price := 50.05
	filledAt := time.Now().UTC()
	gw.orders = []broker.Order{{
		ID:          first.OrderID,
		Symbol:      "AAPL",
		Status:      "filled",
		FilledQty:   200,
		FilledPrice: &price,
		FilledAt:    &filledAt,
	}}

	result, err := ex.UpdateOrderStatus(context.Background(), first.OpID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, StatusFilled, result.Status)
	assert.Equal(t, 200, result.FilledQty)

	rec, err := store.GetOrder(first.OpID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "filled", rec.Status)
	assert.Equal(t, 200, rec.FilledQty)
	require.NotNil(t, rec.FilledPrice)
	assert.InDelta(t, price, *rec.FilledPrice, 1e-9)
}

func TestUpdateOrderStatusUnknownOp(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, _ := newTestExecutor(t, gw)

	result, err := ex.UpdateOrderStatus(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestCancelPendingOrders(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	gw.orders = []broker.Order{
		{ID: "o1", Symbol: "AAPL", Status: "new"},
		{ID: "o2", Symbol: "NVDA", Status: "new"},
	}
	ex, _ := newTestExecutor(t, gw)

	n, err := ex.CancelPendingOrders(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"o1"}, gw.cancelled)

	gw.cancelled = nil
	n, err = ex.CancelPendingOrders(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCleanupStaleOperations(t *testing.T) {
	t.Parallel()

	gw := healthyGateway()
	ex, _ := newTestExecutor(t, gw)

	ex.mu.Lock()
	ex.pending["old"] = Plan{OpID: "old", CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	ex.pending["fresh"] = Plan{OpID: "fresh", CreatedAt: time.Now().UTC()}
	ex.mu.Unlock()

	removed := ex.CleanupStaleOperations(24 * time.Hour)
	assert.Equal(t, 1, removed)

	ops := ex.PendingOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, "fresh", ops[0].OpID)
}
