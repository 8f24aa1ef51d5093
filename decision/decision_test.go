package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDecision() *Decision {
	limit := 187.50
	return &Decision{
		SchemaVersion: 1,
		RunID:         "01JD0000000000000000000000",
		Timestamp:     time.Date(2025, 3, 4, 10, 15, 0, 0, time.UTC),
		Universe:      []string{"AAPL", "NVDA"},
		Items: []Item{
			{
				Symbol:     "AAPL",
				Action:     ActionLong,
				Confidence: 0.8,
				OrderPlan: &OrderPlan{
					Type:            OrderLimit,
					LimitPrice:      &limit,
					StopLogic:       "stop 3% below entry",
					TakeProfitLogic: "1.5R target",
					SizePctEquity:   0.5,
					QtyEstimate:     10,
				},
			},
			{Symbol: "NVDA", Action: ActionNoTrade, Confidence: 0.4},
		},
	}
}

func TestValidateOK(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validDecision().Validate())
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Decision)
		errMsg string
	}{
		{
			name:   "missing run id",
			mutate: func(d *Decision) { d.RunID = "" },
			errMsg: "run_id",
		},
		{
			name:   "zero timestamp",
			mutate: func(d *Decision) { d.Timestamp = time.Time{} },
			errMsg: "timestamp",
		},
		{
			name:   "missing symbol",
			mutate: func(d *Decision) { d.Items[0].Symbol = "" },
			errMsg: "symbol",
		},
		{
			name:   "unknown action",
			mutate: func(d *Decision) { d.Items[0].Action = "hold" },
			errMsg: "unknown action",
		},
		{
			name:   "confidence above one",
			mutate: func(d *Decision) { d.Items[0].Confidence = 1.2 },
			errMsg: "confidence",
		},
		{
			name:   "trade without order plan",
			mutate: func(d *Decision) { d.Items[0].OrderPlan = nil },
			errMsg: "order_plan required",
		},
		{
			name:   "limit order without price",
			mutate: func(d *Decision) { d.Items[0].OrderPlan.LimitPrice = nil },
			errMsg: "limit_price",
		},
		{
			name:   "unknown order type",
			mutate: func(d *Decision) { d.Items[0].OrderPlan.Type = "stop_limit" },
			errMsg: "order type",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := validDecision()
			tt.mutate(d)
			err := d.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNoTradeNeedsNoPlan(t *testing.T) {
	t.Parallel()

	d := validDecision()
	d.Items = []Item{{Symbol: "TSLA", Action: ActionNoTrade, Confidence: 0.3}}
	assert.NoError(t, d.Validate())
	assert.Empty(t, d.TradeItems())
}

func TestTradeItemsPreservesOrder(t *testing.T) {
	t.Parallel()

	d := validDecision()
	d.Items = append(d.Items, Item{
		Symbol:     "MSFT",
		Action:     ActionShort,
		Confidence: 0.7,
		OrderPlan:  &OrderPlan{Type: OrderMarket, StopLogic: "2%", TakeProfitLogic: "2R", SizePctEquity: 0.5},
	})

	items := d.TradeItems()
	require.Len(t, items, 2)
	assert.Equal(t, "AAPL", items[0].Symbol)
	assert.Equal(t, "MSFT", items[1].Symbol)
}
