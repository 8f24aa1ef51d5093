package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, zap.NewNop(), "getAccount", func() (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestRetryRecovers(t *testing.T) {
	t.Parallel()

	calls := 0
	v, err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, zap.NewNop(), "getQuote", func() (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("timeout")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausts(t *testing.T) {
	t.Parallel()

	sentinel := errors.New("broker down")
	calls := 0
	_, err := Retry(context.Background(), RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, zap.NewNop(), "submitOrder", func() (int, error) {
		calls++
		return 0, sentinel
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "retries exhausted")
	assert.Equal(t, 3, calls) // first attempt + 2 retries
}

func TestRetryHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour}, zap.NewNop(), "getOrders", func() (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestQuoteMid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bid, ask float64
		expected float64
	}{
		{"simple", 100.0, 102.0, 101.0},
		{"same", 50.0, 50.0, 50.0},
		{"zero", 0.0, 0.0, 0.0},
		{"fractional", 10.01, 10.03, 10.02},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			q := Quote{Bid: tt.bid, Ask: tt.ask}
			assert.InDelta(t, tt.expected, q.Mid(), 1e-9)
		})
	}
}

func TestOrderOpen(t *testing.T) {
	t.Parallel()

	assert.True(t, Order{Status: "new"}.Open())
	assert.True(t, Order{Status: "partially_filled"}.Open())
	assert.False(t, Order{Status: "filled"}.Open())
	assert.False(t, Order{Status: "canceled"}.Open())
	assert.True(t, Order{Status: "filled"}.Filled())
}
