// Package risk implements the position sizing engine: pure functions that
// turn a decision item plus current account and market state into a
// quantity, stop price, take-profit price, and dollar risk. No I/O.
package risk

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"llmtrader/decision"
)

// ErrUnsizeable is returned when no valid position size exists for the
// inputs (bad prices, or the 10%-of-equity cap cannot fit a single share).
// It is a transient condition, not a terminal failure: a retry with fresh
// market data may succeed.
var ErrUnsizeable = errors.New("risk: no valid position size")

// Inputs for one sizing computation.
type Inputs struct {
	Action          decision.Action
	Equity          float64 // account equity in dollars
	Price           float64 // current market price
	SizePctEquity   float64 // generator-suggested size, percent of equity
	MaxRiskPct      float64 // configured risk cap, percent of equity
	StopLogic       string
	TakeProfitLogic string
}

// Result of a sizing computation. Prices are rounded to cents.
type Result struct {
	Quantity        int
	StopPrice       float64
	TakeProfitPrice float64
	RiskAmount      float64 // dollars lost if the stop is hit
	StopDistancePct float64 // fraction, e.g. 0.02
	RewardMultiple  float64
}

// Calculate performs the full sizing computation. Deterministic: identical
// inputs always produce identical outputs.
//
//	risk_amount = equity x min(size_pct, max_risk_pct) / 100
//	quantity    = floor(risk_amount / (price x stop_distance)), clamped to
//	              [1, floor(equity x 0.10 / price)]
func Calculate(in Inputs) (Result, error) {
	if !in.Action.IsTrade() {
		return Result{}, fmt.Errorf("risk: action %q is not sizeable", in.Action)
	}
	if in.Equity <= 0 || in.Price <= 0 {
		return Result{}, fmt.Errorf("%w: equity=%.2f price=%.2f", ErrUnsizeable, in.Equity, in.Price)
	}

	riskPct := in.SizePctEquity
	if riskPct <= 0 || riskPct > in.MaxRiskPct {
		riskPct = in.MaxRiskPct
	}
	riskAmount := in.Equity * riskPct / 100

	stopDistance := ParseStopDistance(in.StopLogic)
	rewardMultiple := ParseRewardMultiple(in.TakeProfitLogic)

	// Never allocate more than 10% of equity to a single position.
	maxQty := int(math.Floor(in.Equity * 0.10 / in.Price))
	if maxQty < 1 {
		return Result{}, fmt.Errorf("%w: price %.2f exceeds 10%% equity cap", ErrUnsizeable, in.Price)
	}

	qty := int(math.Floor(riskAmount / (in.Price * stopDistance)))
	if qty < 1 {
		qty = 1
	}
	if qty > maxQty {
		qty = maxQty
	}

	stop := stopPrice(in.Action, in.Price, stopDistance)
	tp := takeProfitPrice(in.Action, in.Price, stop, rewardMultiple)

	return Result{
		Quantity:        qty,
		StopPrice:       stop,
		TakeProfitPrice: tp,
		RiskAmount:      math.Abs(in.Price-stop) * float64(qty),
		StopDistancePct: stopDistance,
		RewardMultiple:  rewardMultiple,
	}, nil
}

// stopPrice places the stop below entry for longs, above for shorts.
func stopPrice(action decision.Action, price, distance float64) float64 {
	if action == decision.ActionShort {
		return roundCents(price * (1 + distance))
	}
	return roundCents(price * (1 - distance))
}

// takeProfitPrice mirrors the stop distance by the reward multiple.
func takeProfitPrice(action decision.Action, price, stop, multiple float64) float64 {
	riskDistance := math.Abs(price - stop)
	if action == decision.ActionShort {
		return roundCents(price - riskDistance*multiple)
	}
	return roundCents(price + riskDistance*multiple)
}

// roundCents rounds half-up to two decimal places. Done through decimal
// arithmetic so 0.615-style float artifacts round the way a broker would.
func roundCents(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
