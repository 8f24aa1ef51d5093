package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStopDistance(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		logic    string
		expected float64
	}{
		{"explicit percent", "stop 3% below entry", 0.03},
		{"decimal percent", "2.5% trailing stop", 0.025},
		{"atr reference", "trail at 2x ATR(14)", 0.04},
		{"atr lowercase", "stop at 1.5 atr below", 0.04},
		{"no hint", "stop below support", 0.02},
		{"empty", "", 0.02},
		{"implausibly small", "0.05% stop", 0.02},
		{"implausibly large", "90% stop", 0.02},
		{"percent wins over atr", "3% or 2x ATR whichever tighter", 0.03},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.expected, ParseStopDistance(tt.logic), 1e-9)
		})
	}
}

func TestParseRewardMultiple(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		logic    string
		expected float64
	}{
		{"simple", "2R target", 2.0},
		{"decimal", "take profit at 1.5R", 1.5},
		{"uppercase", "3R", 3.0},
		{"no hint", "take profit at resistance", 1.5},
		{"empty", "", 1.5},
		{"implausible", "50R moonshot", 1.5},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.expected, ParseRewardMultiple(tt.logic), 1e-9)
		})
	}
}
