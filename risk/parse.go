package risk

import (
	"regexp"
	"strconv"
	"strings"
)

// Stop and take-profit instructions arrive as free text ("stop 3% below
// entry", "trail at 2x ATR", "1.5R target"). Parsing is best-effort: an
// unparseable or implausible value falls back to a documented default rather
// than silently producing a near-zero stop distance.

const (
	// DefaultStopDistancePct is used when the stop text carries no usable
	// percentage.
	DefaultStopDistancePct = 0.02
	// ATRStopDistancePct is used when the stop text references a
	// volatility range (ATR) without an explicit percentage; roughly 2x
	// ATR(14) for most liquid equities.
	ATRStopDistancePct = 0.04
	// DefaultRewardMultiple is the fallback risk-reward multiple.
	DefaultRewardMultiple = 1.5
)

var (
	pctRe      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
	multipleRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*r\b`)
)

// ParseStopDistance extracts a stop distance fraction from free text.
// Parsed percentages outside (0.1%, 50%] are treated as implausible and
// replaced by the default.
func ParseStopDistance(stopLogic string) float64 {
	s := strings.ToLower(stopLogic)

	if m := pctRe.FindStringSubmatch(s); m != nil {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err == nil && pct > 0.1 && pct <= 50 {
			return pct / 100
		}
	}
	if strings.Contains(s, "atr") {
		return ATRStopDistancePct
	}
	return DefaultStopDistancePct
}

// ParseRewardMultiple extracts a risk-reward multiple ("1.5R", "2R") from
// free text. Multiples outside (0, 10] fall back to the default.
func ParseRewardMultiple(takeProfitLogic string) float64 {
	s := strings.ToLower(takeProfitLogic)

	if m := multipleRe.FindStringSubmatch(s); m != nil {
		mult, err := strconv.ParseFloat(m[1], 64)
		if err == nil && mult > 0 && mult <= 10 {
			return mult
		}
	}
	return DefaultRewardMultiple
}
