package ensemble

import (
	"math"

	"github.com/rs/zerolog/log"
)

// Sizing records the Kelly position-sizing inputs and outputs
type Sizing struct {
	AvgWinProb float64 `json:"avg_win_prob"` // weighted, smoothed round-trip win rate
	AvgPayoff  float64 `json:"avg_payoff"`   // weighted return per unit of drawdown
	RawKelly   float64 `json:"raw_kelly"`    // f* before discounts
	Diversity  float64 `json:"diversity"`    // 1/(1+mean |corr|)
	Confidence float64 `json:"confidence"`   // tanh(slope * |signal|)
	Kelly      float64 `json:"kelly"`        // clipped to [0, max_leverage]
	Advice     string  `json:"advice"`
}

// smoothedWinRate pulls a round-trip win rate toward 0.5 in proportion to how
// few trades back it
func (e *Engine) smoothedWinRate(winRate float64, trades int) float64 {
	k := e.config.PriorTrades
	n := float64(trades)
	if n+k <= 0 {
		return winRate
	}
	return (winRate*n + 0.5*k) / (n + k)
}

// kellySizing computes the Kelly fraction from the weighted pool statistics
//
// Kelly Criterion Formula:
// f* = (p * b - q) / b
//
// Where:
// - p = weighted probability of a winning round trip
// - q = 1 - p
// - b = weighted payoff ratio, annual return per unit of drawdown
//
// f* is then discounted for correlation between strategies and for a weak
// blended signal, and clipped to [0, max_leverage].
func (e *Engine) kellySizing(results []StrategyResult, weights []float64, corr [][]float64, signal float64) Sizing {
	var s Sizing

	for i, r := range results {
		if weights[i] <= 0 {
			continue
		}
		m := r.Metrics
		s.AvgWinProb += e.smoothedWinRate(m.TradeWinRate, m.TradeCount) * weights[i]
		s.AvgPayoff += m.AnnualReturn / (math.Abs(m.MaxDrawdown) + e.config.PayoffDrawdown) * weights[i]
	}
	s.AvgPayoff = clip(s.AvgPayoff, e.config.MinPayoff, e.config.MaxPayoff)

	q := 1 - s.AvgWinProb
	s.RawKelly = (s.AvgWinProb*s.AvgPayoff - q) / (s.AvgPayoff + e.config.Epsilon)

	s.Diversity = 1 / (1 + clip(meanCorrelation(corr), 0, 1) + e.config.Epsilon)
	s.Confidence = math.Tanh(math.Abs(signal) * e.config.ConfidenceSlope)
	s.Kelly = clip(s.RawKelly*s.Diversity*s.Confidence, 0, e.config.MaxLeverage)
	s.Advice = KellyRecommendation(s.RawKelly)

	log.Debug().
		Float64("win_prob", s.AvgWinProb).
		Float64("payoff", s.AvgPayoff).
		Float64("raw_kelly", s.RawKelly).
		Float64("diversity", s.Diversity).
		Float64("confidence", s.Confidence).
		Float64("kelly", s.Kelly).
		Msg("Kelly sizing")

	return s
}

// meanCorrelation averages the absolute correlation matrix with a unit diagonal
func meanCorrelation(corr [][]float64) float64 {
	n := len(corr)
	if n == 0 {
		return 0
	}
	total := 0.0
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				total++
				continue
			}
			total += corr[i][j]
		}
	}
	return total / float64(n*n)
}

// KellyRecommendation provides interpretation of a Kelly fraction
func KellyRecommendation(kelly float64) string {
	percent := kelly * 100

	switch {
	case percent <= 0:
		return "No position recommended - negative edge (expected value < 0)"
	case percent <= 2:
		return "Very small position - minimal edge"
	case percent <= 5:
		return "Conservative position - moderate edge"
	case percent <= 10:
		return "Standard position - good edge"
	case percent <= 20:
		return "Large position - strong edge (monitor risk carefully)"
	case percent <= 30:
		return "Very large position - exceptional edge (high risk/reward)"
	default:
		return "Extremely large edge estimate - sizing is capped by diversity, confidence and leverage limits"
	}
}
