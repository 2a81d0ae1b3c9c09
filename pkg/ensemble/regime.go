package ensemble

import (
	"math"

	"github.com/ajitpratap0/alphafuse/internal/indicators"
	"github.com/ajitpratap0/alphafuse/pkg/backtest"
	"github.com/rs/zerolog/log"
)

// RiskLevel is the coarse macro regime
type RiskLevel string

const (
	RiskUnknown  RiskLevel = "UNKNOWN" // no macro data supplied
	RiskNormal   RiskLevel = "NORMAL"
	RiskElevated RiskLevel = "ELEVATED"
	RiskHigh     RiskLevel = "HIGH"
)

// Regime is the output of the macro overlay
type Regime struct {
	Level      RiskLevel `json:"level"`
	Volatility float64   `json:"volatility"` // annualized, trailing window
	Breadth    float64   `json:"breadth"`    // share of recent closes above trend
	Scale      float64   `json:"scale"`      // multiplier applied to the target position
}

// assessRegime derives a risk level from a volatility proxy and a trend-breadth
// proxy over the macro series. Missing or too-short data leaves the position unscaled.
func (e *Engine) assessRegime(macro []backtest.Candle) Regime {
	if len(macro) < 2 {
		return Regime{Level: RiskUnknown, Scale: 1}
	}

	prices := make([]float64, len(macro))
	for i, c := range macro {
		prices[i] = c.Close
	}

	returns := backtest.Returns(prices)
	if len(returns) > e.config.RegimeWindow {
		returns = returns[len(returns)-e.config.RegimeWindow:]
	}
	vol := backtest.StdDev(returns) * math.Sqrt(backtest.TradingDaysPerYear)

	breadth := 1.0
	period := e.config.TrendPeriod
	if period > len(prices) {
		period = len(prices)
	}
	if trend, err := indicators.SMA(prices, period); err == nil {
		above, counted := 0, 0
		start := len(prices) - e.config.RegimeWindow
		if start < 0 {
			start = 0
		}
		for i := start; i < len(prices); i++ {
			if !indicators.Defined(trend[i]) {
				continue
			}
			counted++
			if prices[i] > trend[i] {
				above++
			}
		}
		if counted > 0 {
			breadth = float64(above) / float64(counted)
		}
	} else {
		log.Warn().Err(err).Msg("Failed to compute macro trend, breadth treated as neutral")
	}

	r := Regime{Level: RiskNormal, Volatility: vol, Breadth: breadth, Scale: 1}
	switch {
	case vol > e.config.HighVolatility && breadth < e.config.BrokenBreadth:
		r.Level = RiskHigh
		r.Scale = e.config.HighScale
	case vol > e.config.ElevatedVolatility || breadth < e.config.WeakBreadth:
		r.Level = RiskElevated
		r.Scale = e.config.ElevatedScale
	}
	return r
}
