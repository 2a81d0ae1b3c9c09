package backtest

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func curveFromEquity(equity []float64, positions []float64, ops []Op) EquityCurve {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := make(EquityCurve, len(equity))
	for i, e := range equity {
		p := EquityPoint{Date: start.AddDate(0, 0, i), Close: 1, Equity: e, Cash: e, Op: OpHold}
		if positions != nil {
			p.Position = positions[i]
			p.Cash = e - positions[i]
		}
		if ops != nil {
			p.Op = ops[i]
		}
		curve[i] = p
	}
	return curve
}

func TestPerformance_DecreasingCurve(t *testing.T) {
	equity := make([]float64, 10)
	for i := range equity {
		equity[i] = 100 - float64(i)*50/9
	}

	m := Performance(curveFromEquity(equity, nil, nil))

	assert.InDelta(t, 0.5, m.MaxDrawdown, 1e-6)
	assert.InDelta(t, -0.5, m.TotalReturn, 1e-12)
	assert.Zero(t, m.TradeWinRate)
	assert.Zero(t, m.TradeCount)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.ProfitLossRatio, "no winning days")
	assert.Equal(t, 10, m.TotalDays)
	assert.Equal(t, 10, m.EmptyDays)
}

func TestPerformance_ReturnIdentity(t *testing.T) {
	equity := []float64{1000, 1010, 990, 1050, 1100, 1080}
	m := Performance(curveFromEquity(equity, nil, nil))

	assert.Equal(t, equity[len(equity)-1]/equity[0]-1, m.TotalReturn)
	assert.InDelta(t, m.TotalReturn/6*252, m.AnnualReturn, 1e-12)
	assert.InDelta(t, m.AnnualReturn/(m.MaxDrawdown+Epsilon), m.CalmarRatio, 1e-9)
}

func TestPerformance_DailyStatistics(t *testing.T) {
	// returns: +10%, 0, -5%, +10%
	equity := []float64{100, 110, 110, 104.5, 114.95}
	m := Performance(curveFromEquity(equity, nil, nil))

	assert.InDelta(t, 2.0/3.0, m.WinRate, 1e-12, "flat day is not active")
	assert.InDelta(t, 0.10/0.05, m.ProfitLossRatio, 1e-9)

	active := []float64{0.10, -0.05, 0.10}
	expectedSharpe := math.Sqrt(252) * Mean(active) / StdDev(active)
	assert.InDelta(t, expectedSharpe, m.SharpeRatio, 1e-6)
}

func TestPerformance_RoundTrips(t *testing.T) {
	equity := []float64{100, 100, 120, 120, 120, 90, 90, 90, 99}
	positions := []float64{0, 10, 0, 0, 10, 0, 0, 10, 11}
	ops := []Op{OpHold, OpBuy, OpSell, OpHold, OpBuy, OpSell, OpHold, OpBuy, OpHold}

	m := Performance(curveFromEquity(equity, positions, ops))

	assert.Equal(t, 2, m.TradeCount)
	assert.InDelta(t, 0.5, m.TradeWinRate, 1e-12)
	assert.InDelta(t, 0.10, m.LastTradePnL, 1e-12, "unrealized return of the open position")
	assert.True(t, m.IsInPosition)
	assert.Equal(t, PositionHolding, m.CurrentPosition)
	assert.Equal(t, 4, m.TradeDays)
	assert.Equal(t, 5, m.EmptyDays)
}

func TestPerformance_Idempotent(t *testing.T) {
	equity := []float64{100, 100, 120, 118, 120, 90, 95, 90, 99, 104}
	positions := []float64{0, 10, 0, 0, 10, 0, 0, 10, 11, 11.5}
	ops := []Op{OpHold, OpBuy, OpSell, OpHold, OpBuy, OpSell, OpHold, OpBuy, OpHold, OpHold}
	curve := curveFromEquity(equity, positions, ops)
	before := append(EquityCurve(nil), curve...)

	first := Performance(curve)
	second := Performance(curve)

	assert.Equal(t, first, second)
	assert.Equal(t, before, curve, "input curve must not be modified")
	assert.Equal(t, 2, first.TradeCount)
	assert.True(t, first.IsInPosition)
}

func TestPerformance_LastClosedTrade(t *testing.T) {
	equity := []float64{100, 100, 80, 80}
	positions := []float64{0, 1, 0, 0}
	ops := []Op{OpHold, OpBuy, OpSell, OpHold}

	m := Performance(curveFromEquity(equity, positions, ops))

	assert.Equal(t, 1, m.TradeCount)
	assert.Zero(t, m.TradeWinRate)
	assert.InDelta(t, -0.2, m.LastTradePnL, 1e-12)
	assert.False(t, m.IsInPosition)
}

func TestPerformance_DegenerateInputs(t *testing.T) {
	tests := []struct {
		name  string
		curve EquityCurve
	}{
		{"empty", nil},
		{"zero initial equity", curveFromEquity([]float64{0, 10}, nil, nil)},
		{"nan equity", curveFromEquity([]float64{10, math.NaN()}, nil, nil)},
		{"inf equity", curveFromEquity([]float64{10, math.Inf(1)}, nil, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Performance(tt.curve)
			assert.Equal(t, PerformanceMetrics{CurrentPosition: PositionEmpty}, m)
		})
	}
}

func TestPerformance_SingleRow(t *testing.T) {
	m := Performance(curveFromEquity([]float64{100}, nil, nil))
	assert.Zero(t, m.TotalReturn)
	assert.Zero(t, m.SharpeRatio)
	assert.Equal(t, 1, m.TotalDays)
}

func TestPerformance_AllFinite(t *testing.T) {
	inputs := [][]float64{
		{100, 100, 100, 100},
		{100, 200},
		{100, 1e-12, 100},
		{1e300, 1e-300},
	}

	for _, equity := range inputs {
		m := Performance(curveFromEquity(equity, nil, nil))
		for name, v := range map[string]float64{
			"total_return": m.TotalReturn, "annual_return": m.AnnualReturn,
			"max_drawdown": m.MaxDrawdown, "sharpe": m.SharpeRatio,
			"calmar": m.CalmarRatio, "pl_ratio": m.ProfitLossRatio,
		} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s is %v for %v", name, v, equity)
		}
	}
}

func TestStdDevAndMean(t *testing.T) {
	assert.Zero(t, Mean(nil))
	assert.Zero(t, StdDev([]float64{1}))
	assert.InDelta(t, 2.5, Mean([]float64{1, 2, 3, 4}), 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), StdDev([]float64{1, 2, 3, 4}), 1e-12)
}

func TestGenerateReport(t *testing.T) {
	curve, _ := NewSimulator(frictionless(100000)).Run(makeCandles(10, 12), []float64{1, -1})
	report := GenerateReport("ema_cross", ParameterSet{"short": 12, "long": 26}, Performance(curve), curve)

	assert.Contains(t, report, "BACKTEST PERFORMANCE REPORT")
	assert.Contains(t, report, "ema_cross")
	assert.Contains(t, report, "{long=26, short=12}")
	assert.Contains(t, report, "Total Return:     20.00%")
	assert.True(t, strings.Contains(report, "2024-01-01 to 2024-01-02"))
}
