package ensemble

import (
	"math"
	"sort"
	"time"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

// returnMatrix holds one aligned return series per strategy
type returnMatrix struct {
	dates  []time.Time
	series [][]float64 // series[strategy][t]
}

// buildReturns forward-fills every equity curve onto a common date index and
// converts it to simple returns. The index is the market candle dates when
// given, otherwise the union of curve dates. Non-finite returns become 0.
func buildReturns(results []StrategyResult, market []backtest.Candle) returnMatrix {
	dates := commonIndex(results, market)
	m := returnMatrix{dates: dates, series: make([][]float64, len(results))}
	if len(dates) < 2 {
		for i := range m.series {
			m.series[i] = []float64{}
		}
		return m
	}

	for i, r := range results {
		equity := forwardFill(r.Curve, dates)
		returns := make([]float64, len(dates)-1)
		for t := 1; t < len(equity); t++ {
			v := 0.0
			if equity[t-1] != 0 {
				v = equity[t]/equity[t-1] - 1
			}
			returns[t-1] = backtest.Finite(v)
		}
		m.series[i] = returns
	}
	return m
}

func commonIndex(results []StrategyResult, market []backtest.Candle) []time.Time {
	if len(market) > 0 {
		dates := make([]time.Time, len(market))
		for i, c := range market {
			dates[i] = c.Date
		}
		return dates
	}

	seen := make(map[int64]time.Time)
	for _, r := range results {
		for _, p := range r.Curve {
			seen[p.Date.UnixNano()] = p.Date
		}
	}
	dates := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// forwardFill samples a curve's equity on dates, carrying the last known value
// forward and the first known value backward
func forwardFill(curve backtest.EquityCurve, dates []time.Time) []float64 {
	out := make([]float64, len(dates))
	if len(curve) == 0 {
		for i := range out {
			out[i] = 1
		}
		return out
	}

	j := 0
	last := curve[0].Equity
	for i, d := range dates {
		for j < len(curve) && !curve[j].Date.After(d) {
			last = curve[j].Equity
			j++
		}
		out[i] = last
	}
	return out
}

// volatility returns the sample standard deviation of each series
func (m returnMatrix) volatility() []float64 {
	out := make([]float64, len(m.series))
	for i, s := range m.series {
		out[i] = backtest.StdDev(s)
	}
	return out
}

// recentVolatility returns the standard deviation of the last window returns,
// or fallback when fewer than two are available
func (m returnMatrix) recentVolatility(window int, fallback float64) []float64 {
	out := make([]float64, len(m.series))
	for i, s := range m.series {
		if len(s) > window {
			s = s[len(s)-window:]
		}
		if len(s) < 2 {
			out[i] = fallback
			continue
		}
		out[i] = backtest.StdDev(s)
	}
	return out
}

// absCorrelation returns the matrix of absolute Pearson correlations. Pairs
// involving a constant series are 0, including the diagonal.
func (m returnMatrix) absCorrelation() [][]float64 {
	n := len(m.series)
	corr := make([][]float64, n)
	for i := range corr {
		corr[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := math.Abs(pearson(m.series[i], m.series[j]))
			corr[i][j] = c
			corr[j][i] = c
		}
	}
	return corr
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n < 2 || len(b) != n {
		return 0
	}
	ma, mb := backtest.Mean(a), backtest.Mean(b)
	var cov, va, vb float64
	for i := 0; i < n; i++ {
		da, db := a[i]-ma, b[i]-mb
		cov += da * db
		va += da * da
		vb += db * db
	}
	if va <= 0 || vb <= 0 {
		return 0
	}
	c := cov / math.Sqrt(va*vb)
	if c > 1 {
		return 1
	}
	if c < -1 {
		return -1
	}
	return backtest.Finite(c)
}
