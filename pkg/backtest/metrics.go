package backtest

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// Epsilon guards every division whose denominator may be zero
const Epsilon = 1e-9

// TradingDaysPerYear is the annualization constant
const TradingDaysPerYear = 252

// Position states reported in PerformanceMetrics.CurrentPosition
const (
	PositionHolding = "HOLDING"
	PositionEmpty   = "EMPTY"
)

// ============================================================================
// PERFORMANCE METRICS
// ============================================================================

// PerformanceMetrics summarises one equity curve. Values are fractions, not percentages.
type PerformanceMetrics struct {
	TotalReturn     float64 `json:"total_return"`
	AnnualReturn    float64 `json:"annual_return"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	WinRate         float64 `json:"win_rate"`       // over active days
	TradeWinRate    float64 `json:"trade_win_rate"` // over completed round trips
	TradeCount      int     `json:"trade_count"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	CalmarRatio     float64 `json:"calmar_ratio"`
	ProfitLossRatio float64 `json:"profit_loss_ratio"`
	TotalDays       int     `json:"total_days"`
	TradeDays       int     `json:"trade_days"`
	EmptyDays       int     `json:"empty_days"`
	CurrentPosition string  `json:"current_position"`
	IsInPosition    bool    `json:"is_in_position"`
	LastTradePnL    float64 `json:"last_trade_pnl"`
}

// Sanitize returns a copy with every non-finite value replaced by zero
func (m PerformanceMetrics) Sanitize() PerformanceMetrics {
	m.TotalReturn = Finite(m.TotalReturn)
	m.AnnualReturn = Finite(m.AnnualReturn)
	m.MaxDrawdown = Finite(m.MaxDrawdown)
	m.WinRate = Finite(m.WinRate)
	m.TradeWinRate = Finite(m.TradeWinRate)
	m.SharpeRatio = Finite(m.SharpeRatio)
	m.CalmarRatio = Finite(m.CalmarRatio)
	m.ProfitLossRatio = Finite(m.ProfitLossRatio)
	m.LastTradePnL = Finite(m.LastTradePnL)
	return m
}

// emptyMetrics is returned for degenerate curves
func emptyMetrics() PerformanceMetrics {
	return PerformanceMetrics{CurrentPosition: PositionEmpty}
}

// Performance derives metrics from an equity curve. It never fails: curves that
// cannot be scored yield zero-valued metrics.
func Performance(curve EquityCurve) PerformanceMetrics {
	if len(curve) == 0 {
		return emptyMetrics()
	}

	equity := curve.Equities()
	for _, e := range equity {
		if math.IsNaN(e) || math.IsInf(e, 0) {
			log.Warn().Int("bars", len(curve)).Msg("Non-finite equity in curve, returning empty metrics")
			return emptyMetrics()
		}
	}
	if equity[0] <= 0 {
		log.Warn().Float64("initial_equity", equity[0]).Msg("Non-positive initial equity, returning empty metrics")
		return emptyMetrics()
	}

	m := PerformanceMetrics{TotalDays: len(curve)}

	m.TotalReturn = equity[len(equity)-1]/equity[0] - 1
	m.AnnualReturn = m.TotalReturn / float64(m.TotalDays) * TradingDaysPerYear
	m.MaxDrawdown = MaxDrawdown(equity)

	calculateDailyStatistics(&m, equity)
	calculateRoundTrips(&m, curve)

	m.CalmarRatio = m.AnnualReturn / (m.MaxDrawdown + Epsilon)

	for _, p := range curve {
		if p.Position > 0 {
			m.TradeDays++
		}
	}
	m.EmptyDays = m.TotalDays - m.TradeDays

	m.IsInPosition = curve.Last().Position > 0
	m.CurrentPosition = PositionEmpty
	if m.IsInPosition {
		m.CurrentPosition = PositionHolding
	}

	return m
}

// MaxDrawdown returns the largest peak-to-trough decline as a fraction of the peak
func MaxDrawdown(equity []float64) float64 {
	maxDD := 0.0
	peak := math.Inf(-1)
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		dd := (peak - e) / (peak + Epsilon)
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// Returns computes simple per-step returns; the result is one shorter than the input.
// Steps with a non-positive base return 0.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		out[i-1] = (equity[i] - equity[i-1]) / equity[i-1]
	}
	return out
}

// calculateDailyStatistics fills win rate, Sharpe and profit/loss ratio from active days
func calculateDailyStatistics(m *PerformanceMetrics, equity []float64) {
	var active, wins, losses []float64
	for _, r := range Returns(equity) {
		if math.Abs(r) <= Epsilon {
			continue
		}
		active = append(active, r)
		if r > 0 {
			wins = append(wins, r)
		} else {
			losses = append(losses, r)
		}
	}

	if len(active) == 0 {
		return
	}

	m.WinRate = float64(len(wins)) / float64(len(active))

	if std := StdDev(active); len(active) > 1 && std > Epsilon {
		m.SharpeRatio = math.Sqrt(TradingDaysPerYear) * Mean(active) / std
	}

	if len(wins) > 0 && len(losses) > 0 {
		avgLoss := math.Abs(Mean(losses))
		if avgLoss > Epsilon {
			m.ProfitLossRatio = Mean(wins) / avgLoss
		}
	}
}

// calculateRoundTrips pairs each BUY with the next SELL
func calculateRoundTrips(m *PerformanceMetrics, curve EquityCurve) {
	var pnls []float64
	entryEquity := 0.0
	open := false

	for _, p := range curve {
		switch p.Op {
		case OpBuy:
			if !open {
				entryEquity = p.Equity
				open = true
			}
		case OpSell:
			if open {
				pnls = append(pnls, tradeReturn(entryEquity, p.Equity))
				open = false
			}
		}
	}

	m.TradeCount = len(pnls)
	winning := 0
	for _, pnl := range pnls {
		if pnl > 0 {
			winning++
		}
	}
	if m.TradeCount > 0 {
		m.TradeWinRate = float64(winning) / float64(m.TradeCount)
		m.LastTradePnL = pnls[len(pnls)-1]
	}

	if open {
		m.LastTradePnL = tradeReturn(entryEquity, curve.Last().Equity)
	}
}

func tradeReturn(entry, exit float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (exit - entry) / entry
}

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the sample standard deviation, 0 with fewer than two values
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)-1))
}

// ============================================================================
// REPORT GENERATION
// ============================================================================

// GenerateReport generates a human-readable performance report
func GenerateReport(strategy string, params ParameterSet, m PerformanceMetrics, curve EquityCurve) string {
	start, end := "-", "-"
	if len(curve) > 0 {
		start = curve[0].Date.Format("2006-01-02")
		end = curve.Last().Date.Format("2006-01-02")
	}

	return fmt.Sprintf(`
================================================================================
BACKTEST PERFORMANCE REPORT
================================================================================

OVERVIEW
--------
Strategy:         %s
Parameters:       %s
Period:           %s to %s (%d bars)

RETURNS
-------
Total Return:     %.2f%%
Annual Return:    %.2f%%

RISK METRICS
------------
Max Drawdown:     %.2f%%
Sharpe Ratio:     %.2f
Calmar Ratio:     %.2f
Profit/Loss:      %.2f

ACTIVITY
--------
Win Rate (days):  %.2f%%
Round Trips:      %d
Trade Win Rate:   %.2f%%
Days In Market:   %d
Days Flat:        %d
Position:         %s
Last Trade PnL:   %.2f%%

================================================================================
`,
		strategy,
		params.String(),
		start, end, m.TotalDays,
		m.TotalReturn*100,
		m.AnnualReturn*100,
		m.MaxDrawdown*100,
		m.SharpeRatio,
		m.CalmarRatio,
		m.ProfitLossRatio,
		m.WinRate*100,
		m.TradeCount,
		m.TradeWinRate*100,
		m.TradeDays,
		m.EmptyDays,
		m.CurrentPosition,
		m.LastTradePnL*100,
	)
}

// formatDuration formats a duration in a human-readable format
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
