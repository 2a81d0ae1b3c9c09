package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

func makeCandles(closes ...float64) []backtest.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]backtest.Candle, len(closes))
	for i, c := range closes {
		candles[i] = backtest.Candle{Date: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return candles
}

func withScores(candles []backtest.Candle, scores ...float64) []backtest.Candle {
	for i := range candles {
		if i < len(scores) {
			s := scores[i]
			candles[i].Score = &s
		}
	}
	return candles
}

func vShape(n int) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		if i < n/2 {
			prices[i] = 100 - float64(i)
		} else {
			prices[i] = 100 - float64(n/2) + float64(i-n/2)*1.5
		}
	}
	return prices
}

// ============================================================================
// REGISTRY TESTS
// ============================================================================

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{
		BollingerBreakoutID, BuyAndHoldID, EMACrossID, MACDCrossID, RSIReversionID, ScoreThresholdID,
	}, r.Names())

	for alias, id := range map[string]string{
		"ValueStrategy":    BuyAndHoldID,
		"EMACrossStrategy": EMACrossID,
		"LLMStrategy":      ScoreThresholdID,
	} {
		def, ok := r.Lookup(alias)
		require.True(t, ok, alias)
		assert.Equal(t, id, def.ID)
	}

	_, ok := r.Lookup("DoesNotExist")
	assert.False(t, ok)
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r := NewRegistry()
	noop := func(backtest.ParameterSet) (backtest.Strategy, error) { return BuyAndHold{}, nil }

	require.NoError(t, r.Register(&Definition{ID: "a", Factory: noop}))
	assert.Error(t, r.Register(&Definition{ID: "a", Factory: noop}), "duplicate id")
	assert.Error(t, r.Register(&Definition{ID: "", Factory: noop}))
	assert.Error(t, r.Register(&Definition{ID: "b"}))
	assert.Error(t, r.Alias("x", "missing"))
	assert.Error(t, r.Alias("a", "a"))

	require.NoError(t, r.Alias("alias-a", "a"))
	assert.Error(t, r.Register(&Definition{ID: "alias-a", Factory: noop}))
}

func TestDefinition_BuildMergesDefaults(t *testing.T) {
	def, ok := DefaultRegistry().Lookup(EMACrossID)
	require.True(t, ok)

	s, err := def.Build(backtest.ParameterSet{"short": 5})
	require.NoError(t, err)
	cross := s.(*EMACross)
	assert.Equal(t, 5, cross.Short)
	assert.Equal(t, 26, cross.Long)

	_, err = def.Build(backtest.ParameterSet{"short": 30})
	assert.Error(t, err, "short must stay below long")
}

// ============================================================================
// STRATEGY TESTS
// ============================================================================

func TestBuyAndHold(t *testing.T) {
	signals, err := BuyAndHold{}.GenerateSignals(makeCandles(1, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, -1}, signals)
}

func TestEMACross(t *testing.T) {
	candles := makeCandles(vShape(60)...)
	s := &EMACross{Short: 3, Long: 8}

	signals, err := s.GenerateSignals(candles)
	require.NoError(t, err)
	require.Len(t, signals, len(candles))

	assert.Zero(t, signals[0], "warm-up bars hold")
	assert.Equal(t, -1.0, signals[25], "falling leg is short-below-long")
	assert.Equal(t, 1.0, signals[59], "rising leg is short-above-long")

	_, err = s.GenerateSignals(makeCandles(1, 2, 3))
	assert.Error(t, err, "series shorter than the long period")
}

func TestScoreThreshold(t *testing.T) {
	s := &ScoreThreshold{BuyScore: 0.7, SellScore: 0}

	candles := withScores(makeCandles(1, 1, 1, 1, 1), 0.9, 0.7, 0.5, -0.1, 0)
	signals, err := s.GenerateSignals(candles)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1, 0, -1, 0}, signals)

	_, err = s.GenerateSignals(makeCandles(1, 2))
	assert.Error(t, err, "no score column")

	_, err = newScoreThreshold(backtest.ParameterSet{"buy_score": 0.2, "sell_score": 0.2})
	assert.Error(t, err)
}

func TestBollingerBreakout(t *testing.T) {
	prices := make([]float64, 30)
	for i := range prices {
		prices[i] = 100 + float64(i%2)
	}
	prices[29] = 130

	signals, err := (&BollingerBreakout{Period: 10}).GenerateSignals(makeCandles(prices...))
	require.NoError(t, err)
	assert.Equal(t, 1.0, signals[29], "close far above the upper band")
}

func TestRSIReversion(t *testing.T) {
	s, err := newRSIReversion(backtest.ParameterSet{"period": 5, "oversold": 30.0, "overbought": 70.0})
	require.NoError(t, err)

	signals, err := s.GenerateSignals(makeCandles(vShape(40)...))
	require.NoError(t, err)
	assert.Equal(t, 1.0, signals[19], "long decline is oversold")
	assert.Equal(t, -1.0, signals[39], "long rally is overbought")

	_, err = newRSIReversion(backtest.ParameterSet{"oversold": 80.0, "overbought": 70.0})
	assert.Error(t, err)
}

func TestMACDCross(t *testing.T) {
	s, err := newMACDCross(backtest.ParameterSet{"fast": 3, "slow": 6, "signal": 3})
	require.NoError(t, err)

	// accelerating rally keeps the MACD line above its own average
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 50 + float64(i*i)*0.02
	}
	signals, err := s.GenerateSignals(makeCandles(prices...))
	require.NoError(t, err)
	assert.Equal(t, 1.0, signals[59])

	_, err = newMACDCross(backtest.ParameterSet{"fast": 26, "slow": 12})
	assert.Error(t, err)
}

func TestBuiltins_DefaultGridsOptimize(t *testing.T) {
	r := DefaultRegistry()
	prices := vShape(120)
	candles := makeCandles(prices...)
	for i := range candles {
		score := float64(i%10)/10 - 0.2
		candles[i].Score = &score
	}

	for _, id := range r.Names() {
		t.Run(id, func(t *testing.T) {
			def, _ := r.Lookup(id)
			opt, err := backtest.NewGridSearchOptimizer(def.Build, def.DefaultGrid, "", backtest.DefaultSimulatorConfig())
			require.NoError(t, err)

			summary, err := opt.Optimize(context.Background(), candles)
			require.NoError(t, err)
			assert.Equal(t, def.DefaultGrid.Size(), summary.TotalRuns)
			assert.NotNil(t, summary.BestResult)
		})
	}
}
