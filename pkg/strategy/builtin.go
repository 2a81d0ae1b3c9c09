package strategy

import (
	"fmt"

	"github.com/ajitpratap0/alphafuse/internal/indicators"
	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

// Built-in strategy ids
const (
	BuyAndHoldID        = "buy_and_hold"
	EMACrossID          = "ema_cross"
	ScoreThresholdID    = "score_threshold"
	BollingerBreakoutID = "bollinger_breakout"
	RSIReversionID      = "rsi_reversion"
	MACDCrossID         = "macd_cross"
)

func builtins() []*Definition {
	return []*Definition{
		{
			ID:          BuyAndHoldID,
			Description: "Buy on the first bar, sell on the last",
			Factory:     func(backtest.ParameterSet) (backtest.Strategy, error) { return BuyAndHold{}, nil },
		},
		{
			ID:          EMACrossID,
			Description: "Long while the short EMA is above the long EMA",
			Factory:     newEMACross,
			Defaults:    backtest.ParameterSet{"short": 12, "long": 26},
			DefaultGrid: backtest.ParamGrid{"short": {10, 12, 15}, "long": {20, 26, 30}},
		},
		{
			ID:          ScoreThresholdID,
			Description: "Trade on an external score column crossing buy/sell thresholds",
			Factory:     newScoreThreshold,
			Defaults:    backtest.ParameterSet{"buy_score": 0.7, "sell_score": 0.0},
			DefaultGrid: backtest.ParamGrid{"buy_score": {0.5, 0.6, 0.7, 0.8}, "sell_score": {0.0, 0.2, -0.1}},
		},
		{
			ID:          BollingerBreakoutID,
			Description: "Buy a close above the upper band, exit below the middle band",
			Factory:     newBollingerBreakout,
			Defaults:    backtest.ParameterSet{"period": 20},
			DefaultGrid: backtest.ParamGrid{"period": {10, 20, 30}},
		},
		{
			ID:          RSIReversionID,
			Description: "Buy oversold, sell overbought",
			Factory:     newRSIReversion,
			Defaults:    backtest.ParameterSet{"period": 14, "oversold": 30.0, "overbought": 70.0},
			DefaultGrid: backtest.ParamGrid{"period": {7, 14}, "oversold": {25.0, 30.0}, "overbought": {70.0, 75.0}},
		},
		{
			ID:          MACDCrossID,
			Description: "Long while the MACD line is above its signal line",
			Factory:     newMACDCross,
			Defaults:    backtest.ParameterSet{"fast": 12, "slow": 26, "signal": 9},
			DefaultGrid: backtest.ParamGrid{"fast": {8, 12}, "slow": {26}, "signal": {9}},
		},
	}
}

func closes(candles []backtest.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// ============================================================================
// BUY AND HOLD
// ============================================================================

// BuyAndHold is the passive benchmark
type BuyAndHold struct{}

// GenerateSignals implements backtest.Strategy
func (BuyAndHold) GenerateSignals(candles []backtest.Candle) ([]float64, error) {
	signals := make([]float64, len(candles))
	if len(signals) == 0 {
		return signals, nil
	}
	signals[0] = 1
	if len(signals) > 1 {
		signals[len(signals)-1] = -1
	}
	return signals, nil
}

// ============================================================================
// EMA CROSS
// ============================================================================

// EMACross is long while the short EMA is above the long EMA
type EMACross struct {
	Short int
	Long  int
}

func newEMACross(params backtest.ParameterSet) (backtest.Strategy, error) {
	short, err := params.Int("short", 12)
	if err != nil {
		return nil, err
	}
	long, err := params.Int("long", 26)
	if err != nil {
		return nil, err
	}
	if short < 1 || short >= long {
		return nil, fmt.Errorf("ema_cross: short period %d must be positive and below long period %d", short, long)
	}
	return &EMACross{Short: short, Long: long}, nil
}

// GenerateSignals implements backtest.Strategy
func (s *EMACross) GenerateSignals(candles []backtest.Candle) ([]float64, error) {
	prices := closes(candles)
	fast, err := indicators.EMA(prices, s.Short)
	if err != nil {
		return nil, err
	}
	slow, err := indicators.EMA(prices, s.Long)
	if err != nil {
		return nil, err
	}

	signals := make([]float64, len(candles))
	for i := range signals {
		if !indicators.Defined(fast[i]) || !indicators.Defined(slow[i]) {
			continue
		}
		if fast[i] > slow[i] {
			signals[i] = 1
		} else if fast[i] < slow[i] {
			signals[i] = -1
		}
	}
	return signals, nil
}

// ============================================================================
// SCORE THRESHOLD
// ============================================================================

// ScoreThreshold trades on Candle.Score: buy at or above BuyScore, sell below SellScore
type ScoreThreshold struct {
	BuyScore  float64
	SellScore float64
}

func newScoreThreshold(params backtest.ParameterSet) (backtest.Strategy, error) {
	buy, err := params.Float("buy_score", 0.7)
	if err != nil {
		return nil, err
	}
	sell, err := params.Float("sell_score", 0.0)
	if err != nil {
		return nil, err
	}
	if sell >= buy {
		return nil, fmt.Errorf("score_threshold: sell_score %v must be below buy_score %v", sell, buy)
	}
	return &ScoreThreshold{BuyScore: buy, SellScore: sell}, nil
}

// GenerateSignals implements backtest.Strategy. Bars without a score hold.
func (s *ScoreThreshold) GenerateSignals(candles []backtest.Candle) ([]float64, error) {
	signals := make([]float64, len(candles))
	scored := 0
	for i, c := range candles {
		if c.Score == nil || !indicators.Defined(*c.Score) {
			continue
		}
		scored++
		if *c.Score >= s.BuyScore {
			signals[i] = 1
		} else if *c.Score < s.SellScore {
			signals[i] = -1
		}
	}
	if scored == 0 && len(candles) > 0 {
		return nil, fmt.Errorf("score_threshold: candles carry no score column")
	}
	return signals, nil
}

// ============================================================================
// BOLLINGER BREAKOUT
// ============================================================================

// BollingerBreakout buys a close above the upper band and exits below the middle band
type BollingerBreakout struct {
	Period int
}

func newBollingerBreakout(params backtest.ParameterSet) (backtest.Strategy, error) {
	period, err := params.Int("period", 20)
	if err != nil {
		return nil, err
	}
	if period < 2 {
		return nil, fmt.Errorf("bollinger_breakout: period %d must be at least 2", period)
	}
	return &BollingerBreakout{Period: period}, nil
}

// GenerateSignals implements backtest.Strategy
func (s *BollingerBreakout) GenerateSignals(candles []backtest.Candle) ([]float64, error) {
	prices := closes(candles)
	bands, err := indicators.BollingerBands(prices, s.Period)
	if err != nil {
		return nil, err
	}

	signals := make([]float64, len(candles))
	for i, price := range prices {
		if !indicators.Defined(bands.Upper[i]) || !indicators.Defined(bands.Middle[i]) {
			continue
		}
		if price > bands.Upper[i] {
			signals[i] = 1
		} else if price < bands.Middle[i] {
			signals[i] = -1
		}
	}
	return signals, nil
}

// ============================================================================
// RSI REVERSION
// ============================================================================

// RSIReversion buys when RSI is below Oversold and sells above Overbought
type RSIReversion struct {
	Period     int
	Oversold   float64
	Overbought float64
}

func newRSIReversion(params backtest.ParameterSet) (backtest.Strategy, error) {
	period, err := params.Int("period", 14)
	if err != nil {
		return nil, err
	}
	oversold, err := params.Float("oversold", 30)
	if err != nil {
		return nil, err
	}
	overbought, err := params.Float("overbought", 70)
	if err != nil {
		return nil, err
	}
	if period < 2 {
		return nil, fmt.Errorf("rsi_reversion: period %d must be at least 2", period)
	}
	if oversold <= 0 || overbought >= 100 || oversold >= overbought {
		return nil, fmt.Errorf("rsi_reversion: thresholds must satisfy 0 < oversold(%v) < overbought(%v) < 100", oversold, overbought)
	}
	return &RSIReversion{Period: period, Oversold: oversold, Overbought: overbought}, nil
}

// GenerateSignals implements backtest.Strategy
func (s *RSIReversion) GenerateSignals(candles []backtest.Candle) ([]float64, error) {
	rsi, err := indicators.RSI(closes(candles), s.Period)
	if err != nil {
		return nil, err
	}

	signals := make([]float64, len(candles))
	for i, v := range rsi {
		if !indicators.Defined(v) {
			continue
		}
		if v < s.Oversold {
			signals[i] = 1
		} else if v > s.Overbought {
			signals[i] = -1
		}
	}
	return signals, nil
}

// ============================================================================
// MACD CROSS
// ============================================================================

// MACDCross is long while the MACD line is above its signal line
type MACDCross struct {
	Fast   int
	Slow   int
	Signal int
}

func newMACDCross(params backtest.ParameterSet) (backtest.Strategy, error) {
	fast, err := params.Int("fast", 12)
	if err != nil {
		return nil, err
	}
	slow, err := params.Int("slow", 26)
	if err != nil {
		return nil, err
	}
	signal, err := params.Int("signal", 9)
	if err != nil {
		return nil, err
	}
	if fast < 1 || fast >= slow || signal < 1 {
		return nil, fmt.Errorf("macd_cross: invalid periods fast=%d slow=%d signal=%d", fast, slow, signal)
	}
	return &MACDCross{Fast: fast, Slow: slow, Signal: signal}, nil
}

// GenerateSignals implements backtest.Strategy
func (s *MACDCross) GenerateSignals(candles []backtest.Candle) ([]float64, error) {
	macd, err := indicators.MACD(closes(candles), s.Fast, s.Slow, s.Signal)
	if err != nil {
		return nil, err
	}

	signals := make([]float64, len(candles))
	for i := range signals {
		m, sig := macd.MACD[i], macd.Signal[i]
		if !indicators.Defined(m) || !indicators.Defined(sig) {
			continue
		}
		if m > sig {
			signals[i] = 1
		} else if m < sig {
			signals[i] = -1
		}
	}
	return signals, nil
}
