// Package backtest provides the trade simulator, performance analytics and
// parameter search used to score strategies on a single asset.
package backtest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// Candle represents OHLCV data for one bar. Score is an optional external
// signal column (for example a sentiment score) consumed by some strategies.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
	Score  *float64  `json:"score,omitempty"`
}

// Op is the action the simulator took on a bar
type Op string

const (
	OpBuy  Op = "BUY"
	OpSell Op = "SELL"
	OpHold Op = "HOLD"
)

// EquityPoint is one row of a simulated equity curve
type EquityPoint struct {
	Date     time.Time `json:"date"`
	Close    float64   `json:"close"`
	Signal   float64   `json:"signal"`
	Cash     float64   `json:"cash"`
	Position float64   `json:"position"` // units held, 0 when flat
	Equity   float64   `json:"equity"`
	Op       Op        `json:"op"`
}

// EquityCurve is the per-bar output of a simulation, in date order
type EquityCurve []EquityPoint

// Equities returns the equity column
func (c EquityCurve) Equities() []float64 {
	out := make([]float64, len(c))
	for i, p := range c {
		out[i] = p.Equity
	}
	return out
}

// Last returns the final row, or nil for an empty curve
func (c EquityCurve) Last() *EquityPoint {
	if len(c) == 0 {
		return nil
	}
	return &c[len(c)-1]
}

// Sanitize replaces non-finite values with zero so the curve can be stored
func (c EquityCurve) Sanitize() EquityCurve {
	out := make(EquityCurve, len(c))
	for i, p := range c {
		p.Close = Finite(p.Close)
		p.Signal = Finite(p.Signal)
		p.Cash = Finite(p.Cash)
		p.Position = Finite(p.Position)
		p.Equity = Finite(p.Equity)
		out[i] = p
	}
	return out
}

// Finite returns v, or 0 when v is NaN or infinite
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Precondition errors returned for malformed core inputs
var (
	ErrInsufficientData    = errors.New("at least two candles are required")
	ErrLengthMismatch      = errors.New("signal series length does not match candles")
	ErrMalformedCandles    = errors.New("malformed candles")
	ErrNoViableCombination = errors.New("no parameter combination produced a result")
)

// ============================================================================
// STRATEGY INTERFACE
// ============================================================================

// Strategy turns a candle series into a signal series of the same length.
// Values of +1 request a buy, -1 a sell, anything in between holds.
// Implementations must not mutate the candles they are given.
type Strategy interface {
	GenerateSignals(candles []Candle) ([]float64, error)
}

// StrategyFunc adapts a plain function to the Strategy interface
type StrategyFunc func(candles []Candle) ([]float64, error)

// GenerateSignals calls f
func (f StrategyFunc) GenerateSignals(candles []Candle) ([]float64, error) {
	return f(candles)
}

// ============================================================================
// TRADE SIMULATOR
// ============================================================================

// SimulatorConfig holds the cost model of the simulator
type SimulatorConfig struct {
	InitialCash  float64 `json:"initial_cash"`
	FeeRate      float64 `json:"fee_rate"`      // charged on sell proceeds, e.g. 0.001
	SlippageRate float64 `json:"slippage_rate"` // adverse price move on each fill
}

// DefaultSimulatorConfig returns the cost model used when none is configured
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		InitialCash:  100000,
		FeeRate:      0.0015,
		SlippageRate: 0.0005,
	}
}

// Simulator replays a signal series against candles. All-in/all-out, long only.
type Simulator struct {
	config SimulatorConfig
}

// NewSimulator creates a new simulator
func NewSimulator(config SimulatorConfig) *Simulator {
	return &Simulator{config: config}
}

// Config returns the simulator cost model
func (s *Simulator) Config() SimulatorConfig {
	return s.config
}

// Run executes a single forward pass over candles and returns one equity row per bar
func (s *Simulator) Run(candles []Candle, signals []float64) (EquityCurve, error) {
	if len(candles) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientData, len(candles))
	}
	if len(signals) != len(candles) {
		return nil, fmt.Errorf("%w: %d signals for %d candles", ErrLengthMismatch, len(signals), len(candles))
	}
	if err := validateCandles(candles); err != nil {
		return nil, err
	}

	cash := s.config.InitialCash
	position := 0.0
	curve := make(EquityCurve, len(candles))

	for i, candle := range candles {
		signal := signals[i]
		op := OpHold

		switch {
		case signal >= 1 && position == 0:
			buyPrice := candle.Close * (1 + s.config.SlippageRate)
			position = cash / buyPrice
			cash = 0
			op = OpBuy

		case signal <= -1 && position > 0:
			sellPrice := candle.Close * (1 - s.config.SlippageRate)
			cash = position * sellPrice * (1 - s.config.FeeRate)
			position = 0
			op = OpSell
		}

		curve[i] = EquityPoint{
			Date:     candle.Date,
			Close:    candle.Close,
			Signal:   signal,
			Cash:     cash,
			Position: position,
			Equity:   cash + position*candle.Close,
			Op:       op,
		}
	}

	log.Debug().
		Int("bars", len(curve)).
		Float64("final_equity", curve[len(curve)-1].Equity).
		Msg("Simulation complete")

	return curve, nil
}

// validateCandles checks closes are positive and dates strictly ascending
func validateCandles(candles []Candle) error {
	for i, c := range candles {
		if c.Close <= 0 || math.IsNaN(c.Close) || math.IsInf(c.Close, 0) {
			return fmt.Errorf("%w: invalid close %v at index %d", ErrMalformedCandles, c.Close, i)
		}
		if i > 0 && !c.Date.After(candles[i-1].Date) {
			return fmt.Errorf("%w: dates not strictly ascending at index %d", ErrMalformedCandles, i)
		}
	}
	return nil
}
