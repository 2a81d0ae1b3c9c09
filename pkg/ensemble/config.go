package ensemble

import (
	"fmt"
	"strings"
)

// Config holds every tunable constant of the allocation pipeline
type Config struct {
	// Position sizing
	TargetRiskRatio float64 `json:"target_risk_ratio" mapstructure:"target_risk_ratio"` // Kelly scaling, 0.5 = half Kelly
	MaxLeverage     float64 `json:"max_leverage" mapstructure:"max_leverage"`
	LongOnly        bool    `json:"long_only" mapstructure:"long_only"`
	Granularity     float64 `json:"granularity" mapstructure:"granularity"` // allocation step, e.g. 0.05

	// Turnover suppression
	RebalanceThreshold float64 `json:"rebalance_threshold" mapstructure:"rebalance_threshold"` // minimum change when adding risk
	DeRiskThreshold    float64 `json:"derisk_threshold" mapstructure:"derisk_threshold"`       // minimum change when cutting risk

	// Weight synthesis
	AlphaBlend       float64 `json:"alpha_blend" mapstructure:"alpha_blend"` // share of alpha in the base score, rest is risk
	MaxSingleWeight  float64 `json:"max_single_weight" mapstructure:"max_single_weight"`
	VolSensitivity   float64 `json:"vol_sensitivity" mapstructure:"vol_sensitivity"`
	VolatilityFloor  float64 `json:"volatility_floor" mapstructure:"volatility_floor"`
	ConfidenceTrades int     `json:"confidence_trades" mapstructure:"confidence_trades"` // trade count at which reliability saturates
	FallbackDrawdown float64 `json:"fallback_drawdown" mapstructure:"fallback_drawdown"`
	OrthoFloor       float64 `json:"ortho_floor" mapstructure:"ortho_floor"`

	// Dynamic state multiplier
	StateWindow        int     `json:"state_window" mapstructure:"state_window"`
	DefaultRecentStd   float64 `json:"default_recent_std" mapstructure:"default_recent_std"`
	ShockSigma         float64 `json:"shock_sigma" mapstructure:"shock_sigma"`
	StrengthSigma      float64 `json:"strength_sigma" mapstructure:"strength_sigma"`
	ShockMultiplier    float64 `json:"shock_multiplier" mapstructure:"shock_multiplier"`
	LossMultiplier     float64 `json:"loss_multiplier" mapstructure:"loss_multiplier"`
	StrengthMultiplier float64 `json:"strength_multiplier" mapstructure:"strength_multiplier"`

	// Kelly
	PriorTrades     float64 `json:"prior_trades" mapstructure:"prior_trades"` // Bayesian pseudo-trades pulling win rate to 0.5
	PayoffDrawdown  float64 `json:"payoff_drawdown" mapstructure:"payoff_drawdown"`
	MinPayoff       float64 `json:"min_payoff" mapstructure:"min_payoff"`
	MaxPayoff       float64 `json:"max_payoff" mapstructure:"max_payoff"`
	ConfidenceSlope float64 `json:"confidence_slope" mapstructure:"confidence_slope"`

	// Macro regime overlay
	RegimeWindow       int     `json:"regime_window" mapstructure:"regime_window"`
	TrendPeriod        int     `json:"trend_period" mapstructure:"trend_period"`
	ElevatedVolatility float64 `json:"elevated_volatility" mapstructure:"elevated_volatility"`
	HighVolatility     float64 `json:"high_volatility" mapstructure:"high_volatility"`
	WeakBreadth        float64 `json:"weak_breadth" mapstructure:"weak_breadth"`
	BrokenBreadth      float64 `json:"broken_breadth" mapstructure:"broken_breadth"`
	ElevatedScale      float64 `json:"elevated_scale" mapstructure:"elevated_scale"`
	HighScale          float64 `json:"high_scale" mapstructure:"high_scale"`

	// Labels
	StrongBuyThreshold  float64 `json:"strong_buy_threshold" mapstructure:"strong_buy_threshold"`
	BuyThreshold        float64 `json:"buy_threshold" mapstructure:"buy_threshold"`
	SellThreshold       float64 `json:"sell_threshold" mapstructure:"sell_threshold"`
	StrongSellThreshold float64 `json:"strong_sell_threshold" mapstructure:"strong_sell_threshold"`

	Epsilon float64 `json:"epsilon" mapstructure:"epsilon"`
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		TargetRiskRatio: 0.6,
		MaxLeverage:     1.0,
		LongOnly:        true,
		Granularity:     0.05,

		RebalanceThreshold: 0.05,
		DeRiskThreshold:    0.03,

		AlphaBlend:       0.5,
		MaxSingleWeight:  0.5,
		VolSensitivity:   1.5,
		VolatilityFloor:  1e-4,
		ConfidenceTrades: 50,
		FallbackDrawdown: 0.01,
		OrthoFloor:       0.3,

		StateWindow:        20,
		DefaultRecentStd:   0.02,
		ShockSigma:         2.0,
		StrengthSigma:      1.5,
		ShockMultiplier:    0.25,
		LossMultiplier:     0.8,
		StrengthMultiplier: 1.25,

		PriorTrades:     2,
		PayoffDrawdown:  0.05,
		MinPayoff:       0.01,
		MaxPayoff:       10,
		ConfidenceSlope: 2,

		RegimeWindow:       20,
		TrendPeriod:        50,
		ElevatedVolatility: 0.25,
		HighVolatility:     0.40,
		WeakBreadth:        0.5,
		BrokenBreadth:      0.3,
		ElevatedScale:      0.5,
		HighScale:          0.1,

		StrongBuyThreshold:  0.6,
		BuyThreshold:        0.2,
		SellThreshold:       -0.2,
		StrongSellThreshold: -0.6,

		Epsilon: 1e-9,
	}
}

// Validate checks the configuration for internally inconsistent values
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.TargetRiskRatio > 0 && c.TargetRiskRatio <= 1, "target_risk_ratio must be in (0, 1], got %v", c.TargetRiskRatio)
	check(c.MaxLeverage > 0, "max_leverage must be positive, got %v", c.MaxLeverage)
	check(c.Granularity > 0 && c.Granularity <= c.MaxLeverage, "granularity must be in (0, max_leverage], got %v", c.Granularity)
	check(c.RebalanceThreshold >= 0, "rebalance_threshold must be non-negative")
	check(c.DeRiskThreshold >= 0, "derisk_threshold must be non-negative")
	check(c.AlphaBlend >= 0 && c.AlphaBlend <= 1, "alpha_blend must be in [0, 1], got %v", c.AlphaBlend)
	check(c.MaxSingleWeight > 0 && c.MaxSingleWeight <= 1, "max_single_weight must be in (0, 1], got %v", c.MaxSingleWeight)
	check(c.VolSensitivity > 0, "vol_sensitivity must be positive")
	check(c.VolatilityFloor > 0, "volatility_floor must be positive")
	check(c.ConfidenceTrades > 0, "confidence_trades must be positive")
	check(c.FallbackDrawdown > 0, "fallback_drawdown must be positive")
	check(c.OrthoFloor > 0 && c.OrthoFloor <= 1, "ortho_floor must be in (0, 1]")
	check(c.StateWindow > 1, "state_window must be greater than 1")
	check(c.PriorTrades >= 0, "prior_trades must be non-negative")
	check(c.PayoffDrawdown > 0, "payoff_drawdown must be positive")
	check(c.MinPayoff > 0 && c.MinPayoff < c.MaxPayoff, "payoff range must satisfy 0 < min_payoff < max_payoff")
	check(c.RegimeWindow > 1, "regime_window must be greater than 1")
	check(c.TrendPeriod > 0, "trend_period must be positive")
	check(c.ElevatedVolatility < c.HighVolatility, "elevated_volatility must be below high_volatility")
	check(c.BrokenBreadth <= c.WeakBreadth, "broken_breadth must not exceed weak_breadth")
	check(c.HighScale >= 0 && c.HighScale <= c.ElevatedScale && c.ElevatedScale <= 1, "regime scales must satisfy 0 <= high_scale <= elevated_scale <= 1")
	check(c.BuyThreshold < c.StrongBuyThreshold, "buy_threshold must be below strong_buy_threshold")
	check(c.StrongSellThreshold < c.SellThreshold, "strong_sell_threshold must be below sell_threshold")
	check(c.SellThreshold < c.BuyThreshold, "sell_threshold must be below buy_threshold")
	check(c.Epsilon > 0, "epsilon must be positive")

	if len(problems) > 0 {
		return fmt.Errorf("invalid ensemble config: %s", strings.Join(problems, "; "))
	}
	return nil
}
