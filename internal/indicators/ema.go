package indicators

import (
	"github.com/cinar/indicator/v2/trend"
)

// EMA calculates the Exponential Moving Average
func EMA(prices []float64, period int) ([]float64, error) {
	if err := validatePeriod("EMA", period, len(prices)); err != nil {
		return nil, err
	}
	ema := trend.NewEmaWithPeriod[float64](period)
	return alignRight(collect(ema.Compute(toChannel(prices))), len(prices)), nil
}

// SMA calculates the Simple Moving Average
func SMA(prices []float64, period int) ([]float64, error) {
	if err := validatePeriod("SMA", period, len(prices)); err != nil {
		return nil, err
	}
	sma := trend.NewSmaWithPeriod[float64](period)
	return alignRight(collect(sma.Compute(toChannel(prices))), len(prices)), nil
}
