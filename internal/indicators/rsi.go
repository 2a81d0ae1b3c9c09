package indicators

import (
	"github.com/cinar/indicator/v2/momentum"
)

// RSI calculates the Relative Strength Index
func RSI(prices []float64, period int) ([]float64, error) {
	if err := validatePeriod("RSI", period, len(prices)); err != nil {
		return nil, err
	}
	rsi := momentum.NewRsiWithPeriod[float64](period)
	return alignRight(collect(rsi.Compute(toChannel(prices))), len(prices)), nil
}
