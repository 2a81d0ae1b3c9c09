package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/volatility"
)

// BollingerSeries holds the three bands
type BollingerSeries struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// BollingerBands calculates Bollinger Bands (2 standard deviations)
func BollingerBands(prices []float64, period int) (*BollingerSeries, error) {
	if err := validatePeriod("Bollinger", period, len(prices)); err != nil {
		return nil, err
	}
	if period < 2 {
		return nil, fmt.Errorf("invalid Bollinger period: %d (must be >= 2)", period)
	}

	bb := volatility.NewBollingerBandsWithPeriod[float64](period)
	aChan, middleChan, bChan := bb.Compute(toChannel(prices))

	var upper, middle, lower []float64
	for {
		a, aok := <-aChan
		m, mok := <-middleChan
		b, bok := <-bChan
		if !aok || !mok || !bok {
			break
		}
		// outer bands are ordered by value, not by channel position
		upper = append(upper, math.Max(a, b))
		middle = append(middle, m)
		lower = append(lower, math.Min(a, b))
	}

	return &BollingerSeries{
		Upper:  alignRight(upper, len(prices)),
		Middle: alignRight(middle, len(prices)),
		Lower:  alignRight(lower, len(prices)),
	}, nil
}
