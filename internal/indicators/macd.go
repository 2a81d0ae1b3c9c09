package indicators

import (
	"fmt"

	"github.com/cinar/indicator/v2/trend"
)

// MACDSeries holds the MACD line and its signal line
type MACDSeries struct {
	MACD   []float64
	Signal []float64
}

// MACD calculates the Moving Average Convergence Divergence
func MACD(prices []float64, fast, slow, signal int) (*MACDSeries, error) {
	if fast < 1 || fast >= slow {
		return nil, fmt.Errorf("invalid MACD periods: fast %d must be below slow %d", fast, slow)
	}
	if err := validatePeriod("MACD", slow+signal, len(prices)); err != nil {
		return nil, err
	}

	macd := trend.NewMacdWithPeriod[float64](fast, slow, signal)
	macdChan, signalChan := macd.Compute(toChannel(prices))

	// both outputs are produced in lockstep
	var macdValues, signalValues []float64
	for {
		m, mok := <-macdChan
		s, sok := <-signalChan
		if !mok || !sok {
			break
		}
		macdValues = append(macdValues, m)
		signalValues = append(signalValues, s)
	}

	return &MACDSeries{
		MACD:   alignRight(macdValues, len(prices)),
		Signal: alignRight(signalValues, len(prices)),
	}, nil
}
