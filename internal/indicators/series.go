// Package indicators wraps cinar/indicator so strategies can work on plain
// slices. Every function returns a slice the same length as its input, with
// NaN in the warm-up positions where the indicator has no value yet.
package indicators

import (
	"fmt"
	"math"
)

// toChannel feeds a slice into a closed, buffered channel
func toChannel(values []float64) <-chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

// collect drains a channel into a slice
func collect(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

// alignRight pads computed values with leading NaN so the last value lines
// up with the last input
func alignRight(values []float64, n int) []float64 {
	out := make([]float64, n)
	offset := n - len(values)
	for i := range out {
		if i < offset {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-offset]
	}
	return out
}

func validatePeriod(name string, period, n int) error {
	if period < 1 {
		return fmt.Errorf("invalid %s period: %d (must be >= 1)", name, period)
	}
	if period > n {
		return fmt.Errorf("invalid %s period: %d (only %d values)", name, period, n)
	}
	return nil
}

// Defined reports whether v is a usable indicator value
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
