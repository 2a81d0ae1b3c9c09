package ensemble

import (
	"math"
)

// ============================================================================
// SCORING FACTORS
// ============================================================================

// alphaScore rewards return, scaled by round-trip win rate and by how many
// trades back the estimate
func (e *Engine) alphaScore(r StrategyResult, item *TraceItem) float64 {
	m := r.Metrics
	reliability := math.Log1p(float64(m.TradeCount)) / math.Log1p(float64(e.config.ConfidenceTrades))
	reliability = math.Min(1, reliability)

	winAdj := 1.0
	if m.TradeWinRate != 0 {
		winAdj = m.TradeWinRate / 0.5
	}

	alpha := m.AnnualReturn * winAdj * reliability

	item.AnnualReturn = m.AnnualReturn
	item.WinAdjustment = winAdj
	item.Reliability = reliability
	item.Alpha = alpha
	return alpha
}

// riskScore is return per unit of drawdown, scaled by daily consistency
func (e *Engine) riskScore(r StrategyResult, item *TraceItem) float64 {
	m := r.Metrics
	calmar := m.CalmarRatio
	if math.IsNaN(calmar) || math.IsInf(calmar, 0) {
		calmar = m.AnnualReturn / e.config.FallbackDrawdown
	}
	risk := calmar * (m.WinRate / 0.5)

	item.CalmarRatio = calmar
	item.Risk = risk
	return risk
}

// stateMultiplier compares the latest trade result with the strategy's own
// recent volatility
func (e *Engine) stateMultiplier(r StrategyResult, recentStd float64, item *TraceItem) float64 {
	pnl := r.Metrics.LastTradePnL
	mult := 1.0
	switch {
	case pnl < -recentStd*e.config.ShockSigma:
		mult = e.config.ShockMultiplier
	case pnl < 0:
		mult = e.config.LossMultiplier
	case pnl > recentStd*e.config.StrengthSigma:
		mult = e.config.StrengthMultiplier
	}

	item.RecentStd = recentStd
	item.LastTradePnL = pnl
	item.State = mult
	return mult
}

// orthoPenalties down-weights strategies whose returns track the rest of the pool
func (e *Engine) orthoPenalties(corr [][]float64) []float64 {
	n := len(corr)
	out := make([]float64, n)
	for i := range out {
		meanCorr := 0.0
		for j := 0; j < n; j++ {
			meanCorr += corr[j][i]
		}
		meanCorr /= float64(n)
		out[i] = clip(1/(1+meanCorr), e.config.OrthoFloor, 1)
	}
	return out
}

// riskParity allocates inversely to volatility, normalized to sum to 1
func (e *Engine) riskParity(vols []float64) []float64 {
	out := make([]float64, len(vols))
	total := 0.0
	for i, v := range vols {
		v = math.Max(v, e.config.VolatilityFloor)
		out[i] = 1 / (v*e.config.VolSensitivity + e.config.Epsilon)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// ============================================================================
// WEIGHT SYNTHESIS
// ============================================================================

// synthesizeWeights blends the factors into non-negative weights summing to 1
// across strategies with a positive score. It reports which weights hit the cap.
func (e *Engine) synthesizeWeights(alpha, risk, state, parity, ortho []float64) ([]float64, []bool) {
	raw := make([]float64, len(alpha))
	for i := range raw {
		base := alpha[i]*e.config.AlphaBlend + risk[i]*(1-e.config.AlphaBlend)
		v := base * state[i] * parity[i] * ortho[i]
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			v = 0
		}
		raw[i] = v
	}
	return capWeights(raw, e.config.MaxSingleWeight, e.config.Epsilon)
}

// capWeights normalizes w, then clips each weight at limit and redistributes
// the excess to uncapped weights in proportion until none exceed it. When
// fewer than 1/limit weights are positive the limit is raised to 1/positive.
func capWeights(w []float64, limit, eps float64) ([]float64, []bool) {
	out := make([]float64, len(w))
	capped := make([]bool, len(w))

	total, positive := 0.0, 0
	for _, v := range w {
		if v > 0 {
			total += v
			positive++
		}
	}
	if total <= eps || positive == 0 {
		return out, capped
	}
	for i, v := range w {
		if v > 0 {
			out[i] = v / total
		}
	}

	effective := math.Max(limit, 1/float64(positive))
	for iter := 0; iter < len(out); iter++ {
		excess, free := 0.0, 0.0
		for i, v := range out {
			if v > effective {
				excess += v - effective
				out[i] = effective
				capped[i] = true
			}
		}
		if excess <= eps {
			break
		}
		for i, v := range out {
			if !capped[i] && v > 0 {
				free += v
			}
		}
		if free <= 0 {
			break
		}
		for i, v := range out {
			if !capped[i] && v > 0 {
				out[i] = v + excess*v/free
			}
		}
	}

	sum := 0.0
	for _, v := range out {
		sum += v
	}
	for i := range out {
		out[i] /= sum
	}
	return out, capped
}

func clip(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
