// Package ensemble fuses the scored strategies of one symbol into a single
// position recommendation: skill-weighted, correlation-penalized, Kelly-sized.
package ensemble

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/pkg/backtest"
)

// ============================================================================
// DATA STRUCTURES
// ============================================================================

// StrategyResult is the winning backtest of one strategy for one symbol
type StrategyResult struct {
	Name    string                      `json:"name"`
	Class   string                      `json:"class"`
	Params  backtest.ParameterSet       `json:"params"`
	Metrics backtest.PerformanceMetrics `json:"metrics"`
	Curve   backtest.EquityCurve        `json:"curve"`
}

// LastSignal returns the final signal of the curve clipped to [-1, 1]
func (r StrategyResult) LastSignal() float64 {
	last := r.Curve.Last()
	if last == nil {
		return 0
	}
	return clip(backtest.Finite(last.Signal), -1, 1)
}

// Label classifies the blended signal
type Label string

const (
	LabelStrongBuy  Label = "STRONG_BUY"
	LabelBuy        Label = "BUY"
	LabelNeutral    Label = "NEUTRAL"
	LabelSell       Label = "SELL"
	LabelStrongSell Label = "STRONG_SELL"
)

// ExecutionStatus says whether the suggested position should be traded
type ExecutionStatus string

const (
	StatusHold    ExecutionStatus = "HOLD"
	StatusExecute ExecutionStatus = "EXECUTE"
)

// TraceItem records every factor computed for one strategy
type TraceItem struct {
	Strategy      string  `json:"strategy"`
	Class         string  `json:"class"`
	Weight        float64 `json:"weight"`
	Capped        bool    `json:"capped"`
	LastSignal    float64 `json:"last_signal"`
	AnnualReturn  float64 `json:"annual_return"`
	WinAdjustment float64 `json:"win_adjustment"`
	Reliability   float64 `json:"reliability"`
	Alpha         float64 `json:"alpha"`
	CalmarRatio   float64 `json:"calmar_ratio"`
	Risk          float64 `json:"risk"`
	RecentStd     float64 `json:"recent_std"`
	LastTradePnL  float64 `json:"last_trade_pnl"`
	State         float64 `json:"state"`
	Penalty       float64 `json:"penalty"`
	Volatility    float64 `json:"volatility"`
	ParityWeight  float64 `json:"parity_weight"`
}

// Summary records the portfolio-level steps of the pipeline
type Summary struct {
	Sizing
	Signal          float64 `json:"signal"`
	RawTarget       float64 `json:"raw_target"`
	ClippedTarget   float64 `json:"clipped_target"`
	Regime          Regime  `json:"regime"`
	TargetPosition  float64 `json:"target_position"` // after the regime overlay
	CurrentPosition float64 `json:"current_position"`
	Threshold       float64 `json:"threshold"` // turnover threshold that applied
	TargetRiskRatio float64 `json:"target_risk_ratio"`
}

// Decision is the ensemble's recommendation for one symbol
type Decision struct {
	ID                   string          `json:"id"`
	Symbol               string          `json:"symbol,omitempty"`
	Timestamp            time.Time       `json:"timestamp"`    // as-of date of the data
	GeneratedAt          time.Time       `json:"generated_at"` // wall clock
	Empty                bool            `json:"empty"`
	Signal               Label           `json:"signal"`
	SignalScore          float64         `json:"signal_score"`
	ConfidenceScore      float64         `json:"confidence_score"` // weighted win probability
	SuggestedPosition    float64         `json:"suggested_position"`
	ExecutionStatus      ExecutionStatus `json:"execution_status"`
	Trace                []TraceItem     `json:"trace"` // sorted by weight, descending
	Summary              Summary         `json:"summary"`
	Influences           []string        `json:"influences"`
	Rationale            string          `json:"rationale"`
	ContributionAnalysis []string        `json:"contribution_analysis"`
	RiskActions          []string        `json:"risk_actions"`
	ActionGuide          string          `json:"action_guide"`
	Interpretation       string          `json:"interpretation"`
	Warnings             []string        `json:"warnings,omitempty"`
}

// Sanitize replaces every non-finite number with zero
func (d *Decision) Sanitize() {
	d.SignalScore = backtest.Finite(d.SignalScore)
	d.ConfidenceScore = backtest.Finite(d.ConfidenceScore)
	d.SuggestedPosition = backtest.Finite(d.SuggestedPosition)

	for i := range d.Trace {
		t := &d.Trace[i]
		for _, f := range []*float64{
			&t.Weight, &t.LastSignal, &t.AnnualReturn, &t.WinAdjustment, &t.Reliability,
			&t.Alpha, &t.CalmarRatio, &t.Risk, &t.RecentStd, &t.LastTradePnL,
			&t.State, &t.Penalty, &t.Volatility, &t.ParityWeight,
		} {
			*f = backtest.Finite(*f)
		}
	}

	s := &d.Summary
	for _, f := range []*float64{
		&s.AvgWinProb, &s.AvgPayoff, &s.RawKelly, &s.Diversity, &s.Confidence, &s.Kelly,
		&s.Signal, &s.RawTarget, &s.ClippedTarget, &s.TargetPosition, &s.CurrentPosition,
		&s.Threshold, &s.TargetRiskRatio, &s.Regime.Volatility, &s.Regime.Breadth, &s.Regime.Scale,
	} {
		*f = backtest.Finite(*f)
	}
}

// ============================================================================
// ENSEMBLE ENGINE
// ============================================================================

// Engine runs the allocation pipeline. It holds no state between calls.
type Engine struct {
	config Config
	now    func() time.Time
}

// NewEngine creates an engine after validating config
func NewEngine(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Engine{config: config, now: time.Now}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// Decide turns strategy results into one position recommendation. market
// supplies the common date index, macro (optional) drives the regime overlay,
// and current is the position held now. An empty result set yields an empty
// decision, never an error.
func (e *Engine) Decide(results []StrategyResult, market, macro []backtest.Candle, current float64) *Decision {
	decision := &Decision{
		ID:              uuid.NewString(),
		GeneratedAt:     e.now().UTC(),
		Timestamp:       asOf(results, market, e.now()),
		ExecutionStatus: StatusHold,
		Signal:          LabelNeutral,
	}

	if len(results) == 0 {
		log.Warn().Msg("Ensemble received no strategy results, returning empty decision")
		decision.Empty = true
		decision.SuggestedPosition = current
		decision.Warnings = append(decision.Warnings, "no strategy results supplied")
		decision.Summary.CurrentPosition = current
		decision.Summary.TargetPosition = current
		return decision
	}

	n := len(results)
	trace := make([]TraceItem, n)
	for i, r := range results {
		trace[i] = TraceItem{Strategy: r.Name, Class: r.Class, LastSignal: r.LastSignal()}
	}

	// 1. return series
	matrix := buildReturns(results, market)
	vols := matrix.volatility()
	recent := matrix.recentVolatility(e.config.StateWindow, e.config.DefaultRecentStd)
	corr := matrix.absCorrelation()

	// 2-5. per-strategy factors
	alpha := make([]float64, n)
	risk := make([]float64, n)
	state := make([]float64, n)
	for i, r := range results {
		alpha[i] = e.alphaScore(r, &trace[i])
		risk[i] = e.riskScore(r, &trace[i])
		state[i] = e.stateMultiplier(r, recent[i], &trace[i])
	}
	ortho := e.orthoPenalties(corr)

	// 6. risk parity
	parity := e.riskParity(vols)

	// 7. weights
	weights, capped := e.synthesizeWeights(alpha, risk, state, parity, ortho)
	for i := range trace {
		trace[i].Penalty = ortho[i]
		trace[i].Volatility = vols[i]
		trace[i].ParityWeight = parity[i]
		trace[i].Weight = weights[i]
		trace[i].Capped = capped[i]
	}

	signal := 0.0
	for i := range results {
		signal += trace[i].LastSignal * weights[i]
	}

	// 8. Kelly sizing
	sizing := e.kellySizing(results, weights, corr, signal)
	rawTarget := signal * sizing.Kelly * e.config.TargetRiskRatio
	lower := -e.config.MaxLeverage
	if e.config.LongOnly {
		lower = 0
	}
	clipped := clip(rawTarget, lower, e.config.MaxLeverage)

	// 9. macro overlay
	regime := e.assessRegime(macro)
	target := clipped * regime.Scale

	// 10. turnover suppression
	threshold := e.config.RebalanceThreshold
	if math.Abs(target) < math.Abs(current) {
		threshold = e.config.DeRiskThreshold
	}
	if math.Abs(target-current) < threshold {
		decision.ExecutionStatus = StatusHold
		decision.SuggestedPosition = current
	} else {
		decision.ExecutionStatus = StatusExecute
		decision.SuggestedPosition = e.roundToGranularity(target)
	}

	// 11. reporting
	sort.SliceStable(trace, func(i, j int) bool { return trace[i].Weight > trace[j].Weight })

	decision.Trace = trace
	decision.SignalScore = signal
	decision.ConfidenceScore = sizing.AvgWinProb
	decision.Signal = e.label(signal)
	decision.Summary = Summary{
		Sizing:          sizing,
		Signal:          signal,
		RawTarget:       rawTarget,
		ClippedTarget:   clipped,
		Regime:          regime,
		TargetPosition:  target,
		CurrentPosition: current,
		Threshold:       threshold,
		TargetRiskRatio: e.config.TargetRiskRatio,
	}
	e.annotate(decision, results)
	decision.Sanitize()

	log.Info().
		Int("strategies", n).
		Float64("signal", signal).
		Str("label", string(decision.Signal)).
		Float64("kelly", sizing.Kelly).
		Str("regime", string(regime.Level)).
		Float64("current_position", current).
		Float64("suggested_position", decision.SuggestedPosition).
		Str("status", string(decision.ExecutionStatus)).
		Msg("Ensemble decision")

	return decision
}

// roundToGranularity snaps a position to the allocation step. The result
// never leaves [lower, max_leverage]; when max_leverage is off the grid the
// bound is the last step below it.
func (e *Engine) roundToGranularity(pos float64) float64 {
	g := e.config.Granularity
	upper := math.Floor(e.config.MaxLeverage/g+1e-9) * g
	lower := -upper
	if e.config.LongOnly {
		lower = 0
	}
	rounded := clip(math.Round(pos/g)*g, lower, upper)
	// trim float noise such as 0.15000000000000002
	return math.Round(rounded*1e6) / 1e6
}

// label maps the blended signal onto a decision label
func (e *Engine) label(signal float64) Label {
	switch {
	case signal > e.config.StrongBuyThreshold:
		return LabelStrongBuy
	case signal > e.config.BuyThreshold:
		return LabelBuy
	case !e.config.LongOnly && signal < e.config.StrongSellThreshold:
		return LabelStrongSell
	case signal < e.config.SellThreshold:
		return LabelSell
	default:
		return LabelNeutral
	}
}

// asOf picks the data date the decision refers to
func asOf(results []StrategyResult, market []backtest.Candle, now time.Time) time.Time {
	if len(market) > 0 {
		return market[len(market)-1].Date
	}
	var latest time.Time
	for _, r := range results {
		if last := r.Curve.Last(); last != nil && last.Date.After(latest) {
			latest = last.Date
		}
	}
	if latest.IsZero() {
		return now.UTC()
	}
	return latest
}

// String renders a short description of the decision
func (d *Decision) String() string {
	if d.Empty {
		return fmt.Sprintf("decision %s: empty", d.ID)
	}
	return fmt.Sprintf("decision %s: %s score=%.4f position=%.2f (%s)",
		d.ID, d.Signal, d.SignalScore, d.SuggestedPosition, d.ExecutionStatus)
}
