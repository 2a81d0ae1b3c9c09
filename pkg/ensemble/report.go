package ensemble

import (
	"fmt"
	"math"
	"strings"
)

// ============================================================================
// DECISION ANNOTATIONS
// ============================================================================

// annotate fills the human-readable fields of a decision from its numbers
func (e *Engine) annotate(d *Decision, results []StrategyResult) {
	d.Influences = e.influences(d)
	d.Rationale = e.rationale(d)
	d.ContributionAnalysis = e.contributionAnalysis(d.Trace)
	d.RiskActions = riskActions(d.Trace, results)
	d.ActionGuide = e.actionGuide(d)
	d.Interpretation = e.interpretation(d)
}

// influences names the pipeline stages that moved the position away from
// what the blended signal alone would suggest
func (e *Engine) influences(d *Decision) []string {
	s := d.Summary
	var out []string

	if s.Confidence < 0.5 {
		out = append(out, fmt.Sprintf("muted by low confidence (%.2f)", s.Confidence))
	}
	if s.Diversity < 0.6 {
		out = append(out, fmt.Sprintf("capped by low diversity (%.2f)", s.Diversity))
	}
	if s.RawKelly <= 0 {
		out = append(out, "no statistical edge (Kelly <= 0)")
	}
	if s.RawTarget != s.ClippedTarget {
		if e.config.LongOnly && s.RawTarget < 0 {
			out = append(out, "short exposure removed (long-only)")
		} else {
			out = append(out, fmt.Sprintf("clipped at max leverage %.2f", e.config.MaxLeverage))
		}
	}
	if s.Regime.Scale < 1 {
		out = append(out, fmt.Sprintf("scaled to %.0f%% by %s macro regime", s.Regime.Scale*100, s.Regime.Level))
	}
	for _, t := range d.Trace {
		if t.State < 1 && t.Weight > 0 {
			out = append(out, fmt.Sprintf("%s de-risked after recent loss", t.Strategy))
		}
		if t.Capped {
			out = append(out, fmt.Sprintf("%s weight capped at %.0f%%", t.Strategy, t.Weight*100))
		}
	}
	if d.ExecutionStatus == StatusHold {
		out = append(out, fmt.Sprintf("change below turnover threshold %.2f", s.Threshold))
	}
	return out
}

// rationale summarises the decision in one line
func (e *Engine) rationale(d *Decision) string {
	s := d.Summary
	var b strings.Builder
	fmt.Fprintf(&b, "%s signal %.3f from %d strategies", d.Signal, s.Signal, len(d.Trace))
	if len(d.Trace) > 0 && d.Trace[0].Weight > 0 {
		fmt.Fprintf(&b, ", led by %s (%.0f%%)", d.Trace[0].Strategy, d.Trace[0].Weight*100)
	}
	fmt.Fprintf(&b, "; Kelly %.3f (p=%.2f, b=%.2f)", s.Kelly, s.AvgWinProb, s.AvgPayoff)
	fmt.Fprintf(&b, "; target %.2f vs current %.2f -> %s %.2f",
		s.TargetPosition, s.CurrentPosition, d.ExecutionStatus, d.SuggestedPosition)
	if len(d.Influences) > 0 {
		fmt.Fprintf(&b, "; %s", strings.Join(d.Influences, ", "))
	}
	return b.String()
}

// contributionAnalysis flags diluted and independent strategies
func (e *Engine) contributionAnalysis(trace []TraceItem) []string {
	var out []string
	for _, t := range trace {
		dilution := (1 - t.Penalty) * 100
		switch {
		case dilution > 50:
			out = append(out, fmt.Sprintf("%s: highly correlated with the pool, weight diluted by %.1f%%", t.Strategy, dilution))
		case t.Penalty >= 0.75:
			out = append(out, fmt.Sprintf("%s: independent return stream, full diversification credit", t.Strategy))
		}
	}
	return out
}

// riskActions suggests exits for strategies currently holding a position
func riskActions(trace []TraceItem, results []StrategyResult) []string {
	byName := make(map[string]StrategyResult, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	var out []string
	for _, t := range trace {
		r, ok := byName[t.Strategy]
		if !ok || !r.Metrics.IsInPosition {
			continue
		}
		m := r.Metrics
		switch {
		case m.LastTradePnL < -math.Abs(m.MaxDrawdown*0.6):
			out = append(out, fmt.Sprintf("%s: open loss %.2f%% approaching historical drawdown, close urgently",
				t.Strategy, m.LastTradePnL*100))
		case m.AnnualReturn > 0 && m.LastTradePnL > m.AnnualReturn*0.2:
			out = append(out, fmt.Sprintf("%s: open gain %.2f%%, consider taking profit",
				t.Strategy, m.LastTradePnL*100))
		}
	}
	if len(out) == 0 {
		out = append(out, "Portfolio running steadily")
	}
	return out
}

// actionGuide turns the decision into one instruction
func (e *Engine) actionGuide(d *Decision) string {
	sig := d.SignalScore
	switch {
	case e.config.LongOnly && sig < -0.1:
		return fmt.Sprintf("Risk: signal bearish (%.2f). Long-only, move to cash", sig)
	case math.Abs(sig) < 0.2:
		return "Mixed signals. Stay on the sidelines"
	}

	prefix := "Trend following"
	if d.ConfidenceScore > 0.55 {
		prefix = "High-probability consensus"
	}
	side := "buy"
	if sig < 0 {
		side = "short"
	}
	return fmt.Sprintf("%s: %s, position %.0f%%", prefix, side, math.Abs(d.SuggestedPosition)*100)
}

// interpretation explains the gap between signal strength and position size
func (e *Engine) interpretation(d *Decision) string {
	switch {
	case math.Abs(d.SignalScore) > 0.5 && math.Abs(d.SuggestedPosition) < 0.1:
		return "Strong signal diluted by strategy correlation or low confidence"
	case d.Summary.AvgWinProb < 0.2:
		return "Ranging market with poor hit rate, Kelly sizing stays defensive"
	default:
		return "Signal and position size are consistent"
	}
}

// ============================================================================
// TEXT REPORT
// ============================================================================

// FormatDecision renders a decision as a plain-text report
func FormatDecision(d *Decision) string {
	var b strings.Builder

	b.WriteString("========================================\n")
	b.WriteString("ENSEMBLE DECISION\n")
	b.WriteString("========================================\n")
	if d.Symbol != "" {
		fmt.Fprintf(&b, "Symbol:             %s\n", d.Symbol)
	}
	fmt.Fprintf(&b, "Decision ID:        %s\n", d.ID)
	fmt.Fprintf(&b, "As of:              %s\n", d.Timestamp.Format("2006-01-02"))

	if d.Empty {
		b.WriteString("\nNo strategy results, position unchanged.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Signal:             %s (%.4f)\n", d.Signal, d.SignalScore)
	fmt.Fprintf(&b, "Confidence:         %.2f%%\n", d.ConfidenceScore*100)
	fmt.Fprintf(&b, "Suggested position: %.2f%% (%s)\n", d.SuggestedPosition*100, d.ExecutionStatus)
	fmt.Fprintf(&b, "Current position:   %.2f%%\n", d.Summary.CurrentPosition*100)

	b.WriteString("\nSIZING\n")
	b.WriteString("----------------------------------------\n")
	s := d.Summary
	fmt.Fprintf(&b, "Win probability:    %.4f\n", s.AvgWinProb)
	fmt.Fprintf(&b, "Payoff ratio:       %.4f\n", s.AvgPayoff)
	fmt.Fprintf(&b, "Raw Kelly:          %.4f (%s)\n", s.RawKelly, s.Advice)
	fmt.Fprintf(&b, "Diversity:          %.4f\n", s.Diversity)
	fmt.Fprintf(&b, "Confidence factor:  %.4f\n", s.Confidence)
	fmt.Fprintf(&b, "Kelly:              %.4f\n", s.Kelly)
	fmt.Fprintf(&b, "Regime:             %s (scale %.2f)\n", s.Regime.Level, s.Regime.Scale)

	b.WriteString("\nSTRATEGIES\n")
	b.WriteString("----------------------------------------\n")
	fmt.Fprintf(&b, "%-24s %8s %8s %8s %8s %6s\n", "Strategy", "Weight", "Signal", "Alpha", "Risk", "State")
	for _, t := range d.Trace {
		fmt.Fprintf(&b, "%-24s %7.2f%% %8.2f %8.4f %8.4f %6.2f\n",
			t.Strategy, t.Weight*100, t.LastSignal, t.Alpha, t.Risk, t.State)
	}

	b.WriteString("\nANALYSIS\n")
	b.WriteString("----------------------------------------\n")
	fmt.Fprintf(&b, "%s\n", d.Rationale)
	for _, line := range d.ContributionAnalysis {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	for _, line := range d.RiskActions {
		fmt.Fprintf(&b, "- %s\n", line)
	}
	fmt.Fprintf(&b, "Action: %s\n", d.ActionGuide)
	fmt.Fprintf(&b, "Interpretation: %s\n", d.Interpretation)
	b.WriteString("========================================\n")

	return b.String()
}
