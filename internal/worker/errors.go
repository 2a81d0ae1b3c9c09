package worker

import "fmt"

// Pipeline stages reported in RunError
const (
	StagePool     = "pool"
	StageLoad     = "load"
	StageOptimize = "optimize"
	StagePersist  = "persist"
)

// RunError reports a symbol whose entire run failed
type RunError struct {
	Symbol string
	Stage  string
	Reason string
	Err    error
}

func (e *RunError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("run %s failed at %s: %s: %v", e.Symbol, e.Stage, e.Reason, e.Err)
	}
	return fmt.Sprintf("run %s failed at %s: %s", e.Symbol, e.Stage, e.Reason)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
