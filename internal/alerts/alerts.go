// Package alerts routes operational alerts, such as a symbol run failing, to
// one or more channels.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Severity levels for alerts
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Alert represents an alert message
type Alert struct {
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Severity  Severity               `json:"severity"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Alerter defines the interface for sending alerts
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// Manager fans alerts out to every configured alerter
type Manager struct {
	alerters []Alerter
}

// NewManager creates a new alert manager
func NewManager(alerters ...Alerter) *Manager {
	return &Manager{alerters: alerters}
}

// Add appends an alerter
func (m *Manager) Add(a Alerter) {
	m.alerters = append(m.alerters, a)
}

// Send delivers alert to every alerter; one failing channel does not stop
// the others
func (m *Manager) Send(ctx context.Context, alert Alert) error {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now()
	}

	var errs []error
	for _, alerter := range m.alerters {
		if err := alerter.Send(ctx, alert); err != nil {
			log.Error().
				Err(err).
				Str("title", alert.Title).
				Msg("Failed to send alert")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunFailed reports a symbol whose whole run failed
func (m *Manager) RunFailed(ctx context.Context, symbol, stage, reason string) error {
	return m.Send(ctx, Alert{
		Title:    fmt.Sprintf("Run failed: %s", symbol),
		Message:  fmt.Sprintf("%s stage: %s", stage, reason),
		Severity: SeverityCritical,
		Metadata: map[string]interface{}{"symbol": symbol, "stage": stage},
	})
}

// RunDegraded reports a run that finished without some of its strategies
func (m *Manager) RunDegraded(ctx context.Context, symbol string, lost, total int) error {
	return m.Send(ctx, Alert{
		Title:    fmt.Sprintf("Run degraded: %s", symbol),
		Message:  fmt.Sprintf("%d of %d strategies produced no result", lost, total),
		Severity: SeverityWarning,
		Metadata: map[string]interface{}{"symbol": symbol, "lost": lost, "total": total},
	})
}

// LogAlerter logs alerts using zerolog
type LogAlerter struct{}

// NewLogAlerter creates a new log-based alerter
func NewLogAlerter() *LogAlerter {
	return &LogAlerter{}
}

// Send sends an alert by logging it
func (l *LogAlerter) Send(_ context.Context, alert Alert) error {
	event := log.Info()
	switch alert.Severity {
	case SeverityCritical:
		event = log.Error()
	case SeverityWarning:
		event = log.Warn()
	}

	for key, value := range alert.Metadata {
		event = event.Interface(key, value)
	}

	event.
		Str("alert_title", alert.Title).
		Str("alert_severity", string(alert.Severity)).
		Time("alert_time", alert.Timestamp).
		Msg("ALERT: " + alert.Message)

	return nil
}
