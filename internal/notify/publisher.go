// Package notify fans ensemble decisions out to downstream consumers over NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/alphafuse/internal/alerts"
	"github.com/ajitpratap0/alphafuse/pkg/ensemble"
)

const flushTimeout = 5 * time.Second

// DecisionMessage is the payload published for every stored decision
type DecisionMessage struct {
	RunID    string             `json:"run_id"`
	Symbol   string             `json:"symbol"`
	Decision *ensemble.Decision `json:"decision"`
	SentAt   time.Time          `json:"sent_at"`
}

// Config configures the publisher
type Config struct {
	URL          string
	Subject      string // decisions go to <Subject>.<symbol>
	AlertSubject string
	Name         string
}

// Publisher publishes decisions, and alerts, to NATS
type Publisher struct {
	nc           *nats.Conn
	subject      string
	alertSubject string
}

// NewPublisher connects to NATS
func NewPublisher(cfg Config) (*Publisher, error) {
	if cfg.Subject == "" {
		cfg.Subject = "alphafuse.decisions"
	}
	if cfg.AlertSubject == "" {
		cfg.AlertSubject = "alphafuse.alerts"
	}
	if cfg.Name == "" {
		cfg.Name = "alphafuse-worker"
	}

	nc, err := nats.Connect(
		cfg.URL,
		nats.Name(cfg.Name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.Info().
		Str("nats_url", cfg.URL).
		Str("subject", cfg.Subject).
		Msg("Decision publisher initialized")

	return &Publisher{nc: nc, subject: cfg.Subject, alertSubject: cfg.AlertSubject}, nil
}

// Subject returns the subject a symbol's decisions are published on
func (p *Publisher) Subject(symbol string) string {
	return p.subject + "." + subjectToken(symbol)
}

// PublishDecision publishes d and flushes so delivery errors surface here
func (p *Publisher) PublishDecision(ctx context.Context, runID string, d *ensemble.Decision) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if d == nil || d.Symbol == "" {
		return fmt.Errorf("decision must carry a symbol")
	}
	if !p.nc.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}

	data, err := json.Marshal(DecisionMessage{
		RunID:    runID,
		Symbol:   d.Symbol,
		Decision: d,
		SentAt:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}

	subject := p.Subject(d.Symbol)
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish decision: %w", err)
	}
	if err := p.flush(ctx); err != nil {
		return fmt.Errorf("failed to flush decision: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("decision_id", d.ID).
		Msg("Decision published")

	return nil
}

// Send publishes an alert; it makes Publisher an alerts.Alerter
func (p *Publisher) Send(ctx context.Context, alert alerts.Alert) error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	if err := p.nc.Publish(p.alertSubject, data); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return p.flush(ctx)
}

// flush waits for the server to ack; FlushWithContext needs a deadline
func (p *Publisher) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return p.nc.FlushWithContext(ctx)
}

// Close drains pending messages and closes the connection
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}

// subjectToken makes a symbol safe as a single subject token
func subjectToken(symbol string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, symbol)
}
