package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAlerter struct {
	alerts []Alert
	err    error
}

func (r *recordingAlerter) Send(_ context.Context, alert Alert) error {
	r.alerts = append(r.alerts, alert)
	return r.err
}

func TestManager_Send(t *testing.T) {
	first := &recordingAlerter{}
	second := &recordingAlerter{}
	manager := NewManager(first)
	manager.Add(second)

	require.NoError(t, manager.Send(context.Background(), Alert{Title: "t", Message: "m", Severity: SeverityInfo}))

	require.Len(t, first.alerts, 1)
	require.Len(t, second.alerts, 1)
	assert.False(t, first.alerts[0].Timestamp.IsZero())
}

func TestManager_SendKeepsGoingOnError(t *testing.T) {
	broken := &recordingAlerter{err: errors.New("channel down")}
	healthy := &recordingAlerter{}
	manager := NewManager(broken, healthy, NewLogAlerter())

	err := manager.Send(context.Background(), Alert{Title: "t", Severity: SeverityWarning})
	assert.ErrorContains(t, err, "channel down")
	assert.Len(t, healthy.alerts, 1)
}

func TestManager_RunAlerts(t *testing.T) {
	rec := &recordingAlerter{}
	manager := NewManager(rec)

	require.NoError(t, manager.RunFailed(context.Background(), "BTC-USD", "load", "connection refused"))
	require.NoError(t, manager.RunDegraded(context.Background(), "ETH-USD", 1, 3))

	require.Len(t, rec.alerts, 2)
	assert.Equal(t, SeverityCritical, rec.alerts[0].Severity)
	assert.Equal(t, "BTC-USD", rec.alerts[0].Metadata["symbol"])
	assert.Contains(t, rec.alerts[0].Message, "load stage")
	assert.Equal(t, SeverityWarning, rec.alerts[1].Severity)
	assert.Equal(t, "1 of 3 strategies produced no result", rec.alerts[1].Message)
}
