package alerts

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTelegram is a minimal Bot API: getMe always works, sendMessage fails
// for chats listed in failChats
type fakeTelegram struct {
	mu        sync.Mutex
	failChats map[string]bool
	sent      map[string][]string // chat_id -> texts
	modes     []string
}

func newFakeTelegram(t *testing.T, failChats ...string) (*fakeTelegram, *httptest.Server) {
	t.Helper()

	fake := &fakeTelegram{failChats: make(map[string]bool), sent: make(map[string][]string)}
	for _, id := range failChats {
		fake.failChats[id] = true
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"alphafuse","username":"alphafuse_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			assert.NoError(t, r.ParseForm())
			chatID := r.PostForm.Get("chat_id")

			fake.mu.Lock()
			defer fake.mu.Unlock()
			if fake.failChats[chatID] {
				fmt.Fprint(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
				return
			}
			fake.sent[chatID] = append(fake.sent[chatID], r.PostForm.Get("text"))
			fake.modes = append(fake.modes, r.PostForm.Get("parse_mode"))
			fmt.Fprintf(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":%s,"type":"private"}}}`, chatID)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"ok":false,"error_code":404,"description":"Not Found"}`)
		}
	}))
	t.Cleanup(server.Close)

	return fake, server
}

func testAlerter(t *testing.T, server *httptest.Server, chatIDs ...int64) *TelegramAlerter {
	t.Helper()
	alerter, err := newTelegramAlerter("test-token", chatIDs, server.URL+"/bot%s/%s", server.Client())
	require.NoError(t, err)
	return alerter
}

func TestNewTelegramAlerter(t *testing.T) {
	tests := []struct {
		name     string
		botToken string
		chatIDs  []int64
		errMsg   string
	}{
		{
			name:     "empty bot token",
			botToken: "",
			chatIDs:  []int64{123456789},
			errMsg:   "bot token is required",
		},
		{
			name:     "no chat IDs",
			botToken: "test_token",
			chatIDs:  []int64{},
			errMsg:   "chat ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alerter, err := NewTelegramAlerter(tt.botToken, tt.chatIDs)
			require.Error(t, err)
			assert.Nil(t, alerter)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewTelegramAlerter_ChecksToken(t *testing.T) {
	_, server := newFakeTelegram(t)

	alerter := testAlerter(t, server, 111, 222)
	assert.Equal(t, "alphafuse_bot", alerter.api.Self.UserName)
	assert.Equal(t, []int64{111, 222}, alerter.ChatIDs())
}

func TestTelegramAlerter_SendRunAlerts(t *testing.T) {
	fake, server := newFakeTelegram(t)
	manager := NewManager(testAlerter(t, server, 111, 222))
	ctx := context.Background()

	require.NoError(t, manager.RunFailed(ctx, "BTC-USD", "load", "not enough candles"))
	require.NoError(t, manager.RunDegraded(ctx, "ETH-USD", 1, 4))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	for _, chat := range []string{"111", "222"} {
		require.Len(t, fake.sent[chat], 2, "chat %s", chat)
		assert.Contains(t, fake.sent[chat][0], "Run failed: BTC-USD")
		assert.Contains(t, fake.sent[chat][0], "load stage: not enough candles")
		assert.Contains(t, fake.sent[chat][1], "1 of 4 strategies produced no result")
	}
	for _, mode := range fake.modes {
		assert.Equal(t, "HTML", mode)
	}
}

func TestTelegramAlerter_Send_PartialDelivery(t *testing.T) {
	fake, server := newFakeTelegram(t, "111")
	alerter := testAlerter(t, server, 111, 222)

	err := alerter.Send(context.Background(), Alert{Title: "t", Message: "m", Severity: SeverityInfo})
	assert.NoError(t, err)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.sent["111"])
	assert.Len(t, fake.sent["222"], 1)
}

func TestTelegramAlerter_Send_AllChatsFail(t *testing.T) {
	_, server := newFakeTelegram(t, "111", "222")
	alerter := testAlerter(t, server, 111, 222)

	err := alerter.Send(context.Background(), Alert{Title: "t", Message: "m", Severity: SeverityCritical})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramAlerter_Send_Cancelled(t *testing.T) {
	fake, server := newFakeTelegram(t)
	alerter := testAlerter(t, server, 111)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := alerter.Send(ctx, Alert{Title: "t", Severity: SeverityInfo})
	assert.ErrorIs(t, err, context.Canceled)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Empty(t, fake.sent)
}

func TestFormatTelegramAlert(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name        string
		alert       Alert
		contains    []string
		notContains []string
	}{
		{
			name:     "critical alert",
			alert:    Alert{Title: "Run failed: BTC-USD", Message: "pool stage: no runnable strategies", Severity: SeverityCritical, Timestamp: stamp},
			contains: []string{"🚨", "<b>Run failed: BTC-USD</b>", "pool stage: no runnable strategies", "2024-03-01 12:30:00 UTC"},
		},
		{
			name:     "warning alert",
			alert:    Alert{Title: "Run degraded: ETH-USD", Message: "2 of 5 strategies produced no result", Severity: SeverityWarning},
			contains: []string{"⚠️", "2 of 5 strategies"},
		},
		{
			name:        "markup is escaped",
			alert:       Alert{Title: "<script>", Message: "a & b", Severity: SeverityInfo},
			contains:    []string{"ℹ️", "&lt;script&gt;", "a &amp; b"},
			notContains: []string{"<script>"},
		},
		{
			name: "metadata in key order",
			alert: Alert{
				Title:    "Run failed: SOL-USD",
				Severity: SeverityCritical,
				Metadata: map[string]interface{}{"symbol": "SOL-USD", "stage": "persist"},
			},
			contains: []string{"• stage: <code>persist</code>\n• symbol: <code>SOL-USD</code>"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTelegramAlert(tt.alert)
			for _, str := range tt.contains {
				assert.Contains(t, result, str)
			}
			for _, str := range tt.notContains {
				assert.NotContains(t, result, str)
			}
		})
	}
}
