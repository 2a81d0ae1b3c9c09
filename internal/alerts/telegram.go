package alerts

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramAlerter sends run alerts to one or more Telegram chats
type TelegramAlerter struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
}

// NewTelegramAlerter connects the bot and checks its token.
// botToken: Telegram bot API token
// chatIDs: chats every alert is sent to
func NewTelegramAlerter(botToken string, chatIDs []int64) (*TelegramAlerter, error) {
	return newTelegramAlerter(botToken, chatIDs, tgbotapi.APIEndpoint, &http.Client{Timeout: 10 * time.Second})
}

func newTelegramAlerter(botToken string, chatIDs []int64, endpoint string, client tgbotapi.HTTPClient) (*TelegramAlerter, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if len(chatIDs) == 0 {
		return nil, fmt.Errorf("at least one chat ID is required")
	}

	api, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	log.Info().
		Str("bot_username", api.Self.UserName).
		Int("chat_count", len(chatIDs)).
		Msg("Telegram alerter initialized")

	return &TelegramAlerter{
		api:     api,
		chatIDs: append([]int64(nil), chatIDs...),
	}, nil
}

// Send delivers alert to every chat. It fails only when no chat received it.
func (t *TelegramAlerter) Send(ctx context.Context, alert Alert) error {
	text := formatTelegramAlert(alert)

	var lastErr error
	sent := 0
	for _, chatID := range t.chatIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeHTML
		if _, err := t.api.Send(msg); err != nil {
			log.Error().
				Err(err).
				Int64("chat_id", chatID).
				Str("alert_title", alert.Title).
				Msg("Failed to send Telegram alert")
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 && lastErr != nil {
		return fmt.Errorf("failed to send alert to any chat: %w", lastErr)
	}

	log.Debug().
		Int("sent", sent).
		Int("chats", len(t.chatIDs)).
		Str("alert_title", alert.Title).
		Msg("Telegram alert sent")

	return nil
}

// ChatIDs returns the configured chats
func (t *TelegramAlerter) ChatIDs() []int64 {
	return append([]int64(nil), t.chatIDs...)
}

// formatTelegramAlert renders alert as Telegram HTML. Symbols and stage names
// are escaped; metadata is listed in key order.
func formatTelegramAlert(alert Alert) string {
	var icon string
	switch alert.Severity {
	case SeverityCritical:
		icon = "🚨"
	case SeverityWarning:
		icon = "⚠️"
	case SeverityInfo:
		icon = "ℹ️"
	default:
		icon = "📢"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n%s", icon, html.EscapeString(alert.Title), html.EscapeString(alert.Message))

	if len(alert.Metadata) > 0 {
		keys := make([]string, 0, len(alert.Metadata))
		for key := range alert.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		b.WriteString("\n")
		for _, key := range keys {
			fmt.Fprintf(&b, "\n• %s: <code>%s</code>", html.EscapeString(key),
				html.EscapeString(fmt.Sprint(alert.Metadata[key])))
		}
	}

	if !alert.Timestamp.IsZero() {
		fmt.Fprintf(&b, "\n\n<i>%s</i>", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	}

	return b.String()
}
