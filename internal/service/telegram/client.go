// Package telegram mirrors fired alarms to an operator chat.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"GoldPull/internal/domain/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client sends MarkdownV2 messages to a single chat.
type Client struct {
	bot            sender
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient authenticates the bot token against the Bot API.
func NewClient(botToken string, chatID int64, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is required")
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase), nil
}

func newClient(bot sender, chatID int64, maxRetries int, retryDelayBase time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}
	return &Client{bot: bot, chatID: chatID, maxRetries: maxRetries, retryDelayBase: retryDelayBase}
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err
		if i == c.maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelayBase * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// SendAlarm posts a fired alarm.
func (c *Client) SendAlarm(ctx context.Context, ev models.AlarmFiredEvent) error {
	return c.sendMarkdownV2(ctx, formatAlarm(ev))
}

func formatAlarm(ev models.AlarmFiredEvent) string {
	emoji := "📈"
	if ev.CurrentPrice < ev.TargetPrice {
		emoji = "📉"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *Price alarm* `%s`\n", emoji, escapeMarkdownV2(ev.ProductCode))
	fmt.Fprintf(&b, "%s\n", escapeMarkdownV2(ev.Message))
	fmt.Fprintf(&b, "🕒 %s", escapeMarkdownV2(ev.TriggeredAt.Format("2006-01-02 15:04:05")))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
