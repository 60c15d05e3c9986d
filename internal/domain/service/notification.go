package service

import (
	"context"

	"GoldPull/internal/domain/models"
)

// SendResult identifies a delivered push message.
type SendResult struct {
	MessageID string
}

// Notifier delivers a push notification. A nil result with a nil error means
// the notifier is not configured and nothing was sent.
type Notifier interface {
	Send(ctx context.Context, n models.Notification) (*SendResult, error)
}

// AlarmNotifier delivers fired alarms to a device and any operator channels.
type AlarmNotifier interface {
	NotifyAlarm(ctx context.Context, alarm models.Alarm, ev models.AlarmFiredEvent)
}
