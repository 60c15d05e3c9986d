package push

import (
	"context"
	"strconv"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	dservice "GoldPull/internal/domain/service"
	"GoldPull/pkg/logger"
)

// OpsChannel mirrors fired alarms to operators, e.g. a Telegram chat.
type OpsChannel interface {
	SendAlarm(ctx context.Context, ev models.AlarmFiredEvent) error
}

// Dispatcher delivers a fired alarm to the owner's device and, when set, to the
// ops channel. Delivery is best effort: failures are logged and never retried.
type Dispatcher struct {
	push    dservice.Notifier
	ops     OpsChannel
	metrics drepo.Metrics
	logger  *logger.Logger
	timeout time.Duration
}

var _ dservice.AlarmNotifier = (*Dispatcher)(nil)

// NewDispatcher builds a dispatcher; ops may be nil.
func NewDispatcher(push dservice.Notifier, ops OpsChannel, metrics drepo.Metrics, l *logger.Logger) *Dispatcher {
	return &Dispatcher{push: push, ops: ops, metrics: metrics, logger: l.With("notify"), timeout: 10 * time.Second}
}

func (d *Dispatcher) NotifyAlarm(ctx context.Context, alarm models.Alarm, ev models.AlarmFiredEvent) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if alarm.PushToken != "" {
		d.sendPush(ctx, alarm, ev)
	}
	if d.ops != nil {
		if err := d.ops.SendAlarm(ctx, ev); err != nil {
			d.metrics.RecordError("notify_ops")
			d.logger.Warn("ops alarm message failed", logger.String("alarm_id", ev.AlarmID), logger.Error(err))
		}
	}
}

func (d *Dispatcher) sendPush(ctx context.Context, alarm models.Alarm, ev models.AlarmFiredEvent) {
	res, err := d.push.Send(ctx, AlarmNotification(alarm.PushToken, ev))
	switch {
	case err != nil:
		d.metrics.RecordError("notify_push")
		d.logger.Warn("push notification failed", logger.String("alarm_id", ev.AlarmID), logger.Error(err))
	case res == nil:
		d.logger.Debug("push skipped, notifier not configured", logger.String("alarm_id", ev.AlarmID))
	default:
		d.logger.Info("push notification sent", logger.String("alarm_id", ev.AlarmID), logger.String("message_id", res.MessageID))
	}
}

// AlarmNotification builds the device payload for a fired alarm.
func AlarmNotification(token string, ev models.AlarmFiredEvent) models.Notification {
	return models.Notification{
		Token: token,
		Title: "Price alarm: " + ev.ProductCode,
		Body:  ev.Message,
		Data: map[string]string{
			"type":         "alarm_triggered",
			"alarmId":      ev.AlarmID,
			"productCode":  ev.ProductCode,
			"currentPrice": strconv.FormatFloat(ev.CurrentPrice, 'f', -1, 64),
			"targetPrice":  strconv.FormatFloat(ev.TargetPrice, 'f', -1, 64),
		},
	}
}
