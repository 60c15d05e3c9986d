package usecase

import (
	"context"
	"fmt"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	dservice "GoldPull/internal/domain/service"
	"GoldPull/pkg/logger"
)

// QuoteLookup reads a single quote from the live snapshot. HasTick reports
// whether the snapshot comes from a live tick rather than a warm start.
type QuoteLookup interface {
	Lookup(code string) (models.Quote, bool)
	HasTick() bool
}

// AlarmEvaluator checks active alarms against the live snapshot on a fixed
// interval. An alarm is persisted as triggered before anything is sent, so a
// failed or repeated dispatch can never fire it twice.
type AlarmEvaluator struct {
	alarms      drepo.AlarmRepository
	prices      QuoteLookup
	notifier    dservice.AlarmNotifier
	broadcaster drepo.Broadcaster
	events      drepo.EventPublisher
	metrics     drepo.Metrics
	logger      *logger.Logger
	interval    time.Duration
	now         func() time.Time
}

func NewAlarmEvaluator(
	alarms drepo.AlarmRepository,
	prices QuoteLookup,
	notifier dservice.AlarmNotifier,
	broadcaster drepo.Broadcaster,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	l *logger.Logger,
	interval time.Duration,
) *AlarmEvaluator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &AlarmEvaluator{
		alarms:      alarms,
		prices:      prices,
		notifier:    notifier,
		broadcaster: broadcaster,
		events:      events,
		metrics:     metrics,
		logger:      l.With("alarms"),
		interval:    interval,
		now:         time.Now,
	}
}

// Run evaluates alarms every interval until ctx ends.
func (e *AlarmEvaluator) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.logger.Info("alarm evaluator started", logger.Duration("interval_ms", e.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Evaluate(ctx)
		}
	}
}

// Evaluate runs one pass and returns how many alarms fired. Nothing is
// evaluated until a live tick arrived; warm-started prices may be stale.
func (e *AlarmEvaluator) Evaluate(ctx context.Context) int {
	if !e.prices.HasTick() {
		return 0
	}
	start := time.Now()
	active, err := e.alarms.ListActive(ctx)
	if err != nil {
		e.metrics.RecordError("alarms_list")
		e.logger.Error("list active alarms failed", logger.Error(err))
		return 0
	}

	fired := 0
	for _, a := range active {
		if a.IsTriggered || !a.IsActive {
			continue
		}
		q, ok := e.prices.Lookup(a.ProductCode)
		if !ok || !q.Valid() {
			continue
		}
		price := q.Price(a.Side)
		if !a.Satisfied(price) {
			continue
		}
		if e.fire(ctx, a, q, price) {
			fired++
		}
	}
	e.metrics.RecordLatency("alarm_evaluate", time.Since(start).Seconds())
	return fired
}

func (e *AlarmEvaluator) fire(ctx context.Context, a models.Alarm, q models.Quote, price float64) bool {
	at := e.now()
	ok, err := e.alarms.MarkTriggered(ctx, a.ID, at)
	if err != nil {
		e.metrics.RecordError("alarm_mark")
		e.logger.Error("mark alarm triggered failed, skipping dispatch", logger.String("alarm_id", a.ID), logger.Error(err))
		return false
	}
	if !ok {
		return false
	}

	ev := models.AlarmFiredEvent{
		AlarmID:      a.ID,
		DeviceID:     a.DeviceID,
		ProductCode:  a.ProductCode,
		Message:      AlarmMessage(a, q, price),
		CurrentPrice: price,
		TargetPrice:  a.TargetPrice,
		TriggeredAt:  at,
	}
	e.metrics.RecordAlarmFired(a.ProductCode)
	e.logger.Info("alarm fired",
		logger.String("alarm_id", a.ID),
		logger.String("code", a.ProductCode),
		logger.Float64("price", price),
		logger.Float64("target", a.TargetPrice),
	)

	e.notifier.NotifyAlarm(ctx, a, ev)
	e.broadcaster.BroadcastAlarm(ev)
	if err := e.events.PublishAlarm(ctx, ev); err != nil {
		e.metrics.RecordError("alarm_event")
		e.logger.Warn("alarm event publish failed", logger.String("alarm_id", a.ID), logger.Error(err))
	}
	return true
}

// AlarmMessage is the human readable text sent with a fired alarm.
func AlarmMessage(a models.Alarm, q models.Quote, price float64) string {
	name := q.Name
	if name == "" {
		name = a.ProductCode
	}
	verb := "rose to"
	if a.Condition == models.ConditionBelow {
		verb = "fell to"
	}
	return fmt.Sprintf("%s %s %s %.2f (target %.2f)", name, a.Side, verb, price, a.TargetPrice)
}
