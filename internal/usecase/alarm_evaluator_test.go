package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"GoldPull/internal/domain/models"
	"GoldPull/internal/repository"
	"GoldPull/pkg/logger"
	"GoldPull/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPrices map[string]models.Quote

func (s staticPrices) Lookup(code string) (models.Quote, bool) {
	q, ok := s[code]
	return q, ok
}

func (s staticPrices) HasTick() bool { return true }

// warmPrices serves cached quotes before any live tick.
type warmPrices struct{ staticPrices }

func (warmPrices) HasTick() bool { return false }

func (s staticPrices) set(code string, price float64) {
	s[code] = models.Quote{Code: code, Name: "Dolar", CalculatedBuy: price - 0.1, CalculatedSell: price}
}

type alarmFixture struct {
	eval        *AlarmEvaluator
	repo        *repository.MemoryAlarms
	prices      staticPrices
	notifier    *recordingNotifier
	broadcaster *recordingBroadcaster
	events      *recordingEvents
}

func newAlarmFixture(alarms ...models.Alarm) *alarmFixture {
	f := &alarmFixture{
		repo:        repository.NewMemoryAlarms(alarms...),
		prices:      staticPrices{},
		notifier:    &recordingNotifier{},
		broadcaster: &recordingBroadcaster{},
		events:      &recordingEvents{},
	}
	f.eval = NewAlarmEvaluator(f.repo, f.prices, f.notifier, f.broadcaster, f.events, metrics.Nop{}, logger.Nop(), time.Second)
	return f
}

func TestAlarmFiresOnce(t *testing.T) {
	f := newAlarmFixture(models.Alarm{
		ID: "a1", DeviceID: "d1", PushToken: "tok", ProductCode: "USDTRY",
		Side: models.SideSell, Condition: models.ConditionAbove, TargetPrice: 35.0, IsActive: true,
	})
	ctx := context.Background()

	sequence := []struct {
		price float64
		fired int
	}{
		{34.9, 0},
		{35.1, 1},
		{34.8, 0},
		{35.2, 0},
	}
	for _, step := range sequence {
		f.prices.set("USDTRY", step.price)
		assert.Equal(t, step.fired, f.eval.Evaluate(ctx), "price %.2f", step.price)
	}

	calls := f.notifier.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 35.1, calls[0].CurrentPrice)
	assert.Equal(t, 35.0, calls[0].TargetPrice)
	assert.Equal(t, "d1", calls[0].DeviceID)
	assert.Len(t, f.broadcaster.Alarms(), 1)
	assert.Len(t, f.events.Alarms(), 1)

	stored, _ := f.repo.Get("a1")
	assert.True(t, stored.IsTriggered)
}

func TestAlarmBelowUsesBuySide(t *testing.T) {
	f := newAlarmFixture(models.Alarm{
		ID: "b1", ProductCode: "USDTRY", Side: models.SideBuy,
		Condition: models.ConditionBelow, TargetPrice: 34.0, IsActive: true,
	})
	ctx := context.Background()

	f.prices["USDTRY"] = models.Quote{Code: "USDTRY", CalculatedBuy: 34.0, CalculatedSell: 34.2}
	assert.Equal(t, 1, f.eval.Evaluate(ctx), "below is inclusive")
	assert.Contains(t, f.broadcaster.Alarms()[0].Message, "fell to 34.00")
}

func TestAlarmSkipsMissingProductAndInactive(t *testing.T) {
	f := newAlarmFixture(
		models.Alarm{ID: "x", ProductCode: "GONE", Side: models.SideSell, Condition: models.ConditionAbove, TargetPrice: 1, IsActive: true},
		models.Alarm{ID: "y", ProductCode: "USDTRY", Side: models.SideSell, Condition: models.ConditionAbove, TargetPrice: 1, IsActive: false},
	)
	f.prices.set("USDTRY", 40)

	assert.Zero(t, f.eval.Evaluate(context.Background()))
	assert.Empty(t, f.notifier.Calls())
}

func TestAlarmMarkFailureSkipsDispatch(t *testing.T) {
	f := newAlarmFixture(models.Alarm{
		ID: "a1", ProductCode: "USDTRY", Side: models.SideSell,
		Condition: models.ConditionAbove, TargetPrice: 35, IsActive: true,
	})
	f.repo.MarkErr = errors.New("write conflict")
	f.prices.set("USDTRY", 36)

	assert.Zero(t, f.eval.Evaluate(context.Background()))
	assert.Empty(t, f.notifier.Calls())
	assert.Empty(t, f.broadcaster.Alarms())

	stored, _ := f.repo.Get("a1")
	assert.False(t, stored.IsTriggered)

	f.repo.MarkErr = nil
	assert.Equal(t, 1, f.eval.Evaluate(context.Background()))
}

func TestAlarmRunStopsOnCancel(t *testing.T) {
	f := newAlarmFixture()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.eval.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("evaluator did not stop")
	}
}

func TestAlarmWaitsForLiveTick(t *testing.T) {
	repo := repository.NewMemoryAlarms(models.Alarm{
		ID: "a1", DeviceID: "d1", ProductCode: "USDTRY",
		Side: models.SideSell, Condition: models.ConditionAbove, TargetPrice: 35.0, IsActive: true,
	})
	prices := warmPrices{staticPrices{}}
	prices.set("USDTRY", 40)
	notifier := &recordingNotifier{}
	eval := NewAlarmEvaluator(repo, prices, notifier, &recordingBroadcaster{}, &recordingEvents{}, metrics.Nop{}, logger.Nop(), time.Second)

	assert.Equal(t, 0, eval.Evaluate(context.Background()))
	assert.Empty(t, notifier.Calls())

	a, ok := repo.Get("a1")
	require.True(t, ok)
	assert.False(t, a.IsTriggered)
}
