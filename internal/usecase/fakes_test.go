package usecase

import (
	"context"
	"sync"

	"GoldPull/internal/domain/models"
)

type recordingBroadcaster struct {
	mu        sync.Mutex
	snapshots [][]models.Quote
	alarms    []models.AlarmFiredEvent
}

func (b *recordingBroadcaster) Broadcast(snapshot []models.Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, snapshot)
}

func (b *recordingBroadcaster) BroadcastAlarm(ev models.AlarmFiredEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alarms = append(b.alarms, ev)
}

func (b *recordingBroadcaster) Snapshots() [][]models.Quote {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]models.Quote(nil), b.snapshots...)
}

func (b *recordingBroadcaster) Alarms() []models.AlarmFiredEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.AlarmFiredEvent(nil), b.alarms...)
}

type recordingEvents struct {
	mu        sync.Mutex
	snapshots []models.SnapshotEvent
	alarms    []models.AlarmFiredEvent
}

func (e *recordingEvents) PublishSnapshot(_ context.Context, ev models.SnapshotEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshots = append(e.snapshots, ev)
	return nil
}

func (e *recordingEvents) PublishAlarm(_ context.Context, ev models.AlarmFiredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.alarms = append(e.alarms, ev)
	return nil
}

func (e *recordingEvents) Close() error { return nil }

func (e *recordingEvents) Alarms() []models.AlarmFiredEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.AlarmFiredEvent(nil), e.alarms...)
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls []models.AlarmFiredEvent
}

func (n *recordingNotifier) NotifyAlarm(_ context.Context, _ models.Alarm, ev models.AlarmFiredEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, ev)
}

func (n *recordingNotifier) Calls() []models.AlarmFiredEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.AlarmFiredEvent(nil), n.calls...)
}

func tickOf(quotes ...models.NormalizedQuote) models.CanonicalTick {
	t := make(models.CanonicalTick, len(quotes))
	for _, q := range quotes {
		t[q.Code] = q
	}
	return t
}

func nq(code string, buy, sell float64) models.NormalizedQuote {
	return models.NormalizedQuote{Code: code, Buy: buy, Sell: sell}
}
