package repository

import (
	"context"
	"errors"
	"time"

	"GoldPull/internal/domain/models"
)

var ErrNotFound = errors.New("not found")

// FeedStream is a connection to the upstream market feed. Read yields raw
// payloads already accepted by the provider adapter.
type FeedStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan []byte, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

type CoefficientRepository interface {
	ListCoefficients(ctx context.Context) ([]models.Coefficient, error)
}

type DerivedRepository interface {
	// ListVisibleDerived returns visible definitions ordered by Order.
	ListVisibleDerived(ctx context.Context) ([]models.DerivedDefinition, error)
}

type AlarmRepository interface {
	// ListActive returns active alarms that have not been triggered.
	ListActive(ctx context.Context) ([]models.Alarm, error)
	// MarkTriggered flips IsTriggered for an untriggered alarm. It reports
	// false when the alarm was already triggered or no longer exists.
	MarkTriggered(ctx context.Context, id string, at time.Time) (bool, error)
}

type HistoryStore interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, records []models.HistoryRecord) error
	Query(ctx context.Context, code string, from, to time.Time, limit int) ([]models.HistoryRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// ProjectionStore keeps the named snapshot projections. Update performs a
// read-modify-write under the store's lock; prev is nil on first write.
type ProjectionStore interface {
	Get(ctx context.Context, key string) (*models.CacheProjection, error)
	Put(ctx context.Context, p models.CacheProjection) error
	Update(ctx context.Context, key string, fn func(prev *models.CacheProjection) models.CacheProjection) error
}

type Broadcaster interface {
	Broadcast(snapshot []models.Quote)
	BroadcastAlarm(ev models.AlarmFiredEvent)
}

// EventPublisher mirrors snapshots and alarm events to the event bus.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, ev models.SnapshotEvent) error
	PublishAlarm(ctx context.Context, ev models.AlarmFiredEvent) error
	Close() error
}

type Metrics interface {
	RecordTick(source string, quotes int)
	RecordError(kind string)
	RecordLastPrice(code string, price float64)
	RecordLatency(op string, seconds float64)
	RecordClients(n int)
	RecordAlarmFired(code string)
}
