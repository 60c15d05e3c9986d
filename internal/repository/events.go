package repository

import (
	"context"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	pkgkafka "GoldPull/pkg/kafka"

	"github.com/google/uuid"
)

// KafkaEvents mirrors snapshots and fired alarms onto Kafka topics.
type KafkaEvents struct {
	producer      *pkgkafka.Producer
	snapshotTopic string
	alarmTopic    string
}

var _ drepo.EventPublisher = (*KafkaEvents)(nil)

func NewKafkaEvents(producer *pkgkafka.Producer, snapshotTopic, alarmTopic string) *KafkaEvents {
	return &KafkaEvents{producer: producer, snapshotTopic: snapshotTopic, alarmTopic: alarmTopic}
}

type eventEnvelope struct {
	ID   string      `json:"id"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func (k *KafkaEvents) PublishSnapshot(ctx context.Context, ev models.SnapshotEvent) error {
	return k.producer.Publish(ctx, k.snapshotTopic, []byte("snapshot"), eventEnvelope{
		ID:   uuid.NewString(),
		Type: "price_update",
		Data: ev,
	})
}

func (k *KafkaEvents) PublishAlarm(ctx context.Context, ev models.AlarmFiredEvent) error {
	return k.producer.Publish(ctx, k.alarmTopic, []byte(ev.ProductCode), eventEnvelope{
		ID:   uuid.NewString(),
		Type: "alarm_triggered",
		Data: ev,
	})
}

func (k *KafkaEvents) Close() error { return k.producer.Close() }

// NopEvents drops every event; it stands in when Kafka is disabled.
type NopEvents struct{}

var _ drepo.EventPublisher = NopEvents{}

func (NopEvents) PublishSnapshot(context.Context, models.SnapshotEvent) error { return nil }
func (NopEvents) PublishAlarm(context.Context, models.AlarmFiredEvent) error  { return nil }
func (NopEvents) Close() error                                                { return nil }
