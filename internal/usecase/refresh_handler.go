package usecase

import (
	"context"
	"encoding/json"
	"time"

	domrepo "GoldPull/internal/domain/repository"
	pkgkafka "GoldPull/pkg/kafka"
	"GoldPull/pkg/logger"
)

// Refresher recomputes the snapshot from the last raw tick.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

// RefreshCommand is the refresh topic message. Back-office tools publish it
// after editing coefficients or derived definitions; an empty body is valid.
type RefreshCommand struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requestedAt"`
}

// KafkaRefreshHandler turns refresh topic messages into engine refreshes.
type KafkaRefreshHandler struct {
	topic   string
	engine  Refresher
	metrics domrepo.Metrics
	logger  *logger.Logger
}

func NewKafkaRefreshHandler(topic string, engine Refresher, metrics domrepo.Metrics, l *logger.Logger) *KafkaRefreshHandler {
	return &KafkaRefreshHandler{topic: topic, engine: engine, metrics: metrics, logger: l.With("refresh")}
}

func (h *KafkaRefreshHandler) Topic() string { return h.topic }

func (h *KafkaRefreshHandler) Handle(ctx context.Context, b []byte) error {
	var cmd RefreshCommand
	if len(b) > 0 {
		if err := json.Unmarshal(b, &cmd); err != nil {
			h.metrics.RecordError("refresh_unmarshal")
			return err
		}
	}
	if !cmd.RequestedAt.IsZero() {
		h.metrics.RecordLatency("refresh_command_lag", time.Since(cmd.RequestedAt).Seconds())
	}

	if !h.engine.Refresh(ctx) {
		h.logger.Info("refresh ignored, no tick observed yet", logger.String("reason", cmd.Reason))
		return nil
	}
	h.logger.Info("snapshot refreshed", logger.String("reason", cmd.Reason))
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaRefreshHandler)(nil)
