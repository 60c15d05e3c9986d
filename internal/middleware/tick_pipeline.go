package middleware

import (
	"context"
	"errors"
	"sync"
	"time"

	"GoldPull/internal/domain/models"
	domrepo "GoldPull/internal/domain/repository"
	"GoldPull/pkg/logger"
)

// ErrEmptyTick is returned for payloads that carry no recognizable instrument.
var ErrEmptyTick = errors.New("payload has no instruments")

// Sink is the minimal engine interface the pipeline needs.
type Sink interface {
	Ingest(ctx context.Context, tick models.CanonicalTick) []models.Quote
}

// Normalizer turns a raw feed payload into a canonical tick.
type Normalizer interface {
	Normalize(payload []byte) models.CanonicalTick
}

// TickPipeline sits between the feed and the engine. It normalizes payloads,
// drops unusable ones, optionally throttles and forwards the rest in order.
type TickPipeline struct {
	normalizer  Normalizer
	sink        Sink
	metrics     domrepo.Metrics
	logger      *logger.Logger
	minInterval time.Duration
	transform   func(models.CanonicalTick) models.CanonicalTick
	now         func() time.Time

	mu           sync.Mutex
	lastAccepted time.Time
}

type PipelineOption func(*TickPipeline)

// WithMinInterval drops ticks that arrive sooner than d after the previously
// accepted one. Zero forwards every tick.
func WithMinInterval(d time.Duration) PipelineOption {
	return func(p *TickPipeline) {
		if d > 0 {
			p.minInterval = d
		}
	}
}

// WithTransform sets a hook that may rewrite a tick before it reaches the sink.
func WithTransform(fn func(models.CanonicalTick) models.CanonicalTick) PipelineOption {
	return func(p *TickPipeline) { p.transform = fn }
}

func withClock(now func() time.Time) PipelineOption {
	return func(p *TickPipeline) { p.now = now }
}

func NewTickPipeline(n Normalizer, sink Sink, metrics domrepo.Metrics, l *logger.Logger, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		normalizer: n,
		sink:       sink,
		metrics:    metrics,
		logger:     l.With("pipeline"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process handles one payload. Malformed payloads are dropped with
// ErrEmptyTick; throttled ones are dropped silently.
func (p *TickPipeline) Process(ctx context.Context, payload []byte) error {
	start := time.Now()

	tick := p.normalizer.Normalize(payload)
	if p.transform != nil && len(tick) > 0 {
		tick = p.transform(tick)
	}
	if len(tick) == 0 {
		p.metrics.RecordError("pipeline_empty")
		p.logger.Debug("dropping payload without instruments", logger.Int("bytes", len(payload)))
		return ErrEmptyTick
	}

	if !p.allow(p.now()) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	p.sink.Ingest(ctx, tick)
	p.metrics.RecordLatency("pipeline_process", time.Since(start).Seconds())
	return nil
}

func (p *TickPipeline) allow(now time.Time) bool {
	if p.minInterval <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.lastAccepted.IsZero() && now.Sub(p.lastAccepted) < p.minInterval {
		return false
	}
	p.lastAccepted = now
	return true
}
