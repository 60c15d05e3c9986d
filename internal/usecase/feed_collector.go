package usecase

import (
	"context"
	"errors"

	drepo "GoldPull/internal/domain/repository"
	mid "GoldPull/internal/middleware"
	"GoldPull/internal/service/feed"
	"GoldPull/pkg/logger"
)

// FeedCollector reads payloads from the upstream feed and pushes them through
// the tick pipeline one at a time, reconnecting when the stream fails.
type FeedCollector struct {
	stream  drepo.FeedStream
	pipe    *mid.TickPipeline
	metrics drepo.Metrics
	logger  *logger.Logger
}

func NewFeedCollector(stream drepo.FeedStream, pipe *mid.TickPipeline, metrics drepo.Metrics, l *logger.Logger) *FeedCollector {
	return &FeedCollector{stream: stream, pipe: pipe, metrics: metrics, logger: l.With("feed_collector")}
}

// IsConnected returns true if the feed stream is connected.
func (c *FeedCollector) IsConnected() bool { return c.stream.IsConnected() }

// Run blocks until ctx ends or reconnect retries are exhausted. Losing the
// feed never fails the process; the last snapshot keeps being served.
func (c *FeedCollector) Run(ctx context.Context) error {
	if err := c.connect(ctx); err != nil {
		c.metrics.RecordError("feed_connect")
		c.logger.Warn("initial feed connect failed", logger.Error(err))
		if !c.reconnect(ctx) {
			return nil
		}
	}

	for {
		payloads, errs := c.stream.Read(ctx)
		c.consume(ctx, payloads)

		err := <-errs
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.metrics.RecordError("feed_stream")
			c.logger.Warn("feed stream interrupted", logger.Error(err))
		}
		if !c.reconnect(ctx) {
			return nil
		}
	}
}

func (c *FeedCollector) connect(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	c.logger.Info("feed connected")
	return nil
}

// reconnect reports whether the stream is usable again.
func (c *FeedCollector) reconnect(ctx context.Context) bool {
	err := c.stream.Reconnect(ctx)
	switch {
	case err == nil:
		c.logger.Info("feed reconnected")
		return true
	case errors.Is(err, feed.ErrRetriesExhausted):
		c.metrics.RecordError("feed_retries_exhausted")
		c.logger.Error("feed retries exhausted, serving last snapshot", logger.Error(err))
	case ctx.Err() != nil:
	default:
		c.metrics.RecordError("feed_reconnect")
		c.logger.Error("feed reconnect failed", logger.Error(err))
	}
	return false
}

// consume processes payloads until the channel closes.
func (c *FeedCollector) consume(ctx context.Context, payloads <-chan []byte) {
	for p := range payloads {
		if err := c.pipe.Process(ctx, p); err != nil {
			c.logger.Warn("payload dropped", logger.Error(err), logger.Int("bytes", len(p)))
		}
	}
}

// Shutdown closes the stream.
func (c *FeedCollector) Shutdown(context.Context) error { return c.stream.Close() }
