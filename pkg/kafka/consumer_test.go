package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"GoldPull/pkg/logger"

	kgo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingHandler struct {
	failures int
	calls    int
}

func (h *countingHandler) Topic() string { return "prices.refresh" }

func (h *countingHandler) Handle(context.Context, []byte) error {
	h.calls++
	if h.calls <= h.failures {
		return errors.New("boom")
	}
	return nil
}

type panicHandler struct{}

func (panicHandler) Topic() string                        { return "t" }
func (panicHandler) Handle(context.Context, []byte) error { panic("bad payload") }

func newTestConsumer(t *testing.T, retries int) *Consumer {
	c, err := NewConsumer(logger.Nop(),
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(retries, time.Millisecond, 2*time.Millisecond),
	)
	require.NoError(t, err)
	return c
}

func TestHandleRetriesUntilSuccess(t *testing.T) {
	c := newTestConsumer(t, 3)
	h := &countingHandler{failures: 2}

	require.NoError(t, c.handle(context.Background(), h, kafkaMessage("x")))
	assert.Equal(t, 3, h.calls)
}

func TestHandleGivesUpAfterRetryMax(t *testing.T) {
	c := newTestConsumer(t, 1)
	h := &countingHandler{failures: 10}

	assert.Error(t, c.handle(context.Background(), h, kafkaMessage("x")))
	assert.Equal(t, 2, h.calls)
}

func TestHandleRecoversPanics(t *testing.T) {
	c := newTestConsumer(t, 0)
	err := c.handle(context.Background(), panicHandler{}, kafkaMessage("x"))
	assert.ErrorContains(t, err, "handler panic")
}

func TestRegisterHandlerKeepsFirst(t *testing.T) {
	c := newTestConsumer(t, 0)
	first := &countingHandler{}
	c.RegisterHandler(first)
	c.RegisterHandler(&countingHandler{failures: 1})
	assert.Same(t, first, c.handlers["prices.refresh"])
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer(logger.Nop())
	assert.Error(t, err)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(10*time.Millisecond, time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, time.Second)
	}
}

func kafkaMessage(v string) kgo.Message { return kgo.Message{Value: []byte(v)} }
