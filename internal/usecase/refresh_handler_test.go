package usecase

import (
	"context"
	"testing"

	"GoldPull/pkg/logger"
	"GoldPull/pkg/metrics"

	"github.com/stretchr/testify/assert"
)

type countingRefresher struct {
	calls  int
	result bool
}

func (r *countingRefresher) Refresh(context.Context) bool {
	r.calls++
	return r.result
}

func TestKafkaRefreshHandler(t *testing.T) {
	r := &countingRefresher{result: true}
	h := NewKafkaRefreshHandler("prices.refresh", r, metrics.Nop{}, logger.Nop())
	ctx := context.Background()

	assert.Equal(t, "prices.refresh", h.Topic())
	assert.NoError(t, h.Handle(ctx, nil))
	assert.NoError(t, h.Handle(ctx, []byte(`{"reason":"coefficient edit","requestedAt":"2026-10-16T09:00:00Z"}`)))
	assert.Error(t, h.Handle(ctx, []byte(`{`)))
	assert.Equal(t, 2, r.calls)

	r.result = false
	assert.NoError(t, h.Handle(ctx, []byte(`{}`)), "refresh before the first tick is not an error")
}
