package usecase

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	"GoldPull/internal/repository"
	"GoldPull/internal/service/pricing"
	"GoldPull/pkg/cache"
	"GoldPull/pkg/logger"
	"GoldPull/pkg/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine      *PriceEngine
	catalog     *repository.MemoryCatalog
	broadcaster *recordingBroadcaster
	events      *recordingEvents
	history     *repository.MemoryHistory
	projections *repository.CacheProjectionStore
	cancel      context.CancelFunc
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	l := logger.Nop()
	m := metrics.Nop{}

	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	f := &engineFixture{
		catalog:     repository.NewMemoryCatalog(),
		broadcaster: &recordingBroadcaster{},
		events:      &recordingEvents{},
		history:     repository.NewMemoryHistory(0),
		projections: repository.NewCacheProjectionStore(mc, nil, 0),
	}
	f.engine = NewPriceEngine(
		pricing.NewCoefficientResolver(f.catalog, m, l),
		pricing.NewDerivedCalculator(f.catalog, m, l),
		f.broadcaster,
		f.projections,
		f.history,
		f.events,
		m,
		l,
		WithPersistQueue(16),
		WithPersistTimeout(time.Second),
	)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.engine.Start(ctx)
	t.Cleanup(func() {
		cancel()
		<-f.engine.Done()
	})
	return f
}

// drain waits for every queued persistence job to finish.
func (f *engineFixture) drain(t *testing.T) {
	t.Helper()
	f.cancel()
	select {
	case <-f.engine.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("persistence worker did not stop")
	}
}

func (f *engineFixture) projection(t *testing.T, key string) *models.CacheProjection {
	t.Helper()
	p, err := f.projections.Get(context.Background(), key)
	require.NoError(t, err)
	return p
}

func codes(quotes []models.Quote) []string {
	out := make([]string, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, q.Code)
	}
	return out
}

func TestIngestAppliesCoefficientsAndDerived(t *testing.T) {
	f := newEngineFixture(t)
	f.catalog.SetCoefficients(
		models.Coefficient{Code: "USDTRY", Side: models.SideBuy, Multiplier: 1, Addition: 0.05, Name: "Dolar", Visible: true, Order: 2},
		models.Coefficient{Code: "USDTRY", Side: models.SideSell, Multiplier: 1, Addition: 0.05, Visible: true, Order: 2},
	)
	f.catalog.SetDerived(models.DerivedDefinition{
		Code:    "VIP_USD",
		Name:    "VIP Dolar",
		BuyLeg:  models.Leg{SourceCode: "USDTRY", SourceSide: models.SideBuy, Multiplier: 0.99},
		SellLeg: models.Leg{SourceCode: "USDTRY", SourceSide: models.SideSell, Multiplier: 1.01},
		Order:   1,
		Visible: true,
	})

	snap := f.engine.Ingest(context.Background(), tickOf(nq("USDTRY", 34.40, 34.50), nq("EURTRY", 37.1, 37.3)))

	require.Equal(t, []string{"VIP_USD", "USDTRY", "EURTRY"}, codes(snap))

	vip := snap[0]
	assert.True(t, vip.IsDerived)
	assert.Equal(t, 34.845, vip.CalculatedSell)
	assert.Equal(t, 34.056, vip.CalculatedBuy)

	usd, ok := f.engine.Lookup("USDTRY")
	require.True(t, ok)
	assert.Equal(t, "Dolar", usd.Name)
	assert.Equal(t, 34.55, usd.CalculatedSell)
	assert.Equal(t, 34.50, usd.RawSell)

	eur, _ := f.engine.Lookup("EURTRY")
	assert.Equal(t, models.DefaultOrder, eur.Order)
	assert.Equal(t, 37.3, eur.CalculatedSell)

	require.Len(t, f.broadcaster.Snapshots(), 1)
	assert.True(t, f.engine.HasTick())
}

func TestCoefficientOutagePassesRawThrough(t *testing.T) {
	f := newEngineFixture(t)
	f.catalog.SetCoefficients(models.Coefficient{Code: "USDTRY", Side: models.SideSell, Multiplier: 2})
	f.catalog.SetErr(errors.New("db down"))

	snap := f.engine.Ingest(context.Background(), tickOf(nq("USDTRY", 34.4, 34.5)))

	require.Len(t, snap, 1)
	assert.Equal(t, 34.5, snap[0].CalculatedSell)
}

func TestRefreshWithoutTick(t *testing.T) {
	f := newEngineFixture(t)

	assert.False(t, f.engine.Refresh(context.Background()))
	assert.Empty(t, f.broadcaster.Snapshots())
	assert.Empty(t, f.engine.CurrentSnapshot())
}

func TestRefreshRecomputesWithNewCoefficients(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.engine.Ingest(ctx, tickOf(nq("USDTRY", 34.4, 34.5)))

	f.catalog.SetCoefficients(models.Coefficient{Code: "USDTRY", Side: models.SideSell, Multiplier: 1, Addition: 0.05})
	require.True(t, f.engine.Refresh(ctx))

	q, ok := f.engine.Lookup("USDTRY")
	require.True(t, ok)
	assert.Equal(t, 34.55, q.CalculatedSell)
	assert.Len(t, f.broadcaster.Snapshots(), 2)
}

func TestDerivedAbsentWhenLegMissing(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.catalog.SetDerived(models.DerivedDefinition{
		Code:    "CAPRAZ",
		BuyLeg:  models.Leg{SourceCode: "EURUSD", SourceSide: models.SideBuy, Multiplier: 1},
		SellLeg: models.Leg{SourceCode: "EURUSD", SourceSide: models.SideSell, Multiplier: 1},
		Visible: true,
	})

	f.engine.Ingest(ctx, tickOf(nq("EURUSD", 1.08, 1.09)))
	_, ok := f.engine.Lookup("CAPRAZ")
	assert.True(t, ok)

	f.engine.Ingest(ctx, tickOf(nq("USDTRY", 34.4, 34.5)))
	_, ok = f.engine.Lookup("CAPRAZ")
	assert.False(t, ok, "derived quote depends only on the current tick")
}

func TestApplyTickDerivedOverridesRaw(t *testing.T) {
	f := newEngineFixture(t)

	out := f.engine.ApplyTick(
		[]models.Quote{{Code: "B", Order: 5}, {Code: "GRAM", Order: 1, CalculatedSell: 1}},
		[]models.Quote{{Code: "GRAM", Order: 3, CalculatedSell: 2, IsDerived: true}},
	)

	require.Equal(t, []string{"GRAM", "B"}, codes(out))
	assert.True(t, out[0].IsDerived)
	assert.Equal(t, 2.0, out[0].CalculatedSell)
}

func TestProjectionsSkipInvalidAndMergeSource(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.catalog.SetDerived(models.DerivedDefinition{
		Code:    "VIP_A",
		BuyLeg:  models.Leg{SourceCode: "A", SourceSide: models.SideBuy, Multiplier: 1},
		SellLeg: models.Leg{SourceCode: "A", SourceSide: models.SideSell, Multiplier: 1},
		Visible: true,
	})

	f.engine.Ingest(ctx, tickOf(nq("A", 1, 2), nq("B", 3, 4), nq("BAD", 0, math.Inf(1))))
	f.engine.Ingest(ctx, tickOf(nq("B", 3, 5), nq("C", 6, 7)))
	f.drain(t)

	source := f.projection(t, models.ProjectionSource)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, codes(source.Entries))
	for _, q := range source.Entries {
		assert.False(t, q.IsDerived)
		if q.Code == "B" {
			assert.Equal(t, 5.0, q.RawSell, "source keeps the newest value")
		}
	}

	all := f.projection(t, models.ProjectionAll)
	assert.ElementsMatch(t, []string{"B", "C"}, codes(all.Entries))
	assert.Equal(t, 2, all.Meta.Count)

	// The second tick has no A, so VIP_A is gone and current is empty.
	current := f.projection(t, models.ProjectionCurrent)
	assert.Empty(t, current.Entries)
}

func TestCurrentProjectionHoldsVisibleDerivedOnly(t *testing.T) {
	f := newEngineFixture(t)
	f.catalog.SetDerived(
		models.DerivedDefinition{
			Code:    "VIP_A",
			BuyLeg:  models.Leg{SourceCode: "A", SourceSide: models.SideBuy, Multiplier: 1},
			SellLeg: models.Leg{SourceCode: "A", SourceSide: models.SideSell, Multiplier: 1},
			Visible: true,
		},
		models.DerivedDefinition{
			Code:    "HIDDEN",
			BuyLeg:  models.Leg{SourceCode: "A", SourceSide: models.SideBuy, Multiplier: 1},
			SellLeg: models.Leg{SourceCode: "A", SourceSide: models.SideSell, Multiplier: 1},
			Visible: false,
		},
	)

	f.engine.Ingest(context.Background(), tickOf(nq("A", 1, 2)))
	f.drain(t)

	current := f.projection(t, models.ProjectionCurrent)
	assert.Equal(t, []string{"VIP_A"}, codes(current.Entries))
}

func TestInvalidQuotesAreNotProjected(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.Ingest(context.Background(), tickOf(nq("ZERO", 0, 0), nq("OK", 1, 1)))
	f.drain(t)

	all := f.projection(t, models.ProjectionAll)
	assert.Equal(t, []string{"OK"}, codes(all.Entries))
	var recorded []string
	for _, r := range f.history.All() {
		recorded = append(recorded, r.Code)
	}
	assert.ElementsMatch(t, []string{"OK", "ZERO"}, recorded)
}

func TestHistoryRecordsMoveToInvalidPrice(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.Ingest(ctx, tickOf(nq("A", 10, 11)))
	f.engine.Ingest(ctx, tickOf(nq("A", 0, 11)))
	f.engine.Ingest(ctx, tickOf(nq("A", 10, 11)))
	f.drain(t)

	records := f.history.All()
	require.Len(t, records, 3)
	buys := make([]float64, 0, len(records))
	for _, r := range records {
		buys = append(buys, r.RawBuy)
	}
	assert.Equal(t, []float64{10, 0, 10}, buys)
}

func TestHistoryRecordsOnlyChanges(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.Ingest(ctx, tickOf(nq("A", 1, 2), nq("B", 3, 4)))
	f.engine.Ingest(ctx, tickOf(nq("A", 1, 2), nq("B", 3, 4)))
	f.engine.Ingest(ctx, tickOf(nq("A", 1, 2.5), nq("B", 3, 4)))
	f.drain(t)

	records := f.history.All()
	require.Len(t, records, 3)
	assert.Equal(t, "A", records[2].Code)
	assert.Equal(t, 2.5, records[2].RawSell)
}

func TestHistoryFailureIsSwallowed(t *testing.T) {
	f := newEngineFixture(t)
	f.history.AppendErr = errors.New("clickhouse down")

	f.engine.Ingest(context.Background(), tickOf(nq("A", 1, 2)))
	f.drain(t)

	all := f.projection(t, models.ProjectionAll)
	assert.Len(t, all.Entries, 1)
}

func TestResetAndWarmStart(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.Ingest(ctx, tickOf(nq("A", 1, 2), nq("B", 3, 4)))
	f.drain(t)

	f.engine.Reset()
	assert.Empty(t, f.engine.CurrentSnapshot())
	assert.False(t, f.engine.HasTick())
	assert.False(t, f.engine.Refresh(ctx))

	require.NoError(t, f.engine.WarmStart(ctx))
	assert.ElementsMatch(t, []string{"A", "B"}, codes(f.engine.CurrentSnapshot()))
	assert.False(t, f.engine.HasTick(), "warm start is not a tick")
}

func TestWarmStartWithEmptyCache(t *testing.T) {
	f := newEngineFixture(t)
	require.NoError(t, f.engine.WarmStart(context.Background()))
	assert.Empty(t, f.engine.CurrentSnapshot())

	_, err := f.projections.Get(context.Background(), models.ProjectionAll)
	assert.ErrorIs(t, err, drepo.ErrNotFound)
}
