package repository

import (
	"context"
	"testing"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	"GoldPull/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAlarmsTriggerIsTerminal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryAlarms(
		models.Alarm{ID: "a1", ProductCode: "USDTRY", IsActive: true},
		models.Alarm{ID: "a2", ProductCode: "ALTIN", IsActive: false},
	)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	ok, err := repo.MarkTriggered(ctx, "a1", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkTriggered(ctx, "a1", time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "second trigger must be refused")

	active, err = repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	a, _ := repo.Get("a1")
	assert.True(t, a.IsTriggered)
	assert.NotNil(t, a.TriggeredAt)
}

func TestMemoryCatalogVisibleDerivedOrdered(t *testing.T) {
	c := NewMemoryCatalog()
	c.SetDerived(
		models.DerivedDefinition{Code: "B", Order: 2, Visible: true},
		models.DerivedDefinition{Code: "HIDDEN", Order: 0, Visible: false},
		models.DerivedDefinition{Code: "A", Order: 1, Visible: true},
	)
	defs, err := c.ListVisibleDerived(context.Background())
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "A", defs[0].Code)
	assert.Equal(t, "B", defs[1].Code)
}

func TestMemoryHistoryRetentionAndQuery(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	h := NewMemoryHistory(30 * 24 * time.Hour)
	h.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, []models.HistoryRecord{
		{Code: "USDTRY", RawSell: 30, Timestamp: now.Add(-31 * 24 * time.Hour)},
		{Code: "USDTRY", RawSell: 34, Timestamp: now.Add(-time.Hour)},
		{Code: "EURTRY", RawSell: 36, Timestamp: now.Add(-time.Hour)},
		{Code: "USDTRY", RawSell: 35, Timestamp: now},
	}))

	assert.Len(t, h.All(), 3)

	got, err := h.Query(ctx, "USDTRY", now.Add(-48*time.Hour), now, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 35.0, got[0].RawSell, "newest first")

	got, err = h.Query(ctx, "USDTRY", now.Add(-48*time.Hour), now, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestCacheProjectionStoreUpdate(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	store := NewCacheProjectionStore(mc, nil, 0)
	ctx := context.Background()

	_, err := store.Get(ctx, models.ProjectionSource)
	assert.ErrorIs(t, err, drepo.ErrNotFound)

	var sawPrev []bool
	update := func(code string) {
		require.NoError(t, store.Update(ctx, models.ProjectionSource, func(prev *models.CacheProjection) models.CacheProjection {
			sawPrev = append(sawPrev, prev != nil)
			next := models.CacheProjection{}
			if prev != nil {
				next.Entries = prev.Entries
			}
			next.Entries = append(next.Entries, models.Quote{Code: code})
			return next
		}))
	}
	update("A")
	update("B")

	p, err := store.Get(ctx, models.ProjectionSource)
	require.NoError(t, err)
	assert.Equal(t, models.ProjectionSource, p.Key)
	require.Len(t, p.Entries, 2)
	assert.Equal(t, []bool{false, true}, sawPrev)
}

func TestCatalogRowMapping(t *testing.T) {
	c, err := coefficientRow{Code: "USDTRY", Side: "satis", Multiplier: 1, Addition: 0.05, Visible: true, SortOrder: 3}.toModel()
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, c.Side)
	assert.Equal(t, 3, c.Order)

	_, err = coefficientRow{Code: "X", Side: "mid"}.toModel()
	assert.Error(t, err)

	d, err := derivedRow{
		Code: "VIP_USD", BuySourceCode: "USDTRY", BuySourceSide: "buy", BuyMultiplier: 0.99,
		SellSourceCode: "USDTRY", SellSourceSide: "sell", SellMultiplier: 1.01, Visible: true,
	}.toModel()
	require.NoError(t, err)
	assert.Equal(t, models.SideBuy, d.BuyLeg.SourceSide)
	assert.Equal(t, 1.01, d.SellLeg.Multiplier)
}
