package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"GoldPull/internal/domain/models"
	"GoldPull/internal/repository"
	"GoldPull/internal/service/cache"
	"GoldPull/internal/service/ratelimit"
	pkgcache "GoldPull/pkg/cache"
	"GoldPull/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	quotes    []models.Quote
	hasTick   bool
	refreshes int
}

func (f *fakeEngine) CurrentSnapshot() []models.Quote { return f.quotes }

func (f *fakeEngine) Lookup(code string) (models.Quote, bool) {
	for _, q := range f.quotes {
		if q.Code == code {
			return q, true
		}
	}
	return models.Quote{}, false
}

func (f *fakeEngine) Refresh(context.Context) bool {
	if !f.hasTick {
		return false
	}
	f.refreshes++
	return true
}

func (f *fakeEngine) LastUpdate() time.Time { return time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC) }
func (f *fakeEngine) HasTick() bool         { return f.hasTick }

type failingHistory struct{ *repository.MemoryHistory }

func (failingHistory) Query(context.Context, string, time.Time, time.Time, int) ([]models.HistoryRecord, error) {
	return nil, errors.New("clickhouse unreachable")
}

type feedUp bool

func (f feedUp) IsConnected() bool { return bool(f) }

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type apiFixture struct {
	e           *echo.Echo
	engine      *fakeEngine
	history     *repository.MemoryHistory
	projections *repository.CacheProjectionStore
	handler     *PricesHandler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mc := pkgcache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })

	f := &apiFixture{
		e: echo.New(),
		engine: &fakeEngine{hasTick: true, quotes: []models.Quote{
			{Code: "USDTRY", CalculatedBuy: 34.4, CalculatedSell: 34.55},
			{Code: "BROKEN", CalculatedBuy: 0, CalculatedSell: 1},
		}},
		history:     repository.NewMemoryHistory(0),
		projections: repository.NewCacheProjectionStore(mc, nil, 0),
	}
	f.handler = NewPricesHandler(logger.Nop(), f.engine, feedUp(true), f.projections, f.history, ratelimit.New(1, 2), cache.NewTTLCache(16))
	f.handler.now = func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }
	f.handler.RegisterRoutes(f.e)
	return f
}

func (f *apiFixture) do(t *testing.T, method, target string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestSnapshotFiltersInvalid(t *testing.T) {
	f := newAPIFixture(t)
	code, env := f.do(t, http.MethodGet, "/api/prices")
	require.Equal(t, http.StatusOK, code)

	var snap models.SnapshotEvent
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Len(t, snap.Prices, 1)
	assert.Equal(t, "USDTRY", snap.Prices[0].Code)
}

func TestQuoteLookup(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/prices/usdtry")
	require.Equal(t, http.StatusOK, code)
	var q models.Quote
	require.NoError(t, json.Unmarshal(env.Data, &q))
	assert.Equal(t, 34.55, q.CalculatedSell)

	code, _ = f.do(t, http.MethodGet, "/api/prices/BROKEN")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRefreshEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	code, _ := f.do(t, http.MethodPost, "/api/prices/refresh")
	assert.Equal(t, http.StatusAccepted, code)
	code, _ = f.do(t, http.MethodPost, "/api/prices/refresh")
	assert.Equal(t, http.StatusAccepted, code)
	code, _ = f.do(t, http.MethodPost, "/api/prices/refresh")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, 2, f.engine.refreshes)
}

func TestRefreshWithoutTickConflicts(t *testing.T) {
	f := newAPIFixture(t)
	f.engine.hasTick = false

	code, _ := f.do(t, http.MethodPost, "/api/prices/refresh")
	assert.Equal(t, http.StatusConflict, code)
}

func TestProjectionEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	code, _ := f.do(t, http.MethodGet, "/api/cache/bogus")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/cache/all")
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, f.projections.Put(context.Background(), models.CacheProjection{
		Key:     models.ProjectionAll,
		Entries: []models.Quote{{Code: "USDTRY"}},
		Meta:    models.ProjectionMeta{Count: 1, Source: "feed"},
	}))
	code, env := f.do(t, http.MethodGet, "/api/cache/all")
	require.Equal(t, http.StatusOK, code)
	var p models.CacheProjection
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, 1, p.Meta.Count)
}

func TestHistoryEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	base := time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC)
	require.NoError(t, f.history.Append(context.Background(), []models.HistoryRecord{
		{Code: "USDTRY", RawSell: 34.5, Timestamp: base},
		{Code: "USDTRY", RawSell: 34.6, Timestamp: base.Add(time.Minute)},
		{Code: "EURTRY", RawSell: 37.1, Timestamp: base},
	}))

	code, env := f.do(t, http.MethodGet, "/api/history?code=usdtry&limit=10")
	require.Equal(t, http.StatusOK, code)
	var records []models.HistoryRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, 34.6, records[0].RawSell, "newest first")

	// Served from the response cache even after the store changes.
	require.NoError(t, f.history.Append(context.Background(), []models.HistoryRecord{
		{Code: "USDTRY", RawSell: 34.7, Timestamp: base.Add(2 * time.Minute)},
	}))
	code, env = f.do(t, http.MethodGet, "/api/history?code=usdtry&limit=10")
	assert.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &records))
	assert.Len(t, records, 2)
}

func TestHistoryStoreFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.handler.cache = nil
	f.handler.history = failingHistory{repository.NewMemoryHistory(0)}

	code, _ := f.do(t, http.MethodGet, "/api/history?code=USDTRY")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHistoryValidation(t *testing.T) {
	f := newAPIFixture(t)

	code, env := f.do(t, http.MethodGet, "/api/history")
	require.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, string(env.Data), "code is required")

	code, _ = f.do(t, http.MethodGet, "/api/history?code=USDTRY&limit=100000")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = f.do(t, http.MethodGet, "/api/history?code=USDTRY&from=2026-10-16T12:00:00Z&to=2026-10-16T10:00:00Z")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t)
	code, env := f.do(t, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, code)

	var h HealthResponse
	require.NoError(t, json.Unmarshal(env.Data, &h))
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.FeedConnected)
	assert.Equal(t, 2, h.Quotes)
}
