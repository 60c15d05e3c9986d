package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"GoldPull/internal/domain/models"
	domrepo "GoldPull/internal/domain/repository"
	"GoldPull/internal/service/cache"
	apimetrics "GoldPull/internal/service/metrics"
	"GoldPull/internal/service/ratelimit"
	xhttp "GoldPull/pkg/http"
	xlogger "GoldPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PriceEngine is the part of the engine the HTTP layer reads and triggers.
type PriceEngine interface {
	CurrentSnapshot() []models.Quote
	Lookup(code string) (models.Quote, bool)
	Refresh(ctx context.Context) bool
	LastUpdate() time.Time
	HasTick() bool
}

// FeedStatus reports upstream connectivity.
type FeedStatus interface {
	IsConnected() bool
}

// HistoryRequest is the query of GET /api/history.
type HistoryRequest struct {
	Code  string `query:"code" validate:"required,max=32,printascii"`
	From  string `query:"from"`
	To    string `query:"to"`
	Limit int    `query:"limit" default:"500" validate:"gte=1,lte=5000"`
}

type HealthResponse struct {
	Status        string    `json:"status"`
	FeedConnected bool      `json:"feedConnected"`
	HasTick       bool      `json:"hasTick"`
	Quotes        int       `json:"quotes"`
	LastUpdate    time.Time `json:"lastUpdate"`
	History       string    `json:"history"`
}

// PricesHandler serves snapshot, projection, history, refresh and health
// endpoints.
type PricesHandler struct {
	logger      *xlogger.Logger
	engine      PriceEngine
	feed        FeedStatus
	projections domrepo.ProjectionStore
	history     domrepo.HistoryStore
	limiter     *ratelimit.Limiter
	cache       cache.BytesCache
	historyTTL  time.Duration
	now         func() time.Time
}

func NewPricesHandler(
	logger *xlogger.Logger,
	engine PriceEngine,
	feed FeedStatus,
	projections domrepo.ProjectionStore,
	history domrepo.HistoryStore,
	limiter *ratelimit.Limiter,
	responses cache.BytesCache,
) *PricesHandler {
	apimetrics.Register()
	return &PricesHandler{
		logger:      logger.With("api"),
		engine:      engine,
		feed:        feed,
		projections: projections,
		history:     history,
		limiter:     limiter,
		cache:       responses,
		historyTTL:  15 * time.Second,
		now:         time.Now,
	}
}

func (h *PricesHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api")
	g.GET("/prices", h.Snapshot)
	g.POST("/prices/refresh", h.Refresh)
	g.GET("/prices/:code", h.Quote)
	g.GET("/cache/:key", h.Projection)
	g.GET("/history", h.History)
}

func observe(endpoint string, start time.Time) {
	apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

func (h *PricesHandler) Snapshot(c echo.Context) error {
	defer observe("snapshot", time.Now())
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, models.SnapshotEvent{
		Meta:   models.SnapshotMeta{Time: h.engine.LastUpdate()},
		Prices: models.FilterValid(h.engine.CurrentSnapshot()),
	})
}

func (h *PricesHandler) Quote(c echo.Context) error {
	defer observe("quote", time.Now())
	code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
	q, ok := h.engine.Lookup(code)
	if !ok || !q.Valid() {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no price for %s", code))
	}
	return xhttp.SuccessResponse(c, q)
}

func (h *PricesHandler) Refresh(c echo.Context) error {
	defer observe("refresh", time.Now())
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()) {
		apimetrics.APIErrors.WithLabelValues("refresh_rate_limited").Inc()
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("refresh rate limit exceeded"))
	}
	if !h.engine.Refresh(c.Request().Context()) {
		return xhttp.AppErrorResponse(c, xhttp.ConflictError("no upstream tick observed yet"))
	}
	h.logger.Info("snapshot refreshed over http", xlogger.String("remote_ip", c.RealIP()))
	return xhttp.AcceptedResponse(c, map[string]interface{}{
		"refreshed": true,
		"quotes":    len(h.engine.CurrentSnapshot()),
	})
}

func (h *PricesHandler) Projection(c echo.Context) error {
	defer observe("projection", time.Now())
	key := c.Param("key")
	switch key {
	case models.ProjectionCurrent, models.ProjectionAll, models.ProjectionSource:
	default:
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown projection %q", key))
	}

	p, err := h.projections.Get(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, domrepo.ErrNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("projection %s not written yet", key))
		}
		apimetrics.APIErrors.WithLabelValues("projection").Inc()
		h.logger.Error("projection read failed", xlogger.String("key", key), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("projection store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *PricesHandler) History(c echo.Context) error {
	defer observe("history", time.Now())
	req := &HistoryRequest{}
	if verr := xhttp.BindAndValidate(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	now := h.now().UTC()
	to := xhttp.ParseTimeDefault(req.To, now)
	from := xhttp.ParseTimeDefault(req.From, to.Add(-24*time.Hour))
	if !from.Before(to) {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("from must be before to"))
	}
	code := strings.ToUpper(req.Code)

	key := fmt.Sprintf("%s|%d|%d|%d", code, from.Unix(), to.Unix(), req.Limit)
	if h.cache != nil {
		if b, ok := h.cache.GetBytes(key); ok {
			apimetrics.HistoryCacheHits.WithLabelValues("hit").Inc()
			return xhttp.SuccessResponse(c, json.RawMessage(b))
		}
		apimetrics.HistoryCacheHits.WithLabelValues("miss").Inc()
	}

	records, err := h.history.Query(c.Request().Context(), code, from, to, req.Limit)
	if err != nil {
		apimetrics.APIErrors.WithLabelValues("history").Inc()
		h.logger.Error("history query failed", xlogger.String("code", code), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableError("history store unavailable").WithError(err))
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}

	b, err := json.Marshal(records)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("encode history: %v", err))
	}
	if h.cache != nil {
		h.cache.SetBytes(key, b, h.historyTTL)
	}
	return xhttp.SuccessResponse(c, json.RawMessage(b))
}

func (h *PricesHandler) Health(c echo.Context) error {
	res := HealthResponse{
		Status:        "ok",
		FeedConnected: h.feed.IsConnected(),
		HasTick:       h.engine.HasTick(),
		Quotes:        len(h.engine.CurrentSnapshot()),
		LastUpdate:    h.engine.LastUpdate(),
		History:       "ok",
	}
	if err := h.history.Health(c.Request().Context()); err != nil {
		res.History = err.Error()
		res.Status = "degraded"
	}
	if !res.FeedConnected {
		res.Status = "degraded"
	}

	status := http.StatusOK
	if res.Quotes == 0 && !res.FeedConnected {
		status = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, status, res)
}
