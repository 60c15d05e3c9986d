package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
	"GoldPull/internal/service/pricing"
	"GoldPull/pkg/logger"
)

// snapshotState is an immutable published snapshot.
type snapshotState struct {
	quotes []models.Quote
	byCode map[string]int
	at     time.Time
}

func newSnapshotState(quotes []models.Quote, at time.Time) *snapshotState {
	s := &snapshotState{quotes: quotes, byCode: make(map[string]int, len(quotes)), at: at}
	for i, q := range quotes {
		s.byCode[q.Code] = i
	}
	return s
}

type persistJob struct {
	at      time.Time
	source  string
	current []models.Quote
	all     []models.Quote
	raw     []models.Quote
	history []models.HistoryRecord
}

type rawPair struct{ buy, sell float64 }

// PriceEngine owns the live snapshot. Each tick is computed and broadcast
// synchronously (phase one); cache, history and event writes happen later on a
// single background worker (phase two) so they never delay clients.
type PriceEngine struct {
	coeffs      *pricing.CoefficientResolver
	derived     *pricing.DerivedCalculator
	broadcaster drepo.Broadcaster
	projections drepo.ProjectionStore
	history     drepo.HistoryStore
	events      drepo.EventPublisher
	metrics     drepo.Metrics
	logger      *logger.Logger
	now         func() time.Time

	// computeMu serializes Ingest and Refresh; it guards lastTick and prevRaw.
	computeMu sync.Mutex
	lastTick  models.CanonicalTick
	prevRaw   map[string]rawPair

	snapshot atomic.Pointer[snapshotState]

	persistCh      chan persistJob
	persistTimeout time.Duration
	startOnce      sync.Once
	done           chan struct{}
}

type EngineOption func(*PriceEngine)

// WithPersistQueue sets how many pending persistence jobs may queue up.
func WithPersistQueue(n int) EngineOption {
	return func(e *PriceEngine) {
		if n > 0 {
			e.persistCh = make(chan persistJob, n)
		}
	}
}

func WithPersistTimeout(d time.Duration) EngineOption {
	return func(e *PriceEngine) {
		if d > 0 {
			e.persistTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) EngineOption {
	return func(e *PriceEngine) { e.now = now }
}

func NewPriceEngine(
	coeffs *pricing.CoefficientResolver,
	derived *pricing.DerivedCalculator,
	broadcaster drepo.Broadcaster,
	projections drepo.ProjectionStore,
	history drepo.HistoryStore,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	l *logger.Logger,
	opts ...EngineOption,
) *PriceEngine {
	e := &PriceEngine{
		coeffs:         coeffs,
		derived:        derived,
		broadcaster:    broadcaster,
		projections:    projections,
		history:        history,
		events:         events,
		metrics:        metrics,
		logger:         l.With("engine"),
		now:            time.Now,
		persistCh:      make(chan persistJob, 64),
		persistTimeout: 10 * time.Second,
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.snapshot.Store(newSnapshotState(nil, time.Time{}))
	return e
}

// Start runs the persistence worker until ctx ends. Jobs still queued at that
// point are flushed before Done closes.
func (e *PriceEngine) Start(ctx context.Context) {
	e.startOnce.Do(func() {
		go e.persistLoop(ctx)
	})
}

// Done closes once the persistence worker has exited.
func (e *PriceEngine) Done() <-chan struct{} { return e.done }

// CurrentSnapshot returns a copy of the published snapshot, sorted by order.
func (e *PriceEngine) CurrentSnapshot() []models.Quote {
	s := e.snapshot.Load()
	return append([]models.Quote(nil), s.quotes...)
}

// Lookup returns the published quote for code.
func (e *PriceEngine) Lookup(code string) (models.Quote, bool) {
	s := e.snapshot.Load()
	i, ok := s.byCode[code]
	if !ok {
		return models.Quote{}, false
	}
	return s.quotes[i], true
}

// LastUpdate returns when the snapshot was last replaced.
func (e *PriceEngine) LastUpdate() time.Time { return e.snapshot.Load().at }

// HasTick reports whether a raw tick has been observed since start or Reset.
func (e *PriceEngine) HasTick() bool {
	e.computeMu.Lock()
	defer e.computeMu.Unlock()
	return e.lastTick != nil
}

// ApplyTick merges raw and derived quotes, sorts them by Order and atomically
// replaces the snapshot. A derived quote replaces a raw quote with the same code.
func (e *PriceEngine) ApplyTick(raw, derived []models.Quote) []models.Quote {
	rawSorted := append([]models.Quote(nil), raw...)
	sort.Slice(rawSorted, func(i, j int) bool { return rawSorted[i].Code < rawSorted[j].Code })

	overridden := make(map[string]struct{}, len(derived))
	for _, d := range derived {
		overridden[d.Code] = struct{}{}
	}

	merged := make([]models.Quote, 0, len(raw)+len(derived))
	for _, q := range rawSorted {
		if _, ok := overridden[q.Code]; !ok {
			merged = append(merged, q)
		}
	}
	merged = append(merged, derived...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Order < merged[j].Order })

	e.snapshot.Store(newSnapshotState(merged, e.now()))
	return append([]models.Quote(nil), merged...)
}

// Ingest makes tick the last raw tick and publishes a snapshot computed from it.
func (e *PriceEngine) Ingest(ctx context.Context, tick models.CanonicalTick) []models.Quote {
	if len(tick) == 0 {
		return nil
	}
	e.computeMu.Lock()
	defer e.computeMu.Unlock()

	e.lastTick = tick
	return e.computeLocked(ctx, tick, "feed")
}

// Refresh recomputes the snapshot from the last raw tick, e.g. after a
// coefficient change. It returns false and broadcasts nothing when no tick
// has been observed yet.
func (e *PriceEngine) Refresh(ctx context.Context) bool {
	e.computeMu.Lock()
	defer e.computeMu.Unlock()

	if e.lastTick == nil {
		return false
	}
	e.computeLocked(ctx, e.lastTick, "refresh")
	return true
}

// Reset drops the snapshot and the last tick.
func (e *PriceEngine) Reset() {
	e.computeMu.Lock()
	defer e.computeMu.Unlock()

	e.lastTick = nil
	e.prevRaw = nil
	e.snapshot.Store(newSnapshotState(nil, time.Time{}))
}

// WarmStart seeds an empty snapshot from the persisted "all" projection so
// readers and newly connected clients have prices before the first tick. It
// does not count as a tick.
func (e *PriceEngine) WarmStart(ctx context.Context) error {
	p, err := e.projections.Get(ctx, models.ProjectionAll)
	if err != nil {
		if errors.Is(err, drepo.ErrNotFound) {
			return nil
		}
		return err
	}

	e.computeMu.Lock()
	defer e.computeMu.Unlock()
	if len(e.snapshot.Load().quotes) > 0 {
		return nil
	}
	quotes := append([]models.Quote(nil), p.Entries...)
	sort.SliceStable(quotes, func(i, j int) bool { return quotes[i].Order < quotes[j].Order })
	e.snapshot.Store(newSnapshotState(quotes, p.UpdatedAt))
	e.broadcaster.Broadcast(quotes)
	e.logger.Info("snapshot warmed from cache", logger.Int("quotes", len(quotes)), logger.String("updated_at", p.UpdatedAt.Format(time.RFC3339)))
	return nil
}

func (e *PriceEngine) computeLocked(ctx context.Context, tick models.CanonicalTick, source string) []models.Quote {
	start := time.Now()

	coeffs := e.coeffs.Resolve(ctx)
	raw := pricing.RawQuotes(tick, coeffs)
	derived := pricing.Calculate(e.derived.Definitions(ctx), tick)
	snap := e.ApplyTick(raw, derived)
	at := e.now()

	e.broadcaster.Broadcast(snap)

	valid := models.FilterValid(snap)
	e.metrics.RecordTick(source, len(valid))
	for _, q := range valid {
		e.metrics.RecordLastPrice(q.Code, q.CalculatedSell)
	}
	e.metrics.RecordLatency("engine_compute", time.Since(start).Seconds())

	e.enqueue(persistJob{
		at:      at,
		source:  source,
		current: currentProjection(valid),
		all:     valid,
		raw:     rawProjection(valid),
		history: e.historyLocked(snap, at),
	})
	return snap
}

// historyLocked returns a record for each quote whose raw prices differ from
// the previous computation, and remembers the new raw prices. It sees the
// unfiltered snapshot: a move to an invalid price is still a change.
func (e *PriceEngine) historyLocked(quotes []models.Quote, at time.Time) []models.HistoryRecord {
	next := make(map[string]rawPair, len(quotes))
	var records []models.HistoryRecord
	for _, q := range quotes {
		cur := rawPair{q.RawBuy, q.RawSell}
		next[q.Code] = cur
		if prev, ok := e.prevRaw[q.Code]; ok && prev == cur {
			continue
		}
		records = append(records, models.HistoryRecord{
			Code:           q.Code,
			RawBuy:         q.RawBuy,
			RawSell:        q.RawSell,
			CalculatedBuy:  q.CalculatedBuy,
			CalculatedSell: q.CalculatedSell,
			Direction:      q.Direction,
			Timestamp:      at,
		})
	}
	e.prevRaw = next
	return records
}

func currentProjection(quotes []models.Quote) []models.Quote {
	out := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if q.IsDerived && q.Visible {
			out = append(out, q)
		}
	}
	return out
}

func rawProjection(quotes []models.Quote) []models.Quote {
	out := make([]models.Quote, 0, len(quotes))
	for _, q := range quotes {
		if !q.IsDerived {
			out = append(out, q)
		}
	}
	return out
}

func (e *PriceEngine) enqueue(job persistJob) {
	select {
	case e.persistCh <- job:
	default:
		e.metrics.RecordError("persist_queue_full")
		e.logger.Warn("persistence queue full, dropping job", logger.String("source", job.source))
	}
}

func (e *PriceEngine) persistLoop(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case job := <-e.persistCh:
			e.persist(job)
		case <-ctx.Done():
			for {
				select {
				case job := <-e.persistCh:
					e.persist(job)
				default:
					return
				}
			}
		}
	}
}

// persist writes one job. Every failure is logged and swallowed.
func (e *PriceEngine) persist(job persistJob) {
	ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
	defer cancel()
	start := time.Now()

	if len(job.history) > 0 {
		if err := e.history.Append(ctx, job.history); err != nil {
			e.metrics.RecordError("history_append")
			e.logger.Error("history append failed", logger.Int("records", len(job.history)), logger.Error(err))
		}
	}

	for _, p := range []models.CacheProjection{
		projection(models.ProjectionCurrent, job.current, job),
		projection(models.ProjectionAll, job.all, job),
	} {
		if err := e.projections.Put(ctx, p); err != nil {
			e.metrics.RecordError("projection_put")
			e.logger.Error("projection write failed", logger.String("key", p.Key), logger.Error(err))
		}
	}

	err := e.projections.Update(ctx, models.ProjectionSource, func(prev *models.CacheProjection) models.CacheProjection {
		return mergeSource(prev, job)
	})
	if err != nil {
		e.metrics.RecordError("projection_merge")
		e.logger.Error("source projection merge failed", logger.Error(err))
	}

	ev := models.SnapshotEvent{Meta: models.SnapshotMeta{Time: job.at}, Prices: job.all}
	if err := e.events.PublishSnapshot(ctx, ev); err != nil {
		e.metrics.RecordError("snapshot_event")
		e.logger.Warn("snapshot event publish failed", logger.Error(err))
	}

	e.metrics.RecordLatency("engine_persist", time.Since(start).Seconds())
}

func projection(key string, entries []models.Quote, job persistJob) models.CacheProjection {
	return models.CacheProjection{
		Key:       key,
		Entries:   entries,
		Meta:      models.ProjectionMeta{Time: job.at, Count: len(entries), Source: job.source},
		UpdatedAt: job.at,
	}
}

// mergeSource upserts the job's raw quotes into the previous source projection;
// codes are never removed.
func mergeSource(prev *models.CacheProjection, job persistJob) models.CacheProjection {
	byCode := make(map[string]models.Quote)
	if prev != nil {
		for _, q := range prev.Entries {
			byCode[q.Code] = q
		}
	}
	for _, q := range job.raw {
		byCode[q.Code] = q
	}

	entries := make([]models.Quote, 0, len(byCode))
	for _, q := range byCode {
		entries = append(entries, q)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Order != entries[j].Order {
			return entries[i].Order < entries[j].Order
		}
		return entries[i].Code < entries[j].Code
	})
	return projection(models.ProjectionSource, entries, job)
}
