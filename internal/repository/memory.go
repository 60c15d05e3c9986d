package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"GoldPull/internal/domain/models"
	drepo "GoldPull/internal/domain/repository"
)

// MemoryCatalog holds coefficients and derived definitions in process. It is
// used when Postgres is disabled and as a fake in tests; Err makes every read
// fail, simulating an unavailable store.
type MemoryCatalog struct {
	mu      sync.RWMutex
	coeffs  []models.Coefficient
	derived []models.DerivedDefinition
	Err     error
}

var (
	_ drepo.CoefficientRepository = (*MemoryCatalog)(nil)
	_ drepo.DerivedRepository     = (*MemoryCatalog)(nil)
)

func NewMemoryCatalog() *MemoryCatalog { return &MemoryCatalog{} }

func (m *MemoryCatalog) SetCoefficients(c ...models.Coefficient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coeffs = append([]models.Coefficient(nil), c...)
}

func (m *MemoryCatalog) SetDerived(d ...models.DerivedDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.derived = append([]models.DerivedDefinition(nil), d...)
}

func (m *MemoryCatalog) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

func (m *MemoryCatalog) ListCoefficients(context.Context) ([]models.Coefficient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]models.Coefficient(nil), m.coeffs...), nil
}

func (m *MemoryCatalog) ListVisibleDerived(context.Context) ([]models.DerivedDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]models.DerivedDefinition, 0, len(m.derived))
	for _, d := range m.derived {
		if d.Visible {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// MemoryAlarms is an in-process AlarmRepository.
type MemoryAlarms struct {
	mu     sync.Mutex
	alarms map[string]*models.Alarm
	order  []string
	// MarkErr makes MarkTriggered fail without changing state.
	MarkErr error
}

var _ drepo.AlarmRepository = (*MemoryAlarms)(nil)

func NewMemoryAlarms(alarms ...models.Alarm) *MemoryAlarms {
	m := &MemoryAlarms{alarms: make(map[string]*models.Alarm)}
	for _, a := range alarms {
		m.Put(a)
	}
	return m
}

func (m *MemoryAlarms) Put(a models.Alarm) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alarms[a.ID]; !ok {
		m.order = append(m.order, a.ID)
	}
	cp := a
	m.alarms[a.ID] = &cp
}

func (m *MemoryAlarms) Get(id string) (models.Alarm, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alarms[id]
	if !ok {
		return models.Alarm{}, false
	}
	return *a, true
}

func (m *MemoryAlarms) ListActive(context.Context) ([]models.Alarm, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Alarm, 0, len(m.order))
	for _, id := range m.order {
		a := m.alarms[id]
		if a.IsActive && !a.IsTriggered {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *MemoryAlarms) MarkTriggered(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return false, m.MarkErr
	}
	a, ok := m.alarms[id]
	if !ok || a.IsTriggered {
		return false, nil
	}
	a.IsTriggered = true
	t := at
	a.TriggeredAt = &t
	return true, nil
}

// MemoryHistory is an in-process HistoryStore with time based retention.
type MemoryHistory struct {
	mu        sync.Mutex
	records   []models.HistoryRecord
	retention time.Duration
	now       func() time.Time
	// AppendErr makes Append fail.
	AppendErr error
}

var _ drepo.HistoryStore = (*MemoryHistory)(nil)

func NewMemoryHistory(retention time.Duration) *MemoryHistory {
	return &MemoryHistory{retention: retention, now: time.Now}
}

func (m *MemoryHistory) Init(context.Context) error { return nil }

func (m *MemoryHistory) Append(_ context.Context, records []models.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.records = append(m.records, records...)
	m.pruneLocked()
	return nil
}

func (m *MemoryHistory) pruneLocked() {
	if m.retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.retention)
	i := 0
	for i < len(m.records) && m.records[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		m.records = append([]models.HistoryRecord(nil), m.records[i:]...)
	}
}

// Query returns the newest records first.
func (m *MemoryHistory) Query(_ context.Context, code string, from, to time.Time, limit int) ([]models.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.HistoryRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.Code != code || r.Timestamp.Before(from) || r.Timestamp.After(to) {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryHistory) All() []models.HistoryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.HistoryRecord(nil), m.records...)
}

func (m *MemoryHistory) Health(context.Context) error { return nil }

func (m *MemoryHistory) Close() error { return nil }
