package registry

import (
	"context"
	"sync"
	"time"

	"github.com/coreagg/indexercore/internal/indexer/types"
)

// HealthFilter narrows a health-row listing (§6.2 select-with-filters).
type HealthFilter struct {
	PublicOnly        bool
	MinSuccessRate    float64
	ExcludeDisabled   bool
	OrderByPriorityDesc bool
	Limit             int
}

// HealthStore persists indexer health rows. internal/database/queries
// implements this against SQLite; tests and the in-process fallback use
// MemoryHealthStore.
type HealthStore interface {
	Upsert(ctx context.Context, row *types.IndexerHealthRow) error
	Get(ctx context.Context, id string) (*types.IndexerHealthRow, error)
	List(ctx context.Context, filter HealthFilter) ([]*types.IndexerHealthRow, error)
	All(ctx context.Context) ([]*types.IndexerHealthRow, error)
}

// MemoryHealthStore is an in-process HealthStore, used as the compiled-in
// fallback when the persistent store is unavailable (§7: "store
// unavailable -> health loop logs+returns, Dispatcher falls back to
// compiled-in defaults, search never fails outright").
type MemoryHealthStore struct {
	mu   sync.RWMutex
	rows map[string]*types.IndexerHealthRow
}

// NewMemoryHealthStore creates an empty in-memory health store.
func NewMemoryHealthStore() *MemoryHealthStore {
	return &MemoryHealthStore{rows: make(map[string]*types.IndexerHealthRow)}
}

func (m *MemoryHealthStore) Upsert(ctx context.Context, row *types.IndexerHealthRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *row
	m.rows[row.ID] = &cp
	return nil
}

func (m *MemoryHealthStore) Get(ctx context.Context, id string) (*types.IndexerHealthRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

func (m *MemoryHealthStore) All(ctx context.Context) ([]*types.IndexerHealthRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.IndexerHealthRow, 0, len(m.rows))
	for _, row := range m.rows {
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryHealthStore) List(ctx context.Context, filter HealthFilter) ([]*types.IndexerHealthRow, error) {
	all, _ := m.All(ctx)
	now := time.Now()

	out := make([]*types.IndexerHealthRow, 0, len(all))
	for _, row := range all {
		if filter.PublicOnly && !row.IsPublic {
			continue
		}
		if row.SuccessRate() < filter.MinSuccessRate {
			continue
		}
		if filter.ExcludeDisabled && row.DisabledUntil != nil && row.DisabledUntil.After(now) {
			continue
		}
		out = append(out, row)
	}

	if filter.OrderByPriorityDesc {
		sortByPriorityDesc(out)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func sortByPriorityDesc(rows []*types.IndexerHealthRow) {
	for i := 1; i < len(rows); i++ {
		j := i
		for j > 0 && priority(rows[j-1]) < priority(rows[j]) {
			rows[j-1], rows[j] = rows[j], rows[j-1]
			j--
		}
	}
}

// priority derives a row's ranking score using its actual last-check
// outcome, rather than assuming success, so a row that just failed (but
// isn't yet circuit-broken) doesn't get the success bonus of a genuinely
// healthy one.
func priority(row *types.IndexerHealthRow) int {
	return row.Priority(row.ConsecutiveFailures == 0)
}
