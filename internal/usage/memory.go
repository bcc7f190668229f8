package usage

import (
	"context"
	"sort"
	"sync"

	"tiergate/internal/models"
)

// MemoryStore is an in-process CounterStore for tests and single-node runs.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[Key]models.Counter
}

var _ CounterStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[Key]models.Counter)}
}

func (m *MemoryStore) Increment(_ context.Context, key Key, delta models.Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.rows[key]
	c.Requests += delta.Requests
	c.PromptTokens += delta.PromptTokens
	c.CompletionTokens += delta.CompletionTokens
	c.TotalTokens += delta.TotalTokens
	m.rows[key] = c
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key Key) (models.Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[key], nil
}

func (m *MemoryStore) List(_ context.Context, f Filter) ([]models.UsageRollup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UsageRollup
	for k, c := range m.rows {
		if !f.matches(k) {
			continue
		}
		out = append(out, models.UsageRollup{
			PeriodType: k.PeriodType, Period: k.Period, Scope: k.Scope,
			UserID: k.UserID, Tier: k.Tier, Counter: c,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Period != b.Period {
			return a.Period < b.Period
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.Tier < b.Tier
	})
	return out, nil
}

func (m *MemoryStore) Reset(_ context.Context, f Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.rows {
		if f.matches(k) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

func (f Filter) matches(k Key) bool {
	if f.PeriodType != "" && f.PeriodType != k.PeriodType {
		return false
	}
	if f.Period != "" && f.Period != k.Period {
		return false
	}
	if f.Scope != "" && f.Scope != k.Scope {
		return false
	}
	if f.UserID != "" && f.UserID != k.UserID {
		return false
	}
	if f.Tier != "" && f.Tier != k.Tier {
		return false
	}
	return true
}
