package jobstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/forPelevin/shortify/internal/apperr"
	"github.com/forPelevin/shortify/internal/ports"
	"github.com/forPelevin/shortify/internal/types"
)

// Memory keeps records in process. Put swaps the stored value, so readers
// holding an older record never observe a change.
type Memory struct {
	mu   sync.RWMutex
	recs map[string]types.JobRecord
}

func NewMemory() *Memory {
	return &Memory{recs: make(map[string]types.JobRecord)}
}

func (m *Memory) Put(_ context.Context, rec types.JobRecord) error {
	if rec.ID == "" {
		return apperr.New(apperr.KindInvalidArgument, "job id is required")
	}
	m.mu.Lock()
	m.recs[rec.ID] = rec
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (types.JobRecord, error) {
	m.mu.RLock()
	rec, ok := m.recs[id]
	m.mu.RUnlock()
	if !ok {
		return types.JobRecord{}, apperr.New(apperr.KindNotFound, "job %q", id)
	}
	return rec, nil
}

func (m *Memory) Update(_ context.Context, id string, fn func(types.JobRecord) (types.JobRecord, error)) (types.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.recs[id]
	if !ok {
		return types.JobRecord{}, apperr.New(apperr.KindNotFound, "job %q", id)
	}
	next, err := fn(cur)
	if errors.Is(err, ports.ErrSkipUpdate) {
		return cur, nil
	}
	if err != nil {
		return types.JobRecord{}, err
	}
	next.ID = id
	m.recs[id] = next
	return next, nil
}

func (m *Memory) List(_ context.Context, limit int) ([]types.JobRecord, error) {
	m.mu.RLock()
	out := make([]types.JobRecord, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortNewestFirst(recs []types.JobRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID > recs[j].ID
	})
}
