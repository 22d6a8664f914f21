package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
)

// MemoryStore keeps task instances in process. One mutex makes every operation atomic,
// which gives UpdateByQuery the same all-or-nothing behaviour as the SQL transaction.
type MemoryStore struct {
	*core.BaseComponent
	mu    sync.Mutex
	tasks map[string]*model.TaskInstance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_STORE_TASK, consts.COMPONENT_LOGGING),
		tasks:         make(map[string]*model.TaskInstance),
	}
}

// Put inserts or replaces an instance. Missing version starts at 1.
func (s *MemoryStore) Put(t *model.TaskInstance) {
	cp := t.Clone()
	if cp.Version == 0 {
		cp.Version = 1
	}
	cp.EnsurePartition()
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.mu.Lock()
	s.tasks[cp.ID] = cp
	s.mu.Unlock()
}

func (s *MemoryStore) Get(id string) (*model.TaskInstance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

func (s *MemoryStore) UpdateByQuery(_ context.Context, q ClaimQuery, u ClaimUpdate) (UpdateByQueryResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res UpdateByQueryResult
	for _, t := range s.eligibleLocked(q) {
		if IsStale(t, q.StaleBefore) {
			res.Stale++
		}
		u.Apply(t)
		t.UpdatedAt = time.Now().UTC()
		res.Total++
		res.Updated++
	}
	return res, nil
}

func (s *MemoryStore) Search(_ context.Context, q ClaimQuery) ([]*model.TaskInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := s.eligibleLocked(q)
	out := make([]*model.TaskInstance, 0, len(matched))
	for _, t := range matched {
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *MemoryStore) ConditionalUpdate(_ context.Context, id string, version int64, u ClaimUpdate) (*model.TaskInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if t.Version != version {
		return nil, ErrConflict
	}
	u.Apply(t)
	t.UpdatedAt = time.Now().UTC()
	return t.Clone(), nil
}

func (s *MemoryStore) FetchClaimed(_ context.Context, q ClaimedQuery) ([]*model.TaskInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.TaskInstance
	for _, t := range s.tasks {
		if t.Status != bizConsts.StatusClaiming || t.Owner != q.Owner || t.RetryAt == nil || !t.RetryAt.Equal(q.Until) {
			continue
		}
		if !containsString(q.TaskTypes, t.TaskType) {
			continue
		}
		out = append(out, t.Clone())
	}
	sortClaimOrder(out)
	return out, nil
}

func (s *MemoryStore) CountRunning(_ context.Context, q RunningQuery) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, t := range s.tasks {
		if t.Status != bizConsts.StatusClaiming && t.Status != bizConsts.StatusRunning {
			continue
		}
		if q.Owner != "" && t.Owner != q.Owner {
			continue
		}
		if t.RetryAt == nil || !t.RetryAt.After(q.ActiveAfter) {
			continue
		}
		counts[t.TaskType]++
	}
	return counts, nil
}

func (s *MemoryStore) SearchExhausted(_ context.Context, q ExhaustedQuery) ([]*model.TaskInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.TaskInstance
	for _, t := range s.tasks {
		limit := q.TypeMaxAttempts[t.TaskType]
		if limit <= 0 || t.Attempts < limit || !t.Enabled {
			continue
		}
		if t.Status != bizConsts.StatusIdle && t.Status != bizConsts.StatusFailed {
			continue
		}
		if q.Partitions != nil && !containsInt(q.Partitions, t.PartitionNo()) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkUnrecognized(_ context.Context, q UnrecognizedQuery) (int, error) {
	if len(q.KnownTypes) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tasks {
		if q.Limit > 0 && n >= q.Limit {
			break
		}
		if t.Status != bizConsts.StatusIdle || containsString(q.KnownTypes, t.TaskType) {
			continue
		}
		if t.RunAt.After(q.Now) {
			continue
		}
		if q.Partitions != nil && !containsInt(q.Partitions, t.PartitionNo()) {
			continue
		}
		t.Status = bizConsts.StatusUnrecognized
		t.Version++
		t.UpdatedAt = time.Now().UTC()
		n++
	}
	return n, nil
}

// eligibleLocked returns stored pointers (not copies) in claim order, cut to q.Limit.
func (s *MemoryStore) eligibleLocked(q ClaimQuery) []*model.TaskInstance {
	if q.Limit <= 0 || len(q.TaskTypes) == 0 {
		return nil
	}
	var matched []*model.TaskInstance
	for _, t := range s.tasks {
		if q.IsClaimable(t) {
			matched = append(matched, t)
		}
	}
	sortClaimOrder(matched)
	if len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched
}

// sortClaimOrder: run_at asc, priority desc, id asc
func sortClaimOrder(list []*model.TaskInstance) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.RunAt.Equal(b.RunAt) {
			return a.RunAt.Before(b.RunAt)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
}
