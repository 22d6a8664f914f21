package store

import (
	"context"
	"errors"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
)

var (
	// ErrConflict 版本号不匹配, 其它节点先一步认领
	ErrConflict = errors.New("store: version conflict")
	ErrNotFound = errors.New("store: task instance not found")
)

// TaskStore is the narrow store surface the claimer consumes.
type TaskStore interface {
	core.Component
	// UpdateByQuery claims up to q.Limit eligible instances in one atomic operation.
	UpdateByQuery(ctx context.Context, q ClaimQuery, u ClaimUpdate) (UpdateByQueryResult, error)
	// Search returns eligible instances with their version tokens, in claim order.
	Search(ctx context.Context, q ClaimQuery) ([]*model.TaskInstance, error)
	// ConditionalUpdate claims one instance if its version still equals version.
	// Returns ErrConflict on mismatch and ErrNotFound when the id is gone.
	ConditionalUpdate(ctx context.Context, id string, version int64, u ClaimUpdate) (*model.TaskInstance, error)
	// FetchClaimed reads back the instances owned by q.Owner with claim marker q.Until.
	FetchClaimed(ctx context.Context, q ClaimedQuery) ([]*model.TaskInstance, error)
	// CountRunning counts claiming/running instances per type whose claim has not expired.
	CountRunning(ctx context.Context, q RunningQuery) (map[string]int, error)
	SearchExhausted(ctx context.Context, q ExhaustedQuery) ([]*model.TaskInstance, error)
	// MarkUnrecognized flags idle instances whose type is not in q.KnownTypes.
	MarkUnrecognized(ctx context.Context, q UnrecognizedQuery) (int, error)
}

// ClaimQuery selects claimable instances:
// enabled, run_at <= Now, and idle|failed or claiming|running with retry_at <= StaleBefore,
// minus instances that reached their type's max attempts.
type ClaimQuery struct {
	TaskTypes       []string
	TypeMaxAttempts map[string]int // 0 / 缺省 = 不限
	Partitions      []int          // nil = 全部分区
	Now             time.Time
	StaleBefore     time.Time
	Limit           int
}

// ClaimUpdate is applied to every claimed instance:
// owner, status=claiming, retry_at=Until, version+1, attempts+1 when the prior status was failed.
type ClaimUpdate struct {
	Owner string
	Until time.Time
}

type UpdateByQueryResult struct {
	Total     int // candidates the operation matched
	Updated   int
	Conflicts int
	Stale     int // updated instances that were reclaimed from an expired owner
}

type ClaimedQuery struct {
	Owner     string
	Until     time.Time
	TaskTypes []string
}

type RunningQuery struct {
	Owner       string // 空 = 全集群
	ActiveAfter time.Time
}

type ExhaustedQuery struct {
	TypeMaxAttempts map[string]int
	Partitions      []int
	Limit           int
}

type UnrecognizedQuery struct {
	KnownTypes []string
	Partitions []int
	Now        time.Time
	Limit      int
}

// IsClaimable evaluates ClaimQuery eligibility for one instance. The memory store and
// tests share it; SQL stores express the same predicate in their WHERE clause.
func (q ClaimQuery) IsClaimable(t *model.TaskInstance) bool {
	if !t.Enabled || t.RunAt.After(q.Now) {
		return false
	}
	if !containsString(q.TaskTypes, t.TaskType) {
		return false
	}
	if q.Partitions != nil && !containsInt(q.Partitions, t.PartitionNo()) {
		return false
	}
	if limit := q.TypeMaxAttempts[t.TaskType]; limit > 0 && t.Attempts >= limit {
		return false
	}
	switch t.Status {
	case consts.StatusIdle, consts.StatusFailed:
		return true
	case consts.StatusClaiming, consts.StatusRunning:
		return IsStale(t, q.StaleBefore)
	}
	return false
}

// IsStale reports whether an owned instance's claim expired at or before staleBefore.
func IsStale(t *model.TaskInstance, staleBefore time.Time) bool {
	if t.Status != consts.StatusClaiming && t.Status != consts.StatusRunning {
		return false
	}
	return t.RetryAt == nil || !t.RetryAt.After(staleBefore)
}

// Apply mutates t the way a claim update does. Stores call it on their own copy.
func (u ClaimUpdate) Apply(t *model.TaskInstance) {
	if t.Status == consts.StatusFailed {
		t.Attempts++
	}
	t.Owner = u.Owner
	t.Status = consts.StatusClaiming
	until := u.Until
	t.RetryAt = &until
	t.Version++
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
