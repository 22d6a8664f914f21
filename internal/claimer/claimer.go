// Package claimer implements the claiming strategies. Both strategies share one contract:
// they never return an error, failures surface as tasksErrors on a partial result.
package claimer

import (
	"context"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/capacity"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/definitions"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

// TaskClaimer runs one claiming round.
type TaskClaimer func(ctx context.Context, opts Opts) model.ClaimOwnershipResult

// EventSink receives the TaskClaim event of every completed round.
type EventSink interface {
	Publish(ctx context.Context, ev model.Event) error
}

// PartitionSource returns the partitions owned now; nil means all partitions.
type PartitionSource interface {
	Partitions(ctx context.Context) ([]int, error)
}

type Opts struct {
	NodeID   string
	Capacity capacity.Func
	// claimed instances get retry_at = ClaimOwnershipUntil
	ClaimOwnershipUntil time.Time
	Now                 time.Time
	// claiming/running instances with retry_at <= StaleBefore are reclaimable
	StaleBefore       time.Time
	Batches           []model.ClaimBatch
	Events            EventSink
	Store             store.TaskStore
	Definitions       *definitions.Registry
	ExcludedTaskTypes []string       // resolved type names
	TaskMaxAttempts   map[string]int // per type, 0 = unlimited
	Partitioner       PartitionSource

	UpdateConcurrency int // mget only
	SearchLookahead   int // mget only
}

// EmptyClaimOwnershipResult is returned for skipped rounds: zero stats, no docs, no timing.
func EmptyClaimOwnershipResult() model.ClaimOwnershipResult {
	return model.ClaimOwnershipResult{
		Stats: model.ClaimStats{},
		Docs:  []*model.TaskInstance{},
	}
}

// aggregate sums stats and concatenates docs in batch order.
func aggregate(parts []model.ClaimOwnershipResult) model.ClaimOwnershipResult {
	out := EmptyClaimOwnershipResult()
	for _, p := range parts {
		out.Stats.Add(p.Stats)
		out.Docs = append(out.Docs, p.Docs...)
	}
	return out
}
