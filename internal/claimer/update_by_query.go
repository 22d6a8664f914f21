package claimer

import (
	"context"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

// ClaimAvailableTasksUpdateByQuery issues one bulk conditional update per batch, batches in
// parallel, then reads back the documents carrying this node's claim marker.
func ClaimAvailableTasksUpdateByQuery(ctx context.Context, opts Opts) model.ClaimOwnershipResult {
	return runRound(ctx, opts, consts.StrategyUpdateByQuery, true, updateByQueryBatch)
}

func updateByQueryBatch(ctx context.Context, opts Opts, b plannedBatch, partitions []int) model.ClaimOwnershipResult {
	res := EmptyClaimOwnershipResult()
	upd := store.ClaimUpdate{Owner: opts.NodeID, Until: opts.ClaimOwnershipUntil}

	ubq, err := opts.Store.UpdateByQuery(ctx, b.query(opts, partitions, b.size), upd)
	if err != nil {
		logging.Warn(ctx, "update by query failed", zap.String("batch", b.Name), zap.Error(err))
		res.Stats.TasksErrors++
		return res
	}
	res.Stats.TasksUpdated = ubq.Updated
	res.Stats.TasksConflicted = ubq.Conflicts
	res.Stats.StaleTasks = ubq.Stale
	res.Stats.TasksLeftUnclaimed = max(0, ubq.Total-ubq.Updated-ubq.Conflicts)
	if ubq.Updated == 0 {
		return res
	}

	docs, err := opts.Store.FetchClaimed(ctx, store.ClaimedQuery{
		Owner:     opts.NodeID,
		Until:     opts.ClaimOwnershipUntil,
		TaskTypes: b.TaskTypes,
	})
	if err != nil {
		logging.Warn(ctx, "fetch claimed tasks failed", zap.String("batch", b.Name), zap.Error(err))
		res.Stats.TasksErrors++
		return res
	}
	res.Docs = docs
	res.Stats.TasksClaimed = len(docs)
	logging.Debug(ctx, "batch claimed",
		zap.String("batch", b.Name),
		zap.Int("size", b.size),
		zap.Int("updated", ubq.Updated),
		zap.Int("conflicts", ubq.Conflicts),
	)
	return res
}
