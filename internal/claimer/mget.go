package claimer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

// ClaimAvailableTasksMget searches candidates first, then claims each one with a conditional
// update on its version token. Batches run one after another.
func ClaimAvailableTasksMget(ctx context.Context, opts Opts) model.ClaimOwnershipResult {
	return runRound(ctx, opts, consts.StrategyMget, false, mgetBatch)
}

func mgetBatch(ctx context.Context, opts Opts, b plannedBatch, partitions []int) model.ClaimOwnershipResult {
	res := EmptyClaimOwnershipResult()
	candidates, err := opts.Store.Search(ctx, b.query(opts, partitions, b.size+max(0, opts.SearchLookahead)))
	if err != nil {
		logging.Warn(ctx, "search claimable tasks failed", zap.String("batch", b.Name), zap.Error(err))
		res.Stats.TasksErrors++
		return res
	}
	if len(candidates) == 0 {
		return res
	}

	workers := opts.UpdateConcurrency
	if workers <= 0 {
		workers = 1
	}
	upd := store.ClaimUpdate{Owner: opts.NodeID, Until: opts.ClaimOwnershipUntil}
	claimed := make([]*model.TaskInstance, len(candidates))

	var (
		mu       sync.Mutex
		cond     = sync.NewCond(&mu)
		inflight int
		won      int
		failed   bool
		stats    model.ClaimStats
		g        errgroup.Group
	)
	attempted := 0
	for i, c := range candidates {
		mu.Lock()
		// 未决请求全部成功也不会超过 size
		for inflight > 0 && (inflight >= workers || won+inflight >= b.size) {
			cond.Wait()
		}
		stop := won >= b.size || failed
		if !stop {
			inflight++
		}
		mu.Unlock()
		if stop {
			break
		}
		attempted++
		g.Go(func() error {
			doc, err := conditionalUpdate(ctx, opts.Store, c, upd)
			mu.Lock()
			defer mu.Unlock()
			inflight--
			switch {
			case err == nil:
				won++
				claimed[i] = doc
				if store.IsStale(c, opts.StaleBefore) {
					stats.StaleTasks++
				}
			case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrNotFound):
				stats.TasksConflicted++
			default:
				stats.TasksErrors++
				failed = true
				logging.Warn(ctx, "conditional update failed", zap.String("task_id", c.ID), zap.Error(err))
			}
			cond.Broadcast()
			return nil
		})
	}
	_ = g.Wait()

	for _, d := range claimed {
		if d != nil {
			res.Docs = append(res.Docs, d)
		}
	}
	stats.TasksUpdated = won
	stats.TasksClaimed = won
	stats.TasksLeftUnclaimed = len(candidates) - attempted
	res.Stats = stats
	logging.Debug(ctx, "batch claimed",
		zap.String("batch", b.Name),
		zap.Int("candidates", len(candidates)),
		zap.Int("claimed", won),
		zap.Int("conflicts", stats.TasksConflicted),
	)
	return res
}

// conditionalUpdate runs on an errgroup worker, out of reach of the batch recover;
// a panic becomes a plain store error so the dispatch loop still sees inflight drop.
func conditionalUpdate(ctx context.Context, st store.TaskStore, c *model.TaskInstance, upd store.ClaimUpdate) (doc *model.TaskInstance, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("conditional update %s panicked: %v", c.ID, r)
		}
	}()
	return st.ConditionalUpdate(ctx, c.ID, c.Version, upd)
}
