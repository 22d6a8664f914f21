package claimer

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

const tracerName = "taskmanager/claimer"

// batchRunner claims one planned batch restricted to partitions (nil = all).
type batchRunner func(ctx context.Context, opts Opts, b plannedBatch, partitions []int) model.ClaimOwnershipResult

// runRound is the skeleton both strategies share: partitions, unrecognized sweep,
// capacity plan, batches, aggregation, TaskClaim event.
func runRound(ctx context.Context, opts Opts, strategy consts.ClaimStrategy, parallel bool, run batchRunner) model.ClaimOwnershipResult {
	start := time.Now()
	// 已发出的存储请求不随调用方取消
	ctx = context.WithoutCancel(ctx)
	ctx, span := otel.Tracer(tracerName).Start(ctx, "claim."+string(strategy))
	defer span.End()

	result := claimBatches(ctx, opts, parallel, run)
	result.Timing = &model.ClaimTiming{Start: start, Elapsed: time.Since(start)}

	span.SetAttributes(
		attribute.Int("claim.tasks_claimed", result.Stats.TasksClaimed),
		attribute.Int("claim.tasks_conflicted", result.Stats.TasksConflicted),
		attribute.Int("claim.tasks_errors", result.Stats.TasksErrors),
	)
	if result.Stats.TasksErrors > 0 {
		span.SetStatus(codes.Error, "claim round degraded")
	}
	publishClaim(ctx, opts, strategy, result)
	return result
}

func claimBatches(ctx context.Context, opts Opts, parallel bool, run batchRunner) (res model.ClaimOwnershipResult) {
	res = EmptyClaimOwnershipResult()
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "claim round panicked", zap.Any("panic", r))
			res.Stats.TasksErrors++
		}
	}()

	var partitions []int
	if opts.Partitioner != nil {
		var err error
		if partitions, err = opts.Partitioner.Partitions(ctx); err != nil {
			logging.Warn(ctx, "resolve owned partitions failed, skipping round", zap.Error(err))
			res.Stats.TasksErrors++
			return res
		}
		if partitions != nil && len(partitions) == 0 {
			logging.Debug(ctx, "node owns no partitions")
			return res
		}
	}

	var sweepErrors int
	if opts.Definitions != nil {
		n, err := opts.Store.MarkUnrecognized(ctx, store.UnrecognizedQuery{
			KnownTypes: opts.Definitions.AllTypes(),
			Partitions: partitions,
			Now:        opts.Now,
		})
		if err != nil {
			logging.Warn(ctx, "mark unrecognized task types failed", zap.Error(err))
			sweepErrors++
		} else if n > 0 {
			logging.Info(ctx, fmt.Sprintf("marked %d task instances with unregistered types as %s", n, consts.StatusUnrecognized))
		}
	}

	plan := planBatches(opts)
	parts := make([]model.ClaimOwnershipResult, len(plan))
	if parallel {
		var g errgroup.Group
		for i, b := range plan {
			g.Go(func() error {
				parts[i] = safeRun(ctx, opts, b, partitions, run)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, b := range plan {
			parts[i] = safeRun(ctx, opts, b, partitions, run)
		}
	}
	res = aggregate(parts)
	res.Stats.TasksErrors += sweepErrors
	return res
}

func safeRun(ctx context.Context, opts Opts, b plannedBatch, partitions []int, run batchRunner) (res model.ClaimOwnershipResult) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "claim.batch")
	span.SetAttributes(attribute.String("claim.batch", b.Name), attribute.Int("claim.size", b.size))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			logging.Error(ctx, "claim batch panicked", zap.String("batch", b.Name), zap.Any("panic", r))
			res = EmptyClaimOwnershipResult()
			res.Stats.TasksErrors++
		}
	}()
	return run(ctx, opts, b, partitions)
}

func (b plannedBatch) query(opts Opts, partitions []int, limit int) store.ClaimQuery {
	return store.ClaimQuery{
		TaskTypes:       b.TaskTypes,
		TypeMaxAttempts: opts.TaskMaxAttempts,
		Partitions:      partitions,
		Now:             opts.Now,
		StaleBefore:     opts.StaleBefore,
		Limit:           limit,
	}
}

func publishClaim(ctx context.Context, opts Opts, strategy consts.ClaimStrategy, res model.ClaimOwnershipResult) {
	if opts.Events == nil {
		return
	}
	ev := model.Event{
		Type:   consts.EventTaskClaim,
		NodeID: opts.NodeID,
		Claim: &model.TaskClaimEvent{
			Strategy:   strategy,
			Stats:      res.Stats,
			ClaimedIDs: res.DocIDs(),
			Until:      opts.ClaimOwnershipUntil,
		},
	}
	if res.Timing != nil {
		ev.Claim.Elapsed = res.Timing.Elapsed
	}
	if err := opts.Events.Publish(ctx, ev); err != nil {
		logging.Warn(ctx, "publish TaskClaim event failed", zap.Error(err))
	}
}
