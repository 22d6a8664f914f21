package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/capacity"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/claimer"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/definitions"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/events"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/exclusion"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/partition"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

const (
	outcomeOK       = "ok"
	outcomeDegraded = "degraded"
	outcomeSkipped  = "skipped"
	outcomeTimeout  = "timeout"
)

// RoundReport 最近一轮认领的快照, 供 CLI / HTTP 查看
type RoundReport struct {
	NodeID   string                     `json:"nodeId"`
	Strategy bizConsts.ClaimStrategy    `json:"strategy"`
	Started  time.Time                  `json:"started"`
	Until    time.Time                  `json:"claimOwnershipUntil"`
	Capacity int                        `json:"capacity"`
	Outcome  string                     `json:"outcome"`
	Result   model.ClaimOwnershipResult `json:"result"`
}

// ClaimingEngine runs claiming rounds on a ticker. Rounds never overlap on one node.
type ClaimingEngine struct {
	*core.BaseComponent
	Store       store.TaskStore        `infra:"dep:task_store"`
	Definitions *definitions.Registry  `infra:"dep:task_definitions"`
	Partitioner *partition.Partitioner `infra:"dep:task_partitioner"`
	Events      *events.Bus            `infra:"dep:claim_events"`

	cfg     *config.BizConfig
	metrics *roundMetrics
	now     func() time.Time

	// derived from definitions once at start
	batches     []model.ClaimBatch
	excluded    []string
	maxAttempts map[string]int

	roundMu sync.Mutex
	last    atomic.Pointer[RoundReport]
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewClaimingEngine(cfg *config.BizConfig) *ClaimingEngine {
	return &ClaimingEngine{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_CLAIMING),
		cfg:           cfg,
		now:           time.Now,
	}
}

func (e *ClaimingEngine) Start(ctx context.Context) error {
	if e.IsActive() {
		return nil
	}
	if err := e.BaseComponent.Start(ctx); err != nil {
		return err
	}
	e.prepare()
	e.metrics = newRoundMetrics()

	cl := e.cfg.Claiming
	if bizConsts.ClaimStrategy(cl.Strategy) != claimer.ResolveStrategy(cl.Strategy) {
		// 触发一次性告警
		claimer.GetTaskClaimer(cl.Strategy)
	}
	logging.Info(ctx, "claiming engine started",
		zap.String("node_id", e.cfg.NodeID),
		zap.String("strategy", string(claimer.ResolveStrategy(cl.Strategy))),
		zap.Strings("excluded_task_types", e.excluded),
		zap.Int("batches", len(e.batches)),
		zap.Bool("loop", cl.RunLoop == nil || *cl.RunLoop),
	)
	if cl.RunLoop != nil && !*cl.RunLoop {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(cl.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				e.RunRound(loopCtx)
			}
		}
	}()
	return nil
}

func (e *ClaimingEngine) Stop(ctx context.Context) error {
	if !e.IsActive() {
		return nil
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	return e.BaseComponent.Stop(ctx)
}

func (e *ClaimingEngine) prepare() {
	e.batches = claimer.BuildBatches(e.Definitions, e.cfg.Claiming.ExcludedTaskTypes)
	e.excluded = exclusion.ExcludedTaskTypes(e.Definitions.AllTypes(), e.cfg.Claiming.ExcludedTaskTypes)
	e.maxAttempts = resolveMaxAttempts(e.cfg, e.Definitions)
}

// RunRound claims once and returns the result. A round that outlives claiming.round_timeout is
// reported as failed, but its in-flight store calls are still awaited before returning.
func (e *ClaimingEngine) RunRound(ctx context.Context) model.ClaimOwnershipResult {
	e.roundMu.Lock()
	defer e.roundMu.Unlock()
	if e.batches == nil {
		e.prepare()
	}

	cl := e.cfg.Claiming
	now := e.now().UTC()
	report := &RoundReport{
		NodeID:   e.cfg.NodeID,
		Strategy: claimer.ResolveStrategy(cl.Strategy),
		Started:  now,
		// 毫秒精度: 存储层按 retry_at 等值回读
		Until: now.Add(cl.ClaimOwnershipDuration).Truncate(time.Millisecond),
	}
	staleBefore := now.Add(-cl.StaleClaimGrace)

	acct, err := capacity.Load(ctx, e.Store, e.Definitions, e.cfg.NodeID, cl.MaxWorkers, staleBefore)
	if err != nil {
		logging.Warn(ctx, "load capacity failed, skipping round", zap.Error(err))
		res := claimer.EmptyClaimOwnershipResult()
		res.Stats.TasksErrors = 1
		return e.finish(ctx, report, outcomeDegraded, res)
	}
	report.Capacity = acct.Global()
	e.metrics.setCapacity(e.cfg.NodeID, acct.Global())
	if acct.Global() <= 0 {
		logging.Debug(ctx, "no free workers, skipping round")
		return e.finish(ctx, report, outcomeSkipped, claimer.EmptyClaimOwnershipResult())
	}

	opts := claimer.Opts{
		NodeID:              e.cfg.NodeID,
		Capacity:            acct.Capacity,
		ClaimOwnershipUntil: report.Until,
		Now:                 now,
		StaleBefore:         staleBefore,
		Batches:             e.batches,
		Store:               e.Store,
		Definitions:         e.Definitions,
		ExcludedTaskTypes:   e.excluded,
		TaskMaxAttempts:     e.maxAttempts,
		UpdateConcurrency:   cl.UpdateConcurrency,
		SearchLookahead:     cl.SearchLookahead,
	}
	if e.Events != nil {
		opts.Events = e.Events
	}
	if e.Partitioner != nil {
		opts.Partitioner = e.Partitioner
	}
	claim := claimer.GetTaskClaimer(cl.Strategy)

	roundCtx, cancel := context.WithTimeout(ctx, cl.RoundTimeout)
	defer cancel()
	done := make(chan model.ClaimOwnershipResult, 1)
	go func() { done <- claim(roundCtx, opts) }()

	select {
	case res := <-done:
		return e.finish(ctx, report, outcomeFor(res), res)
	case <-roundCtx.Done():
		if !errors.Is(roundCtx.Err(), context.DeadlineExceeded) {
			// 停机: 等本轮写完, 不记失败
			res := <-done
			return e.finish(ctx, report, outcomeFor(res), res)
		}
		logging.Warn(ctx, fmt.Sprintf("claiming round exceeded %s, waiting for in-flight updates", cl.RoundTimeout))
		res := <-done
		res.Stats.TasksErrors++
		return e.finish(ctx, report, outcomeTimeout, res)
	}
}

func outcomeFor(res model.ClaimOwnershipResult) string {
	if res.Stats.TasksErrors > 0 {
		return outcomeDegraded
	}
	return outcomeOK
}

func (e *ClaimingEngine) finish(ctx context.Context, report *RoundReport, outcome string, res model.ClaimOwnershipResult) model.ClaimOwnershipResult {
	report.Outcome = outcome
	report.Result = res
	e.last.Store(report)
	e.metrics.observeRound(report.Strategy, outcome, res)
	if outcome == outcomeSkipped {
		return res
	}
	logging.Info(ctx, "claiming round finished",
		zap.String("outcome", outcome),
		zap.Int("capacity", report.Capacity),
		zap.Int("claimed", res.Stats.TasksClaimed),
		zap.Int("conflicted", res.Stats.TasksConflicted),
		zap.Int("left_unclaimed", res.Stats.TasksLeftUnclaimed),
		zap.Int("stale", res.Stats.StaleTasks),
		zap.Int("errors", res.Stats.TasksErrors),
	)
	return res
}

// LastRound returns the snapshot of the latest round, nil before the first one.
func (e *ClaimingEngine) LastRound() *RoundReport { return e.last.Load() }

func (e *ClaimingEngine) HealthCheck() error {
	if err := e.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	r := e.last.Load()
	if r != nil && r.Outcome == outcomeTimeout {
		return fmt.Errorf("last claiming round timed out at %s", r.Started.Format(time.RFC3339))
	}
	return nil
}

// resolveMaxAttempts lists the attempt cap of every registered type; unlimited types are left out.
func resolveMaxAttempts(cfg *config.BizConfig, defs *definitions.Registry) map[string]int {
	out := make(map[string]int)
	for _, t := range defs.AllTypes() {
		d, _ := defs.Get(t)
		if n := cfg.MaxAttemptsFor(t, d.MaxAttempts); n > 0 {
			out[t] = n
		}
	}
	return out
}
