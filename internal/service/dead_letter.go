package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/definitions"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/events"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/partition"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

// DeadLetterSweeper surfaces instances that used up their attempts.
// Claiming skips them silently; this scanner publishes one TaskDeadLetter event per (id, version).
type DeadLetterSweeper struct {
	*core.BaseComponent
	Store       store.TaskStore        `infra:"dep:task_store"`
	Definitions *definitions.Registry  `infra:"dep:task_definitions"`
	Partitioner *partition.Partitioner `infra:"dep:task_partitioner"`
	Events      *events.Bus            `infra:"dep:claim_events"`

	cfg     *config.BizConfig
	metrics *roundMetrics
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	reported map[string]int64 // id -> version already published
}

func NewDeadLetterSweeper(cfg *config.BizConfig) *DeadLetterSweeper {
	return &DeadLetterSweeper{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_DEAD_LETTER),
		cfg:           cfg,
		reported:      make(map[string]int64),
	}
}

func (s *DeadLetterSweeper) Start(ctx context.Context) error {
	if s.IsActive() {
		return nil
	}
	if err := s.BaseComponent.Start(ctx); err != nil {
		return err
	}
	s.metrics = newRoundMetrics()
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(loopCtx)
	return nil
}

func (s *DeadLetterSweeper) Stop(ctx context.Context) error {
	if !s.IsActive() {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	return s.BaseComponent.Stop(ctx)
}

func (s *DeadLetterSweeper) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.DeadLetter.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logging.Error(ctx, "dead letter sweep failed: "+err.Error())
			}
		}
	}
}

// Sweep publishes events for newly exhausted instances in the owned partitions and
// returns how many were published.
func (s *DeadLetterSweeper) Sweep(ctx context.Context) (int, error) {
	maxAttempts := resolveMaxAttempts(s.cfg, s.Definitions)
	if len(maxAttempts) == 0 {
		return 0, nil
	}
	var parts []int
	if s.Partitioner != nil {
		var err error
		if parts, err = s.Partitioner.Partitions(ctx); err != nil {
			return 0, fmt.Errorf("resolve partitions: %w", err)
		}
		if parts != nil && len(parts) == 0 {
			return 0, nil
		}
	}

	limit := s.cfg.DeadLetter.BatchSize
	list, err := s.Store.SearchExhausted(ctx, store.ExhaustedQuery{
		TypeMaxAttempts: maxAttempts,
		Partitions:      parts,
		Limit:           limit,
	})
	if err != nil {
		return 0, fmt.Errorf("search exhausted: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	published := 0
	for _, t := range list {
		if v, ok := s.reported[t.ID]; ok && v == t.Version {
			continue
		}
		ev := model.Event{
			Type: bizConsts.EventTaskDeadLetter,
			DeadLetter: &model.TaskDeadLetterEvent{
				TaskID:      t.ID,
				TaskType:    t.TaskType,
				Attempts:    t.Attempts,
				MaxAttempts: maxAttempts[t.TaskType],
				Version:     t.Version,
			},
		}
		if s.Events != nil {
			if err := s.Events.Publish(ctx, ev); err != nil {
				logging.Warn(ctx, "publish TaskDeadLetter event failed", zap.String("task_id", t.ID), zap.Error(err))
				continue
			}
		}
		s.reported[t.ID] = t.Version
		s.metrics.deadLettered(t.TaskType)
		published++
	}
	// 结果未截断时, 不在列表中的实例已被重置或删除
	if limit <= 0 || len(list) < limit {
		current := make(map[string]struct{}, len(list))
		for _, t := range list {
			current[t.ID] = struct{}{}
		}
		for id := range s.reported {
			if _, ok := current[id]; !ok {
				delete(s.reported, id)
			}
		}
	}
	if published > 0 {
		logging.Info(ctx, fmt.Sprintf("dead letter: published %d exhausted task instances", published))
	}
	return published, nil
}
