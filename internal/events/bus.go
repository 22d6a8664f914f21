package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/redis"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
)

// Bus 认领事件流: 进程内 channel, sink=redis 时同时 XADD 到 stream 供下游消费
type Bus struct {
	*core.BaseComponent
	Redis *redis.RedisComponent `infra:"dep:redis?"`

	cfg    config.EventsConfig
	nodeID string
	ch     chan model.Event
	stream goredis.UniversalClient

	dropped atomic.Int64
	mu      sync.RWMutex
	closed  bool
}

func NewBus(cfg config.EventsConfig, nodeID string) *Bus {
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	return &Bus{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_EVENTS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		nodeID:        nodeID,
		ch:            make(chan model.Event, size),
	}
}

func (b *Bus) Start(ctx context.Context) error {
	if err := b.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if b.cfg.Sink == bizConsts.EventSinkRedis {
		if b.Redis == nil || b.Redis.Client() == nil {
			return errors.New("events.sink=redis requires the redis component")
		}
		b.stream = b.Redis.Client()
		logging.Info(ctx, "claim events mirrored to redis stream", zap.String("stream", b.cfg.Stream))
	}
	return nil
}

func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	b.mu.Unlock()
	if n := b.dropped.Load(); n > 0 {
		logging.Warn(ctx, "claim events dropped on full buffer", zap.Int64("dropped", n))
	}
	return b.BaseComponent.Stop(ctx)
}

// Publish never blocks the claiming round: a full in-process buffer drops the event.
// The redis stream write is synchronous and its error is returned.
func (b *Bus) Publish(ctx context.Context, ev model.Event) error {
	if ev.NodeID == "" {
		ev.NodeID = b.nodeID
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	if !b.closed {
		select {
		case b.ch <- ev:
		default:
			b.dropped.Add(1)
		}
	}
	b.mu.RUnlock()

	if b.stream == nil {
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	err = b.stream.XAdd(ctx, &goredis.XAddArgs{
		Stream: b.cfg.Stream,
		MaxLen: b.cfg.MaxLen,
		Approx: true,
		Values: map[string]any{
			"type":    string(ev.Type),
			"node_id": ev.NodeID,
			"payload": payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", b.cfg.Stream, err)
	}
	return nil
}

// Events is the in-process stream; closed on Stop.
func (b *Bus) Events() <-chan model.Event { return b.ch }

func (b *Bus) Dropped() int64 { return b.dropped.Load() }
