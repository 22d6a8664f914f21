package partition

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/redis"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
)

// Partitioner tells a claiming round which partitions this node owns.
type Partitioner struct {
	*core.BaseComponent
	Redis *redis.RedisComponent `infra:"dep:redis?"`

	cfg        config.PartitioningConfig
	nodeID     string
	membership Membership

	mu   sync.RWMutex
	last []int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPartitioner(cfg config.PartitioningConfig, nodeID string) *Partitioner {
	return &Partitioner{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_PARTITIONER, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		nodeID:        nodeID,
	}
}

// NewWithMembership is used outside the container.
func NewWithMembership(cfg config.PartitioningConfig, nodeID string, m Membership) *Partitioner {
	p := NewPartitioner(cfg, nodeID)
	p.membership = m
	return p
}

func (p *Partitioner) Start(ctx context.Context) error {
	if err := p.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if p.membership == nil {
		if p.Redis != nil && p.Redis.Client() != nil {
			p.membership = newRedisMembership(p.Redis.Client(), p.cfg.MembershipKey, p.nodeID, p.cfg.NodeTTL)
		} else {
			p.membership = staticMembership{nodes: p.cfg.StaticNodes}
		}
	}
	if !p.cfg.Enabled {
		logging.Info(ctx, "partitioning disabled, claiming across all partitions")
		return nil
	}
	if err := p.membership.Heartbeat(ctx); err != nil {
		logging.Warn(ctx, "initial heartbeat failed", zap.Error(err))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := p.membership.Heartbeat(loopCtx); err != nil {
					logging.Warn(loopCtx, "membership heartbeat failed", zap.Error(err))
				}
			}
		}
	}()
	logging.Info(ctx, "partitioner started",
		zap.String("node_id", p.nodeID),
		zap.Int("nodes_per_partition", p.cfg.NodesPerPartition),
	)
	return nil
}

func (p *Partitioner) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if rm, ok := p.membership.(*redisMembership); ok && p.cfg.Enabled {
		if err := rm.Leave(ctx); err != nil {
			logging.Warn(ctx, "leave membership failed", zap.Error(err))
		}
	}
	return p.BaseComponent.Stop(ctx)
}

// Partitions returns the partitions owned now, or nil when partitioning is disabled
// (callers treat nil as all partitions). Ownership is recomputed on every call; if the
// membership source fails, the last known assignment is returned.
func (p *Partitioner) Partitions(ctx context.Context) ([]int, error) {
	if !p.cfg.Enabled {
		return nil, nil
	}
	if p.membership == nil {
		return nil, fmt.Errorf("partitioner not started")
	}
	nodes, err := p.membership.Nodes(ctx)
	if err != nil {
		p.mu.RLock()
		last := p.last
		p.mu.RUnlock()
		if last == nil {
			return nil, err
		}
		logging.Warn(ctx, "membership unavailable, reusing last partitions", zap.Error(err))
		return append([]int(nil), last...), nil
	}
	owned := Assign(nodes, p.nodeID, p.cfg.NodesPerPartition)
	p.mu.Lock()
	p.last = owned
	p.mu.Unlock()
	return append([]int(nil), owned...), nil
}

func (p *Partitioner) NodeID() string { return p.nodeID }

func (p *Partitioner) Enabled() bool { return p.cfg.Enabled }

// Assign returns the partitions nodeID owns when every partition is given to
// nodesPerPartition consecutive nodes of the sorted live list. nodeID always counts as live.
func Assign(nodes []string, nodeID string, nodesPerPartition int) []int {
	set := map[string]struct{}{nodeID: {}}
	for _, n := range nodes {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(set))
	for n := range set {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	k := nodesPerPartition
	if k <= 0 {
		k = 1
	}
	if k > len(sorted) {
		k = len(sorted)
	}
	owned := make([]int, 0, bizConsts.NumPartitions*k/len(sorted)+1)
	for part := 0; part < bizConsts.NumPartitions; part++ {
		for i := 0; i < k; i++ {
			if sorted[(part+i)%len(sorted)] == nodeID {
				owned = append(owned, part)
				break
			}
		}
	}
	return owned
}
