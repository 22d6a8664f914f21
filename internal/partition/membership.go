package partition

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Membership reports the live node ids of the cluster.
type Membership interface {
	Heartbeat(ctx context.Context) error
	Nodes(ctx context.Context) ([]string, error)
}

// staticMembership is a fixed node list from config.
type staticMembership struct {
	nodes []string
}

func (s staticMembership) Heartbeat(context.Context) error { return nil }

func (s staticMembership) Nodes(context.Context) ([]string, error) {
	return append([]string(nil), s.nodes...), nil
}

// redisMembership keeps one sorted-set member per node, scored by its last heartbeat (unix ms).
// Members older than ttl are pruned on every heartbeat and ignored on read.
type redisMembership struct {
	client goredis.UniversalClient
	key    string
	nodeID string
	ttl    time.Duration
	now    func() time.Time
}

func newRedisMembership(client goredis.UniversalClient, key, nodeID string, ttl time.Duration) *redisMembership {
	return &redisMembership{client: client, key: key, nodeID: nodeID, ttl: ttl, now: time.Now}
}

func (m *redisMembership) Heartbeat(ctx context.Context) error {
	now := m.now()
	pipe := m.client.TxPipeline()
	pipe.ZAdd(ctx, m.key, goredis.Z{Score: float64(now.UnixMilli()), Member: m.nodeID})
	pipe.ZRemRangeByScore(ctx, m.key, "-inf", "("+strconv.FormatInt(now.Add(-m.ttl).UnixMilli(), 10))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("membership heartbeat: %w", err)
	}
	return nil
}

func (m *redisMembership) Nodes(ctx context.Context) ([]string, error) {
	minScore := strconv.FormatInt(m.now().Add(-m.ttl).UnixMilli(), 10)
	nodes, err := m.client.ZRangeByScore(ctx, m.key, &goredis.ZRangeBy{Min: minScore, Max: "+inf"}).Result()
	if err != nil {
		return nil, fmt.Errorf("membership nodes: %w", err)
	}
	return nodes, nil
}

// Leave removes this node so peers rebalance without waiting for the ttl.
func (m *redisMembership) Leave(ctx context.Context) error {
	return m.client.ZRem(ctx, m.key, m.nodeID).Err()
}
