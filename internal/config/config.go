package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/exclusion"
)

// BizConfig is decoded from the biz_config section.
type BizConfig struct {
	NodeID       string             `yaml:"node_id" json:"node_id"` // empty: <hostname>-<uuid>
	Claiming     ClaimingConfig     `yaml:"claiming" json:"claiming"`
	Partitioning PartitioningConfig `yaml:"partitioning" json:"partitioning"`
	Definitions  []DefinitionConfig `yaml:"definitions" json:"definitions"`
	DeadLetter   DeadLetterConfig   `yaml:"dead_letter" json:"dead_letter"`
	Events       EventsConfig       `yaml:"events" json:"events"`
	Store        StoreConfig        `yaml:"store" json:"store"`
}

type ClaimingConfig struct {
	Strategy     string        `yaml:"strategy" json:"strategy"` // update_by_query | mget
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	RoundTimeout time.Duration `yaml:"round_timeout" json:"round_timeout"`
	// claimOwnershipUntil = round start + ClaimOwnershipDuration
	ClaimOwnershipDuration time.Duration `yaml:"claim_ownership_duration" json:"claim_ownership_duration"`
	// claiming/running tasks whose retry_at is older than now-StaleClaimGrace can be reclaimed
	StaleClaimGrace    time.Duration  `yaml:"stale_claim_grace" json:"stale_claim_grace"`
	MaxWorkers         int            `yaml:"max_workers" json:"max_workers"`
	ExcludedTaskTypes  []string       `yaml:"excluded_task_types" json:"excluded_task_types"`
	TaskMaxAttempts    map[string]int `yaml:"task_max_attempts" json:"task_max_attempts"`
	DefaultMaxAttempts int            `yaml:"default_max_attempts" json:"default_max_attempts"` // 0 = unlimited
	UpdateConcurrency  int            `yaml:"update_concurrency" json:"update_concurrency"`     // mget conditional updates in flight
	SearchLookahead    int            `yaml:"search_lookahead" json:"search_lookahead"`         // mget extra candidates per batch
	RunLoop            *bool          `yaml:"run_loop" json:"run_loop"`                         // false: rounds only on demand
}

type PartitioningConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	NodesPerPartition int           `yaml:"nodes_per_partition" json:"nodes_per_partition"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	NodeTTL           time.Duration `yaml:"node_ttl" json:"node_ttl"`
	MembershipKey     string        `yaml:"membership_key" json:"membership_key"`
	StaticNodes       []string      `yaml:"static_nodes" json:"static_nodes"` // used when redis is disabled
}

type DefinitionConfig struct {
	Type           string        `yaml:"type" json:"type"`
	MaxConcurrency int           `yaml:"max_concurrency" json:"max_concurrency"` // 0 = unbounded
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	Priority       int           `yaml:"priority" json:"priority"`
}

type DeadLetterConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Interval  time.Duration `yaml:"interval" json:"interval"`
	BatchSize int           `yaml:"batch_size" json:"batch_size"`
}

type EventsConfig struct {
	Sink       string `yaml:"sink" json:"sink"` // memory | redis
	Stream     string `yaml:"stream" json:"stream"`
	MaxLen     int64  `yaml:"max_len" json:"max_len"`
	BufferSize int    `yaml:"buffer_size" json:"buffer_size"`
}

type StoreConfig struct {
	Driver      string `yaml:"driver" json:"driver"` // memory | mysql | postgres
	DataSource  string `yaml:"data_source" json:"data_source"`
	AutoMigrate bool   `yaml:"auto_migrate" json:"auto_migrate"`
}

var bizConfig = Default()

// GetBizConfig returns the process-wide biz config pointer handed to the loader.
func GetBizConfig() *BizConfig { return bizConfig }

// Default returns a config with every default filled in.
func Default() *BizConfig {
	c := &BizConfig{}
	c.applyDefaults()
	return c
}

func (c *BizConfig) applyDefaults() {
	cl := &c.Claiming
	if cl.Strategy == "" {
		cl.Strategy = string(consts.DefaultClaimStrategy)
	}
	if cl.PollInterval <= 0 {
		cl.PollInterval = 3 * time.Second
	}
	if cl.RoundTimeout <= 0 {
		cl.RoundTimeout = 30 * time.Second
	}
	if cl.ClaimOwnershipDuration <= 0 {
		cl.ClaimOwnershipDuration = 30 * time.Second
	}
	if cl.MaxWorkers <= 0 {
		cl.MaxWorkers = 10
	}
	if cl.UpdateConcurrency <= 0 {
		cl.UpdateConcurrency = 10
	}
	if cl.RunLoop == nil {
		on := true
		cl.RunLoop = &on
	}

	p := &c.Partitioning
	if p.NodesPerPartition <= 0 {
		p.NodesPerPartition = 2
	}
	if p.HeartbeatInterval <= 0 {
		p.HeartbeatInterval = 10 * time.Second
	}
	if p.NodeTTL <= 0 {
		p.NodeTTL = 3 * p.HeartbeatInterval
	}
	if p.MembershipKey == "" {
		p.MembershipKey = "taskmanager:nodes"
	}

	if c.DeadLetter.Interval <= 0 {
		c.DeadLetter.Interval = time.Minute
	}
	if c.DeadLetter.BatchSize <= 0 {
		c.DeadLetter.BatchSize = 100
	}

	if c.Events.Sink == "" {
		c.Events.Sink = consts.EventSinkMemory
	}
	if c.Events.Stream == "" {
		c.Events.Stream = "taskmanager:events"
	}
	if c.Events.MaxLen <= 0 {
		c.Events.MaxLen = 10000
	}
	if c.Events.BufferSize <= 0 {
		c.Events.BufferSize = 256
	}

	if c.Store.Driver == "" {
		c.Store.Driver = consts.StoreDriverMemory
	}
	if c.Store.DataSource == "" {
		c.Store.DataSource = "taskmanager"
	}

	if c.NodeID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "node"
		}
		c.NodeID = host + "-" + uuid.NewString()
	}
}

// Validate applies defaults for anything the file left out, then checks the result.
// The strategy name is not checked here: unknown names fall back at claim time.
func (c *BizConfig) Validate() error {
	c.applyDefaults()
	if c.Claiming.StaleClaimGrace < 0 {
		return fmt.Errorf("claiming.stale_claim_grace must be >= 0")
	}
	for _, p := range c.Claiming.ExcludedTaskTypes {
		if err := exclusion.Valid(p); err != nil {
			return fmt.Errorf("claiming.excluded_task_types: invalid pattern %q: %w", p, err)
		}
	}
	for t, n := range c.Claiming.TaskMaxAttempts {
		if n < 0 {
			return fmt.Errorf("claiming.task_max_attempts[%s] must be >= 0", t)
		}
	}
	seen := make(map[string]struct{}, len(c.Definitions))
	for i, d := range c.Definitions {
		if strings.TrimSpace(d.Type) == "" {
			return fmt.Errorf("definitions[%d].type is empty", i)
		}
		if _, dup := seen[d.Type]; dup {
			return fmt.Errorf("definitions: duplicate type %q", d.Type)
		}
		seen[d.Type] = struct{}{}
		if d.MaxConcurrency < 0 || d.MaxAttempts < 0 {
			return fmt.Errorf("definitions[%s]: max_concurrency and max_attempts must be >= 0", d.Type)
		}
	}
	switch c.Store.Driver {
	case consts.StoreDriverMemory, consts.StoreDriverMySQL, consts.StoreDriverPostgres:
	default:
		return fmt.Errorf("store.driver %q not supported", c.Store.Driver)
	}
	switch c.Events.Sink {
	case consts.EventSinkMemory, consts.EventSinkRedis:
	default:
		return fmt.Errorf("events.sink %q not supported", c.Events.Sink)
	}
	return nil
}

// MaxAttemptsFor resolves the attempt cap of a type: task_max_attempts, then the
// definition, then default_max_attempts. 0 means unlimited.
func (c *BizConfig) MaxAttemptsFor(taskType string, definitionMax int) int {
	if n, ok := c.Claiming.TaskMaxAttempts[taskType]; ok {
		return n
	}
	if definitionMax > 0 {
		return definitionMax
	}
	return c.Claiming.DefaultMaxAttempts
}
