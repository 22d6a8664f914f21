package service

import (
	"context"
	"testing"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/definitions"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/events"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/partition"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

type fixedNodes []string

func (fixedNodes) Heartbeat(context.Context) error           { return nil }
func (f fixedNodes) Nodes(context.Context) ([]string, error) { return f, nil }

func newTestSweeper(cfg *config.BizConfig, st store.TaskStore, defs ...definitions.Definition) (*DeadLetterSweeper, *events.Bus) {
	bus := events.NewBus(cfg.Events, cfg.NodeID)
	_ = bus.Start(context.Background())
	s := NewDeadLetterSweeper(cfg)
	s.Store = st
	s.Definitions = definitions.NewStatic(defs...)
	s.Events = bus
	return s, bus
}

func TestSweepPublishesOncePerVersion(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	st.Put(&model.TaskInstance{ID: "dead", TaskType: "report", Status: consts.StatusFailed, Attempts: 3, RunAt: now, Enabled: true})
	st.Put(&model.TaskInstance{ID: "alive", TaskType: "report", Status: consts.StatusFailed, Attempts: 1, RunAt: now, Enabled: true})

	s, bus := newTestSweeper(testConfig(), st, definitions.Definition{Type: "report", MaxAttempts: 3})
	ctx := context.Background()

	n, err := s.Sweep(ctx)
	if err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	ev := <-bus.Events()
	if ev.Type != consts.EventTaskDeadLetter || ev.DeadLetter.TaskID != "dead" || ev.DeadLetter.MaxAttempts != 3 {
		t.Fatalf("event=%+v", ev.DeadLetter)
	}

	if n, _ := s.Sweep(ctx); n != 0 {
		t.Fatalf("same version published again (%d)", n)
	}

	// reset by an operator, then exhausted again under a new version
	got, _ := st.Get("dead")
	got.Version++
	st.Put(got)
	if n, _ := s.Sweep(ctx); n != 1 {
		t.Fatalf("new version not published (%d)", n)
	}
}

func TestSweepWithoutCapsIsNoop(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	st.Put(&model.TaskInstance{ID: "x", TaskType: "report", Status: consts.StatusFailed, Attempts: 50, RunAt: now, Enabled: true})
	s, _ := newTestSweeper(testConfig(), st, definitions.Definition{Type: "report"})
	if n, err := s.Sweep(context.Background()); n != 0 || err != nil {
		t.Fatalf("n=%d err=%v", n, err)
	}
}

func TestSweepHonoursOwnedPartitions(t *testing.T) {
	now := time.Now().UTC()
	st := store.NewMemoryStore()
	st.Put(&model.TaskInstance{ID: "x", TaskType: "report", Status: consts.StatusFailed, Attempts: 3, RunAt: now, Enabled: true})

	cfg := testConfig()
	cfg.Partitioning.Enabled = true
	cfg.Partitioning.NodesPerPartition = 1
	s, _ := newTestSweeper(cfg, st, definitions.Definition{Type: "report", MaxAttempts: 3})

	x, _ := st.Get("x")
	// 两节点各持一半分区, 选一个让 x 落在对方那一半的 peer
	var p *partition.Partitioner
	for _, other := range []string{"aaa", "zzz"} {
		owned := partition.Assign([]string{cfg.NodeID, other}, cfg.NodeID, 1)
		if !containsPartition(owned, x.PartitionNo()) {
			p = partition.NewWithMembership(cfg.Partitioning, cfg.NodeID, fixedNodes{cfg.NodeID, other})
			break
		}
	}
	if p == nil {
		t.Fatal("no peer owns the partition")
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer p.Stop(context.Background())
	s.Partitioner = p

	if n, err := s.Sweep(context.Background()); n != 0 || err != nil {
		t.Fatalf("swept a partition owned elsewhere: n=%d err=%v", n, err)
	}
}

func containsPartition(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
