// Package capacity computes how many more tasks this node may claim in a round.
package capacity

import (
	"context"
	"fmt"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/definitions"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

// Func returns the remaining budget: "" for the global budget, a type name for
// min(global, type budget). Never negative.
type Func func(taskType string) int

// Accountant is a snapshot taken once per round.
type Accountant struct {
	global  int
	perType map[string]int // 仅限并发类型
}

// New builds an accountant from already computed budgets.
func New(global int, perType map[string]int) *Accountant {
	if global < 0 {
		global = 0
	}
	pt := make(map[string]int, len(perType))
	for t, n := range perType {
		if n < 0 {
			n = 0
		}
		pt[t] = n
	}
	return &Accountant{global: global, perType: pt}
}

// Load derives budgets from running counts.
// global = max_workers - instances this node holds; per type = max_concurrency - cluster-wide holders.
// Only claims that have not expired (retry_at > activeAfter) are counted.
func Load(ctx context.Context, st store.TaskStore, defs *definitions.Registry, nodeID string, maxWorkers int, activeAfter time.Time) (*Accountant, error) {
	own, err := st.CountRunning(ctx, store.RunningQuery{Owner: nodeID, ActiveAfter: activeAfter})
	if err != nil {
		return nil, fmt.Errorf("count own running: %w", err)
	}
	held := 0
	for _, n := range own {
		held += n
	}

	perType := make(map[string]int)
	var cluster map[string]int
	for _, t := range defs.AllTypes() {
		d, _ := defs.Get(t)
		if !d.Limited() {
			continue
		}
		if cluster == nil {
			if cluster, err = st.CountRunning(ctx, store.RunningQuery{ActiveAfter: activeAfter}); err != nil {
				return nil, fmt.Errorf("count cluster running: %w", err)
			}
		}
		perType[t] = d.MaxConcurrency - cluster[t]
	}
	return New(maxWorkers-held, perType), nil
}

// Capacity implements Func.
func (a *Accountant) Capacity(taskType string) int {
	if taskType == "" {
		return a.global
	}
	if n, ok := a.perType[taskType]; ok {
		return min(a.global, n)
	}
	return a.global
}

func (a *Accountant) Global() int { return a.global }
