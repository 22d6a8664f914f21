package service

import (
	"github.com/prometheus/client_golang/prometheus"

	promComp "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/prometheus"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
)

// roundMetrics is nil-safe: without the prometheus component every call is a no-op.
type roundMetrics struct {
	rounds     *prometheus.CounterVec
	tasks      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	capacity   *prometheus.GaugeVec
	deadLetter *prometheus.CounterVec
}

func newRoundMetrics() *roundMetrics {
	c := promComp.C()
	if c == nil {
		return nil
	}
	return &roundMetrics{
		rounds:     c.NewCounter("claim_rounds_total", "Claiming rounds by strategy and outcome.", []string{"strategy", "outcome"}),
		tasks:      c.NewCounter("claim_tasks_total", "Per-round claim stats summed by kind.", []string{"strategy", "kind"}),
		duration:   c.NewHistogram("claim_round_duration_seconds", "Wall time of a claiming round.", []string{"strategy"}, prometheus.DefBuckets),
		capacity:   c.NewGauge("claim_capacity", "Global capacity at the start of the last round.", []string{"node"}),
		deadLetter: c.NewCounter("dead_letter_events_total", "TaskDeadLetter events published.", []string{"task_type"}),
	}
}

func (m *roundMetrics) observeRound(strategy consts.ClaimStrategy, outcome string, res model.ClaimOwnershipResult) {
	if m == nil {
		return
	}
	s := string(strategy)
	m.rounds.WithLabelValues(s, outcome).Inc()
	for kind, n := range map[string]int{
		"claimed":        res.Stats.TasksClaimed,
		"updated":        res.Stats.TasksUpdated,
		"conflicted":     res.Stats.TasksConflicted,
		"left_unclaimed": res.Stats.TasksLeftUnclaimed,
		"errors":         res.Stats.TasksErrors,
		"stale":          res.Stats.StaleTasks,
	} {
		if n > 0 {
			m.tasks.WithLabelValues(s, kind).Add(float64(n))
		}
	}
	if res.Timing != nil {
		m.duration.WithLabelValues(s).Observe(res.Timing.Elapsed.Seconds())
	}
}

func (m *roundMetrics) setCapacity(node string, n int) {
	if m == nil {
		return
	}
	m.capacity.WithLabelValues(node).Set(float64(n))
}

func (m *roundMetrics) deadLettered(taskType string) {
	if m == nil {
		return
	}
	m.deadLetter.WithLabelValues(taskType).Inc()
}
