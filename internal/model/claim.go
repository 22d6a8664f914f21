package model

import "time"

// ClaimStats 单轮(或单批次)认领统计
type ClaimStats struct {
	TasksUpdated       int `json:"tasksUpdated"`
	TasksConflicted    int `json:"tasksConflicted"`
	TasksClaimed       int `json:"tasksClaimed"`
	TasksLeftUnclaimed int `json:"tasksLeftUnclaimed"`
	TasksErrors        int `json:"tasksErrors"`
	StaleTasks         int `json:"staleTasks"`
}

// Add sums o into s.
func (s *ClaimStats) Add(o ClaimStats) {
	s.TasksUpdated += o.TasksUpdated
	s.TasksConflicted += o.TasksConflicted
	s.TasksClaimed += o.TasksClaimed
	s.TasksLeftUnclaimed += o.TasksLeftUnclaimed
	s.TasksErrors += o.TasksErrors
	s.StaleTasks += o.StaleTasks
}

type ClaimTiming struct {
	Start   time.Time     `json:"start"`
	Elapsed time.Duration `json:"elapsed"`
}

// ClaimOwnershipResult is the outcome of one claiming round.
type ClaimOwnershipResult struct {
	Stats ClaimStats      `json:"stats"`
	Docs  []*TaskInstance `json:"docs"`
	// nil when the round was skipped
	Timing *ClaimTiming `json:"timing,omitempty"`
}

// DocIDs lists the claimed ids in claim order.
func (r ClaimOwnershipResult) DocIDs() []string {
	ids := make([]string, 0, len(r.Docs))
	for _, d := range r.Docs {
		ids = append(ids, d.ID)
	}
	return ids
}

// ClaimBatch is one query/update pair of a round. Limited batches hold exactly one
// task type with a max concurrency; the unlimited batch holds every other claimable type.
type ClaimBatch struct {
	Name      string   `json:"name"`
	TaskTypes []string `json:"task_types"`
	Limited   bool     `json:"limited"`
}
