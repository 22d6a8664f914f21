package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/partition"
)

// TaskInstance 一条持久化的任务实例, 认领只负责 idle|failed|stale -> claiming。
type TaskInstance struct {
	ID                string            `gorm:"primaryKey;size:64" json:"id"`
	TaskType          string            `gorm:"size:128;index:idx_task_claim,priority:1" json:"task_type"`
	ScheduledAt       time.Time         `json:"scheduled_at"`                                  // 计划时间
	RunAt             time.Time         `gorm:"index:idx_task_claim,priority:3" json:"run_at"` // 可执行时间
	Status            consts.TaskStatus `gorm:"size:32;index:idx_task_claim,priority:2" json:"status"`
	Owner             string            `gorm:"size:191;index" json:"owner,omitempty"` // 认领节点, 空表示无人持有
	Attempts          int               `json:"attempts"`
	LastRunDurationMs int64             `json:"last_run_duration_ms"`
	Version           int64             `gorm:"not null;default:1" json:"version"` // 乐观锁版本, 每次认领 +1
	// 认领过期时间; claiming/running 状态下过期即可被其它节点回收
	RetryAt *time.Time `gorm:"index" json:"retry_at,omitempty"`
	// partition is reserved in MySQL
	Partition *int      `gorm:"column:partition_no;index" json:"partition,omitempty"`
	Priority  int       `json:"priority"`
	Enabled   bool      `gorm:"not null;default:true" json:"enabled"`
	Params    string    `gorm:"type:text" json:"params,omitempty"`
	State     string    `gorm:"type:text" json:"state,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (TaskInstance) TableName() string { return "task_instances" }

// BeforeCreate fills the derived partition so partition filters work on SQL stores.
func (t *TaskInstance) BeforeCreate(*gorm.DB) error {
	t.EnsurePartition()
	return nil
}

// EnsurePartition derives Partition from the id when it was not set explicitly.
func (t *TaskInstance) EnsurePartition() {
	if t.Partition == nil {
		p := partition.PartitionOf(t.ID)
		t.Partition = &p
	}
}

// PartitionNo returns the explicit partition or the one derived from the id.
func (t *TaskInstance) PartitionNo() int {
	if t.Partition != nil {
		return *t.Partition
	}
	return partition.PartitionOf(t.ID)
}

// Clone returns a deep copy; stores hand out copies so callers cannot mutate stored rows.
func (t *TaskInstance) Clone() *TaskInstance {
	if t == nil {
		return nil
	}
	cp := *t
	if t.RetryAt != nil {
		r := *t.RetryAt
		cp.RetryAt = &r
	}
	if t.Partition != nil {
		p := *t.Partition
		cp.Partition = &p
	}
	return &cp
}
