package model

import (
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
)

// Event 发布到事件流的消息
type Event struct {
	Type       consts.EventType     `json:"type"`
	NodeID     string               `json:"node_id"`
	At         time.Time            `json:"at"`
	Claim      *TaskClaimEvent      `json:"claim,omitempty"`
	DeadLetter *TaskDeadLetterEvent `json:"dead_letter,omitempty"`
}

// TaskClaimEvent is published once per completed round.
type TaskClaimEvent struct {
	Strategy   consts.ClaimStrategy `json:"strategy"`
	Stats      ClaimStats           `json:"stats"`
	ClaimedIDs []string             `json:"claimed_ids"`
	Until      time.Time            `json:"claim_ownership_until"`
	Elapsed    time.Duration        `json:"elapsed"`
}

// TaskDeadLetterEvent surfaces an instance that reached its max attempts.
type TaskDeadLetterEvent struct {
	TaskID      string `json:"task_id"`
	TaskType    string `json:"task_type"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Version     int64  `json:"version"`
}
