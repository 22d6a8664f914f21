package consts

// TaskStatus 任务实例状态
type TaskStatus string

const (
	StatusIdle         TaskStatus = "idle"         // 等待调度
	StatusClaiming     TaskStatus = "claiming"     // 已被某节点认领, 尚未开始执行
	StatusRunning      TaskStatus = "running"      // 执行中
	StatusFailed       TaskStatus = "failed"       // 执行失败, 等待重试
	StatusUnrecognized TaskStatus = "unrecognized" // 任务类型未注册
)

// ClaimableStatuses can be claimed as soon as run_at has passed.
var ClaimableStatuses = []TaskStatus{StatusIdle, StatusFailed}

// OwnedStatuses are held by a node; they become claimable again once retry_at expires.
var OwnedStatuses = []TaskStatus{StatusClaiming, StatusRunning}
