package consts

// ClaimStrategy 认领策略
type ClaimStrategy string

const (
	StrategyUpdateByQuery ClaimStrategy = "update_by_query"
	StrategyMget          ClaimStrategy = "mget"

	DefaultClaimStrategy = StrategyUpdateByQuery
)

// EventType 事件类型
type EventType string

const (
	EventTaskClaim      EventType = "TaskClaim"
	EventTaskDeadLetter EventType = "TaskDeadLetter"
)

// NumPartitions is the fixed size of the partition space.
const NumPartitions = 256

const (
	StoreDriverMemory   = "memory"
	StoreDriverMySQL    = "mysql"
	StoreDriverPostgres = "postgres"

	EventSinkMemory = "memory"
	EventSinkRedis  = "redis"
)
