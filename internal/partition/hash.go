package partition

import (
	"github.com/cespare/xxhash/v2"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
)

// PartitionOf maps a task id onto [0, NumPartitions). Stable across nodes and restarts.
func PartitionOf(id string) int {
	return int(xxhash.Sum64String(id) % consts.NumPartitions)
}
