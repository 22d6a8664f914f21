package claimer

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
)

// set on the first unknown strategy name, never reset
var warnedOnInvalidClaimer atomic.Bool

// GetTaskClaimer resolves a strategy name. Unknown names fall back to update_by_query
// and log a warning once per process.
func GetTaskClaimer(strategy string) TaskClaimer {
	switch consts.ClaimStrategy(strategy) {
	case consts.StrategyUpdateByQuery:
		return ClaimAvailableTasksUpdateByQuery
	case consts.StrategyMget:
		return ClaimAvailableTasksMget
	}
	if warnedOnInvalidClaimer.CompareAndSwap(false, true) {
		logging.Warn(context.Background(), fmt.Sprintf("Unknown task claiming strategy %q, falling back to %s", strategy, consts.StrategyUpdateByQuery))
	}
	return ClaimAvailableTasksUpdateByQuery
}

// ResolveStrategy returns the name GetTaskClaimer would run.
func ResolveStrategy(strategy string) consts.ClaimStrategy {
	switch s := consts.ClaimStrategy(strategy); s {
	case consts.StrategyUpdateByQuery, consts.StrategyMget:
		return s
	}
	return consts.DefaultClaimStrategy
}
