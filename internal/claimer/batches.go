package claimer

import (
	"sort"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/definitions"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/exclusion"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/model"
)

const unlimitedBatchName = "unlimited"

// BuildBatches gives every limited-concurrency type its own batch (priority desc, then name)
// followed by one batch for all remaining types. Excluded types are left out entirely.
func BuildBatches(defs *definitions.Registry, excludedPatterns []string) []model.ClaimBatch {
	var limited []definitions.Definition
	var unlimited []string
	for _, t := range defs.AllTypes() {
		if exclusion.IsTaskTypeExcluded(excludedPatterns, t) {
			continue
		}
		d, _ := defs.Get(t)
		if d.Limited() {
			limited = append(limited, d)
		} else {
			unlimited = append(unlimited, t)
		}
	}
	sort.SliceStable(limited, func(i, j int) bool {
		if limited[i].Priority != limited[j].Priority {
			return limited[i].Priority > limited[j].Priority
		}
		return limited[i].Type < limited[j].Type
	})

	batches := make([]model.ClaimBatch, 0, len(limited)+1)
	for _, d := range limited {
		batches = append(batches, model.ClaimBatch{Name: "limited:" + d.Type, TaskTypes: []string{d.Type}, Limited: true})
	}
	if len(unlimited) > 0 {
		batches = append(batches, model.ClaimBatch{Name: unlimitedBatchName, TaskTypes: unlimited})
	}
	return batches
}

// plannedBatch is a batch with the types it may still claim and its reserved size.
type plannedBatch struct {
	model.ClaimBatch
	size int
}

// planBatches reserves capacity batch by batch against the global budget so the aggregate
// never exceeds it. Batches that end up with zero size are dropped and never queried.
func planBatches(opts Opts) []plannedBatch {
	globalLeft := opts.Capacity("")
	var out []plannedBatch
	for _, b := range opts.Batches {
		if globalLeft <= 0 {
			break
		}
		types := claimableTypes(opts, b.TaskTypes)
		if len(types) == 0 {
			continue
		}
		size := globalLeft
		if b.Limited {
			for _, t := range types {
				size = min(size, opts.Capacity(t))
			}
		}
		if size <= 0 {
			continue
		}
		globalLeft -= size
		pb := plannedBatch{ClaimBatch: b, size: size}
		pb.TaskTypes = types
		out = append(out, pb)
	}
	return out
}

// claimableTypes drops excluded and unregistered types.
func claimableTypes(opts Opts, types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		if containsString(opts.ExcludedTaskTypes, t) {
			continue
		}
		if opts.Definitions != nil && !opts.Definitions.Has(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
