package registry

import (
	"log"
	"sync"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// target component -> extra runtime deps, applied after build and before StartAll.
var (
	runtimeDepExtMap = map[string][]string{}
	runtimeDepExtMu  sync.Mutex
)

// ExtendRuntimeDependencies makes target start after deps. It only affects start/stop order,
// not builder order (use RegisterWithDeps for that). Declare it from init().
func ExtendRuntimeDependencies(target string, deps ...string) {
	if target == "" || len(deps) == 0 {
		return
	}
	runtimeDepExtMu.Lock()
	runtimeDepExtMap[target] = append(runtimeDepExtMap[target], deps...)
	runtimeDepExtMu.Unlock()
}

// applyRuntimeDepExtensions patches registered targets. Deps that were not registered
// (disabled components) are skipped so optional wiring never breaks validation.
func applyRuntimeDepExtensions(c *core.Container) {
	runtimeDepExtMu.Lock()
	defer runtimeDepExtMu.Unlock()
	for target, extra := range runtimeDepExtMap {
		comp, err := c.Resolve(target)
		if err != nil {
			continue
		}
		extender, ok := comp.(interface{ AddDependencies(...string) })
		if !ok {
			log.Printf("registry: component %s does not support AddDependencies; extension skipped", target)
			continue
		}
		var present []string
		for _, d := range extra {
			if _, err := c.Resolve(d); err == nil {
				present = append(present, d)
			}
		}
		extender.AddDependencies(present...)
	}
}
