package definitions

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	bizConsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
)

// Definition 任务类型元数据(只读)
type Definition struct {
	Type           string
	MaxConcurrency int // 0 = 不限
	Timeout        time.Duration
	MaxAttempts    int
	Priority       int
}

// Limited reports whether the type has its own concurrency cap.
func (d Definition) Limited() bool { return d.MaxConcurrency > 0 }

// Registry is the read-only set of registered task types.
type Registry struct {
	*core.BaseComponent
	defs map[string]Definition
}

func NewRegistry(list []config.DefinitionConfig) *Registry {
	r := &Registry{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_DEFINITIONS, consts.COMPONENT_LOGGING),
		defs:          make(map[string]Definition, len(list)),
	}
	for _, d := range list {
		r.defs[d.Type] = Definition{
			Type:           d.Type,
			MaxConcurrency: d.MaxConcurrency,
			Timeout:        d.Timeout,
			MaxAttempts:    d.MaxAttempts,
			Priority:       d.Priority,
		}
	}
	return r
}

// NewStatic builds a registry outside the container (CLI and tests).
func NewStatic(defs ...Definition) *Registry {
	r := &Registry{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_SVC_DEFINITIONS),
		defs:          make(map[string]Definition, len(defs)),
	}
	for _, d := range defs {
		r.defs[d.Type] = d
	}
	return r
}

func (r *Registry) Start(ctx context.Context) error {
	if err := r.BaseComponent.Start(ctx); err != nil {
		return err
	}
	logging.Info(ctx, "task definitions loaded", zap.Strings("types", r.AllTypes()))
	return nil
}

// AllTypes returns every registered type, sorted.
func (r *Registry) AllTypes() []string {
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Get(taskType string) (Definition, bool) {
	d, ok := r.defs[taskType]
	return d, ok
}

func (r *Registry) Has(taskType string) bool {
	_, ok := r.defs[taskType]
	return ok
}
