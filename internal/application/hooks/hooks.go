// hooks/hooks.go
package hooks

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HookFunc 钩子函数类型
type HookFunc func(ctx context.Context) error

// Phase 生命周期阶段
type Phase string

const (
	BeforeStart    Phase = "before_start"
	AfterStart     Phase = "after_start"
	BeforeShutdown Phase = "before_shutdown"
	AfterShutdown  Phase = "after_shutdown"
)

// Hook 钩子结构
type Hook struct {
	Name     string
	Phase    Phase
	Function HookFunc
	Priority int // lower runs first
}

// Manager 钩子管理器
type Manager struct {
	hooks map[Phase][]*Hook
	mutex sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{hooks: make(map[Phase][]*Hook)}
}

func (m *Manager) Register(hook *Hook) error {
	if hook == nil {
		return fmt.Errorf("hook cannot be nil")
	}
	if hook.Function == nil {
		return fmt.Errorf("hook function cannot be nil")
	}
	switch hook.Phase {
	case BeforeStart, AfterStart, BeforeShutdown, AfterShutdown:
	default:
		return fmt.Errorf("invalid hook phase: %s", hook.Phase)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()
	list := append(m.hooks[hook.Phase], hook)
	sort.SliceStable(list, func(i, j int) bool { return list[i].Priority < list[j].Priority })
	m.hooks[hook.Phase] = list
	return nil
}

// Execute runs every hook of the phase in priority order, stopping at the first error.
func (m *Manager) Execute(ctx context.Context, phase Phase) error {
	m.mutex.RLock()
	list := make([]*Hook, len(m.hooks[phase]))
	copy(list, m.hooks[phase])
	m.mutex.RUnlock()

	for _, hook := range list {
		if err := hook.Function(ctx); err != nil {
			return fmt.Errorf("hook %s failed: %w", hook.Name, err)
		}
	}
	return nil
}
