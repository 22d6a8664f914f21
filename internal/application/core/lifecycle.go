// core/lifecycle.go
package core

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/hooks"
)

// LifecycleManager 生命周期管理器
// core cannot import the logging component, so bootstrap messages go to the std logger.
type LifecycleManager struct {
	container   *Container
	hookManager *hooks.Manager
	timeout     time.Duration

	mu       sync.Mutex
	started  []Component
	stopOnce sync.Once
}

// NewLifecycleManager 创建新的生命周期管理器
func NewLifecycleManager(container *Container) *LifecycleManager {
	return &LifecycleManager{
		container:   container,
		hookManager: hooks.NewManager(),
		timeout:     30 * time.Second,
	}
}

// SetTimeout 设置组件启动/停止超时时间
func (lm *LifecycleManager) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		lm.timeout = timeout
	}
}

// AddHook 添加生命周期钩子
func (lm *LifecycleManager) AddHook(name string, phase hooks.Phase, fn hooks.HookFunc, priority int) error {
	return lm.hookManager.Register(&hooks.Hook{Name: name, Phase: phase, Function: fn, Priority: priority})
}

// StartAll validates the dependency graph and starts components in order.
// On failure the components already started are stopped in reverse order.
func (lm *LifecycleManager) StartAll(ctx context.Context) error {
	if err := lm.hookManager.Execute(ctx, hooks.BeforeStart); err != nil {
		return fmt.Errorf("before_start hooks failed: %w", err)
	}

	components, err := lm.container.ValidateDependencies()
	if err != nil {
		return fmt.Errorf("failed to order components: %w", err)
	}

	for _, comp := range components {
		startCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		err := comp.Start(startCtx)
		cancel()
		if err != nil {
			lm.stopStarted(context.Background())
			return fmt.Errorf("failed to start component %s: %w", comp.Name(), err)
		}
		lm.mu.Lock()
		lm.started = append(lm.started, comp)
		lm.mu.Unlock()
		log.Printf("component %s started", comp.Name())
	}

	if err := lm.hookManager.Execute(ctx, hooks.AfterStart); err != nil {
		log.Printf("after_start hooks failed: %v", err)
	}
	return nil
}

// StopAll 停止所有组件（只执行一次）
func (lm *LifecycleManager) StopAll(ctx context.Context) {
	lm.stopOnce.Do(func() {
		if err := lm.hookManager.Execute(ctx, hooks.BeforeShutdown); err != nil {
			log.Printf("before_shutdown hooks failed: %v", err)
		}
		lm.stopStarted(ctx)
		if err := lm.hookManager.Execute(ctx, hooks.AfterShutdown); err != nil {
			log.Printf("after_shutdown hooks failed: %v", err)
		}
		log.Println("shutdown completed")
	})
}

func (lm *LifecycleManager) stopStarted(ctx context.Context) {
	lm.mu.Lock()
	started := lm.started
	lm.started = nil
	lm.mu.Unlock()

	for i := len(started) - 1; i >= 0; i-- {
		comp := started[i]
		if !comp.IsActive() {
			continue
		}
		stopCtx, cancel := context.WithTimeout(ctx, lm.timeout)
		if err := comp.Stop(stopCtx); err != nil {
			log.Printf("error stopping component %s: %v", comp.Name(), err)
		}
		cancel()
	}
}
