// core/component.go
package core

import (
	"context"
	"fmt"
	"sync"
)

// Component 定义组件的基本接口
type Component interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	HealthCheck() error
	Dependencies() []string
	IsActive() bool
}

// BaseComponent 提供组件的基础实现
type BaseComponent struct {
	name string

	mu     sync.RWMutex
	active bool
	deps   []string
}

// NewBaseComponent 创建基础组件
func NewBaseComponent(name string, deps ...string) *BaseComponent {
	return &BaseComponent{name: name, deps: deps}
}

func (c *BaseComponent) Name() string {
	return c.name
}

func (c *BaseComponent) Dependencies() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.deps))
	copy(out, c.deps)
	return out
}

func (c *BaseComponent) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *BaseComponent) SetActive(active bool) {
	c.mu.Lock()
	c.active = active
	c.mu.Unlock()
}

func (c *BaseComponent) Start(ctx context.Context) error {
	c.SetActive(true)
	return nil
}

func (c *BaseComponent) Stop(ctx context.Context) error {
	c.SetActive(false)
	return nil
}

func (c *BaseComponent) HealthCheck() error {
	if !c.IsActive() {
		return fmt.Errorf("component %s is not active", c.name)
	}
	return nil
}

// AddDependencies appends start-order edges. Only meaningful before LifecycleManager.StartAll;
// duplicates are dropped.
func (c *BaseComponent) AddDependencies(deps ...string) {
	if len(deps) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range deps {
		if d == "" || d == c.name {
			continue
		}
		dup := false
		for _, existing := range c.deps {
			if existing == d {
				dup = true
				break
			}
		}
		if !dup {
			c.deps = append(c.deps, d)
		}
	}
}
