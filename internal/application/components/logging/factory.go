// components/logging/factory.go
package logging

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// Factory 日志组件工厂
type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

// Create applies defaults, validates and builds the component.
func (f *Factory) Create(cfg *LoggingConfig) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("logging component is disabled")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewLoggerComponent(cfg), nil
}
