package prometheus

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("prometheus component disabled")
	}
	cfg.applyDefaults()
	return NewComponent(cfg), nil
}
