package redis

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *Config) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("redis component disabled")
	}
	cfg.applyDefaults()
	return NewRedisComponent(cfg), nil
}
