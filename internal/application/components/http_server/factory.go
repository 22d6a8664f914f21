package http_server

import "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *HTTPServerConfig, c *core.Container) *HTTPServerComponent {
	cfg.applyDefaults()
	return NewHTTPServerComponent(cfg, c)
}
