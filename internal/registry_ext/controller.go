package registry_ext

import (
	"fmt"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/api"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/http_server"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/config"
	appconsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/registry"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
)

func init() {
	// http_server mounts routes on start, so the controller has to be wired first
	registry.ExtendRuntimeDependencies(appconsts.COMPONENT_HTTP_SERVER, consts.COMP_CTRL_CLAIM)

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.HTTPServer == nil || !cfg.HTTPServer.Enabled {
			return false, nil, nil
		}
		return true, api.NewClaimController(), nil
	})

	http_server.RegisterRoutes(func(r chi.Router, c *core.Container) error {
		ctrl, err := core.ResolveAs[*api.ClaimController](c, consts.COMP_CTRL_CLAIM)
		if err != nil {
			return fmt.Errorf("resolve %s failed: %w", consts.COMP_CTRL_CLAIM, err)
		}
		ctrl.Mount(r)
		return nil
	})
}
