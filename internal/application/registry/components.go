package registry

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/gormdb"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/http_server"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/prometheus"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/redis"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/telemetry"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// framework builders; project builders live in internal/registry_ext
func init() {
	// http_server reports telemetry spans when tracing is on
	ExtendRuntimeDependencies(consts.COMPONENT_HTTP_SERVER, consts.COMPONENT_TELEMETRY)

	Register(consts.COMPONENT_LOGGING, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Logging == nil || !cfg.Logging.Enabled {
			return false, nil, nil
		}
		comp, err := logging.NewFactory().Create(cfg.Logging)
		return err == nil, comp, err
	})

	Register(consts.COMPONENT_PROMETHEUS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Prometheus == nil || !cfg.Prometheus.Enabled {
			return false, nil, nil
		}
		comp, err := prometheus.NewFactory().Create(cfg.Prometheus)
		return err == nil, comp, err
	})

	Register(consts.COMPONENT_REDIS, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Redis == nil || !cfg.Redis.Enabled {
			return false, nil, nil
		}
		comp, err := redis.NewFactory().Create(cfg.Redis)
		return err == nil, comp, err
	})

	Register(consts.COMPONENT_MYSQL_GORM, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.MySQLGORM == nil || !cfg.MySQLGORM.Enabled {
			return false, nil, nil
		}
		return true, gormdb.NewMySQLComponent(cfg.MySQLGORM), nil
	})

	Register(consts.COMPONENT_POSTGRES_GORM, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.PostgresGORM == nil || !cfg.PostgresGORM.Enabled {
			return false, nil, nil
		}
		return true, gormdb.NewPostgresComponent(cfg.PostgresGORM), nil
	})

	Register(consts.COMPONENT_TELEMETRY, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.Telemetry == nil || !cfg.Telemetry.Enabled {
			return false, nil, nil
		}
		if cfg.Telemetry.ServiceName == "" && cfg.APPInfo != nil {
			cfg.Telemetry.ServiceName = cfg.APPInfo.APPName
		}
		if cfg.Telemetry.ServiceName == "" {
			return false, nil, fmt.Errorf("telemetry.service_name empty and app_info.app_name not provided")
		}
		return true, telemetry.NewFactory().Create(cfg.Telemetry), nil
	})

	Register(consts.COMPONENT_HTTP_SERVER, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		if cfg.HTTPServer == nil || !cfg.HTTPServer.Enabled {
			return false, nil, nil
		}
		if cfg.APPInfo != nil {
			cfg.HTTPServer.ServiceName = cfg.APPInfo.APPName
		}
		return true, http_server.NewFactory().Create(cfg.HTTPServer, c), nil
	})
}
