package registry_ext

import (
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/config"
	appconsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/registry"
	bizConfig "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/config"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/definitions"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/events"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/partition"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/service"
)

// biz 返回已校验的业务配置; builders 运行时 loader 已经填充完 biz_config
func biz() (*bizConfig.BizConfig, error) {
	c := bizConfig.GetBizConfig()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func init() {
	// metrics / tracing must be up before the first round
	for _, name := range []string{consts.COMP_SVC_CLAIMING, consts.COMP_SVC_DEAD_LETTER} {
		registry.ExtendRuntimeDependencies(name, appconsts.COMPONENT_PROMETHEUS, appconsts.COMPONENT_TELEMETRY)
	}

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b, err := biz()
		if err != nil {
			return false, nil, err
		}
		return true, definitions.NewRegistry(b.Definitions), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b, err := biz()
		if err != nil {
			return false, nil, err
		}
		return true, partition.NewPartitioner(b.Partitioning, b.NodeID), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b, err := biz()
		if err != nil {
			return false, nil, err
		}
		return true, events.NewBus(b.Events, b.NodeID), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b, err := biz()
		if err != nil {
			return false, nil, err
		}
		return true, service.NewClaimingEngine(b), nil
	})

	registry.RegisterAuto(func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b, err := biz()
		if err != nil {
			return false, nil, err
		}
		if !b.DeadLetter.Enabled {
			return false, nil, nil
		}
		return true, service.NewDeadLetterSweeper(b), nil
	})
}
