package registry_ext

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/gormdb"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/config"
	appconsts "github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/registry"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/store"
)

func init() {
	// task store: memory or one of the gorm components, chosen by biz_config.store.driver
	registry.RegisterWithDeps(consts.COMP_STORE_TASK, []string{
		appconsts.COMPONENT_MYSQL_GORM, appconsts.COMPONENT_POSTGRES_GORM,
	}, func(cfg *config.AppConfig, c *core.Container) (bool, core.Component, error) {
		b, err := biz()
		if err != nil {
			return true, nil, err
		}
		var source string
		switch b.Store.Driver {
		case consts.StoreDriverMemory:
			return true, store.NewMemoryStore(), nil
		case consts.StoreDriverMySQL:
			source = appconsts.COMPONENT_MYSQL_GORM
		case consts.StoreDriverPostgres:
			source = appconsts.COMPONENT_POSTGRES_GORM
		default:
			return true, nil, fmt.Errorf("store.driver %q not supported", b.Store.Driver)
		}

		comp, err := c.Resolve(source)
		if err != nil {
			return true, nil, fmt.Errorf("store.driver=%s requires %s: %w", b.Store.Driver, source, err)
		}
		gormComp, ok := comp.(*gormdb.Component)
		if !ok {
			return true, nil, fmt.Errorf("%s type assertion failed", source)
		}
		return true, store.NewGormStore(gormComp, b.Store.DataSource, b.Store.AutoMigrate), nil
	})
}
