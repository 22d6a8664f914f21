package gormdb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// Dialect names reported by Component.Dialect.
const (
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// Component manages one *gorm.DB per named datasource for a single dialect.
type Component struct {
	*core.BaseComponent
	dialect string
	cfg     *Config
	open    func(dsn string) gorm.Dialector
	dsn     func(*DataSourceConfig) (string, error)

	mutex sync.RWMutex
	dbs   map[string]*gorm.DB
}

func NewMySQLComponent(cfg *Config) *Component {
	return &Component{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_MYSQL_GORM, consts.COMPONENT_LOGGING),
		dialect:       DialectMySQL,
		cfg:           cfg,
		open:          func(dsn string) gorm.Dialector { return mysql.New(mysql.Config{DSN: dsn}) },
		dsn:           buildMySQLDSN,
		dbs:           make(map[string]*gorm.DB),
	}
}

func NewPostgresComponent(cfg *Config) *Component {
	return &Component{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_POSTGRES_GORM, consts.COMPONENT_LOGGING),
		dialect:       DialectPostgres,
		cfg:           cfg,
		open:          postgres.Open,
		dsn:           buildPostgresDSN,
		dbs:           make(map[string]*gorm.DB),
	}
}

func (c *Component) Dialect() string { return c.dialect }

func (c *Component) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if len(c.cfg.DataSources) == 0 {
		return fmt.Errorf("%s: no data_sources configured", c.Name())
	}
	gl := newGormLogger(c.Name(), c.cfg)
	for name, ds := range c.cfg.DataSources {
		if ds == nil {
			return fmt.Errorf("datasource %s config is nil", name)
		}
		dsn, err := c.dsn(ds)
		if err != nil {
			return fmt.Errorf("build dsn for %s failed: %w", name, err)
		}
		gdb, err := gorm.Open(c.open(dsn), &gorm.Config{
			Logger:                 gl,
			SkipDefaultTransaction: ds.SkipDefaultTransaction,
			PrepareStmt:            ds.PrepareStmt,
			NowFunc:                func() time.Time { return time.Now().UTC() },
		})
		if err != nil {
			return fmt.Errorf("open %s datasource %s failed: %w", c.dialect, name, err)
		}
		if err := c.configurePool(ctx, gdb, ds); err != nil {
			return fmt.Errorf("datasource %s: %w", name, err)
		}
		c.mutex.Lock()
		c.dbs[name] = gdb
		c.mutex.Unlock()
		logging.Infof(ctx, "[%s] datasource %s initialized", c.Name(), name)
	}
	logging.Infof(ctx, "[%s] started. data sources=%v", c.Name(), c.listNames())
	return nil
}

func (c *Component) configurePool(ctx context.Context, gdb *gorm.DB, ds *DataSourceConfig) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return fmt.Errorf("get underlying sql.DB failed: %w", err)
	}
	sqlDB.SetMaxOpenConns(orDefault(ds.MaxOpenConns, 50))
	sqlDB.SetMaxIdleConns(orDefault(ds.MaxIdleConns, 10))
	if ds.ConnMaxLife > 0 {
		sqlDB.SetConnMaxLifetime(ds.ConnMaxLife)
	} else {
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	if ds.ConnMaxIdle > 0 {
		sqlDB.SetConnMaxIdleTime(ds.ConnMaxIdle)
	}
	if ds.PingOnStart {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := sqlDB.PingContext(pingCtx); err != nil {
			_ = sqlDB.Close()
			return fmt.Errorf("ping failed: %w", err)
		}
	}
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	defer func() { _ = c.BaseComponent.Stop(ctx) }()
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for name, gdb := range c.dbs {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
		logging.Infof(ctx, "[%s] datasource %s closed", c.Name(), name)
	}
	c.dbs = make(map[string]*gorm.DB)
	return nil
}

func (c *Component) HealthCheck() error {
	if err := c.BaseComponent.HealthCheck(); err != nil {
		return err
	}
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for name, gdb := range c.dbs {
		sqlDB, err := gdb.DB()
		if err != nil {
			return fmt.Errorf("datasource %s get sql.DB failed: %w", name, err)
		}
		if err := sqlDB.Ping(); err != nil {
			return fmt.Errorf("datasource %s ping failed: %w", name, err)
		}
	}
	return nil
}

func (c *Component) GetDB(name string) (*gorm.DB, error) {
	c.mutex.RLock()
	db, ok := c.dbs[name]
	c.mutex.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s datasource %s not found", c.Name(), name)
	}
	return db, nil
}

func (c *Component) listNames() []string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	names := make([]string, 0, len(c.dbs))
	for k := range c.dbs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
