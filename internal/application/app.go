package application

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/autowire"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/config"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/hooks"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/registry"
)

// App boots config -> builders -> autowire -> lifecycle.
type App struct {
	container        *core.Container
	lifecycleManager *core.LifecycleManager
	configManager    *config.ConfigManager

	bootOnce sync.Once
	bootErr  error

	shutdownTimeout time.Duration
}

func NewApp(env string, configPath string) *App {
	if p, err := filepath.Abs(configPath); err == nil {
		configPath = p
	}
	container := core.NewContainer()
	return &App{
		configManager:    config.NewConfigManager(env, configPath),
		container:        container,
		lifecycleManager: core.NewLifecycleManager(container),
		shutdownTimeout:  30 * time.Second,
	}
}

// SetBizConfig must be called before Boot.
func (app *App) SetBizConfig(b any) error { return app.configManager.SetBizConfig(b) }

func (app *App) SetShutdownTimeout(d time.Duration) {
	app.shutdownTimeout = d
	app.lifecycleManager.SetTimeout(d)
}

// Boot loads config, builds and wires components. Safe to call more than once.
func (app *App) Boot() error {
	app.bootOnce.Do(func() {
		if err := app.configManager.LoadConfig(); err != nil {
			app.bootErr = fmt.Errorf("load config failed: %w", err)
			return
		}
		if err := registry.BuildAndRegisterAll(app.configManager.GetConfig(), app.container); err != nil {
			app.bootErr = fmt.Errorf("register components failed: %w", err)
			return
		}
		if err := autowire.InjectAll(app.container); err != nil {
			app.bootErr = err
		}
	})
	return app.bootErr
}

func (app *App) Container() *core.Container { return app.container }

func (app *App) GetComponent(name string) (core.Component, error) {
	return app.container.Resolve(name)
}

func (app *App) GetConfig() *config.AppConfig {
	return app.configManager.GetConfig()
}

func (app *App) AddHook(name string, phase hooks.Phase, fn hooks.HookFunc, priority int) error {
	return app.lifecycleManager.AddHook(name, phase, fn, priority)
}

// Run blocks until SIGINT/SIGTERM.
func (app *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.RunWithContext(ctx)
}

// Start boots and starts all components without blocking.
func (app *App) Start(ctx context.Context) error {
	if err := app.Boot(); err != nil {
		return err
	}
	return app.lifecycleManager.StartAll(ctx)
}

// RunWithContext starts components and blocks until ctx is done, then shuts down.
func (app *App) RunWithContext(ctx context.Context) error {
	if err := app.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	app.Shutdown(context.Background())
	return nil
}

func (app *App) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, app.shutdownTimeout)
	defer cancel()
	app.lifecycleManager.StopAll(ctx)
}
