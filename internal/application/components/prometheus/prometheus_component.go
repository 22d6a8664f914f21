package prometheus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// Component owns a private registry and its own /metrics listener.
type Component struct {
	*core.BaseComponent
	cfg      *Config
	server   *http.Server
	registry *prometheus.Registry
}

func NewComponent(cfg *Config) *Component {
	return &Component{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_PROMETHEUS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		registry:      prometheus.NewRegistry(),
	}
}

func (c *Component) Start(ctx context.Context) error {
	if err := c.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if *c.cfg.CollectGoMetrics {
		_ = c.registry.Register(collectors.NewGoCollector())
	}
	if *c.cfg.CollectProcess {
		_ = c.registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	mux := http.NewServeMux()
	mux.Handle(c.cfg.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	c.server = &http.Server{
		Addr:              c.cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logging.Infof(ctx, "prometheus metrics listening on %s%s", c.cfg.Address, c.cfg.Path)
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf(ctx, "prometheus server error: %v", err)
		}
	}()

	registerGlobal(c)
	return nil
}

func (c *Component) Stop(ctx context.Context) error {
	defer c.BaseComponent.Stop(ctx)
	registerGlobal(nil)
	if c.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("prometheus server shutdown: %w", err)
	}
	logging.Info(ctx, "prometheus component stopped")
	return nil
}

func (c *Component) fqName(name string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{c.cfg.Namespace, c.cfg.Subsystem, name} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "_")
}

// register returns the already registered collector when the same metric is declared twice.
func register[T prometheus.Collector](c *Component, col T) T {
	if err := c.registry.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
	}
	return col
}

func (c *Component) NewCounter(name, help string, labels []string) *prometheus.CounterVec {
	return register(c, prometheus.NewCounterVec(prometheus.CounterOpts{Name: c.fqName(name), Help: help}, labels))
}

func (c *Component) NewGauge(name, help string, labels []string) *prometheus.GaugeVec {
	return register(c, prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: c.fqName(name), Help: help}, labels))
}

func (c *Component) NewHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	return register(c, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    c.fqName(name),
		Help:    help,
		Buckets: buckets,
	}, labels))
}
