package http_server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/components/logging"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/consts"
	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// HTTPServerComponent serves /healthz plus any registered routes.
type HTTPServerComponent struct {
	*core.BaseComponent
	cfg       *HTTPServerConfig
	container *core.Container
	router    chi.Router
	server    *http.Server
}

func NewHTTPServerComponent(cfg *HTTPServerConfig, c *core.Container) *HTTPServerComponent {
	return &HTTPServerComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_HTTP_SERVER, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		container:     c,
	}
}

func (hc *HTTPServerComponent) Router() chi.Router { return hc.router }

func (hc *HTTPServerComponent) Start(ctx context.Context) error {
	if err := hc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	hc.router = hc.buildRouter()
	for _, fn := range snapshot() {
		if err := fn(hc.router, hc.container); err != nil {
			return fmt.Errorf("route register failed: %w", err)
		}
	}

	hc.server = &http.Server{
		Addr:         hc.cfg.Address,
		ReadTimeout:  hc.cfg.ReadTimeout,
		WriteTimeout: hc.cfg.WriteTimeout,
		IdleTimeout:  hc.cfg.IdleTimeout,
		Handler:      hc.router,
	}
	go func() {
		logging.Infof(ctx, "http_server listening on %s", hc.cfg.Address)
		if err := hc.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf(ctx, "http_server error: %v", err)
		}
	}()
	return nil
}

func (hc *HTTPServerComponent) Stop(ctx context.Context) error {
	defer hc.BaseComponent.Stop(ctx)
	if hc.server == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(ctx, hc.cfg.GracefulTimeout)
	defer cancel()
	if err := hc.server.Shutdown(stopCtx); err != nil {
		return fmt.Errorf("http_server graceful shutdown failed: %w", err)
	}
	logging.Info(ctx, "http_server stopped")
	return nil
}

func (hc *HTTPServerComponent) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	serviceName := hc.cfg.ServiceName
	if serviceName == "" {
		serviceName = hc.cfg.Address
	}
	r.Use(otelchi.Middleware(serviceName))
	r.Use(accessLog)
	r.Get("/healthz", hc.healthHandler)
	return r
}

// healthHandler reports every registered component; 503 when any is unhealthy.
func (hc *HTTPServerComponent) healthHandler(w http.ResponseWriter, _ *http.Request) {
	type entry struct {
		Name  string `json:"name"`
		OK    bool   `json:"ok"`
		Error string `json:"error,omitempty"`
	}
	registered := hc.container.ListRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	out := make([]entry, 0, len(names))
	for _, name := range names {
		e := entry{Name: name, OK: true}
		if err := registered[name].HealthCheck(); err != nil {
			e.OK, e.Error = false, err.Error()
			status = http.StatusServiceUnavailable
		}
		out = append(out, e)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Int("status", ww.Status()),
			zap.Duration("dur", time.Since(start)),
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			fields = append(fields, zap.String("span_id", sc.SpanID().String()))
		}
		logging.Debug(r.Context(), "http_access", fields...)
	})
}
