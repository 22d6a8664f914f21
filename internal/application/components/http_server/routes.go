package http_server

import (
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/grand-thief-cash/chaos/app/projects/taskmanager/internal/application/core"
)

// RouteRegisterFunc mounts extra routes before the server starts listening.
type RouteRegisterFunc func(r chi.Router, c *core.Container) error

var (
	routesMu   sync.Mutex
	registrars []RouteRegisterFunc
)

// RegisterRoutes is meant for init() of project packages.
func RegisterRoutes(fn RouteRegisterFunc) {
	if fn == nil {
		return
	}
	routesMu.Lock()
	registrars = append(registrars, fn)
	routesMu.Unlock()
}

func snapshot() []RouteRegisterFunc {
	routesMu.Lock()
	defer routesMu.Unlock()
	out := make([]RouteRegisterFunc, len(registrars))
	copy(out, registrars)
	return out
}
