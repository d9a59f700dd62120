// Package httpapi serves the agent's REST endpoints and mounts the Socket.io
// and metrics handlers.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/contextmgr"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
	"github.com/edumarques81/stellar-emp/internal/emp"
	"github.com/edumarques81/stellar-emp/internal/infra/metrics"
)

// DefaultTimeout bounds directive results and context requests.
const DefaultTimeout = 5 * time.Second

// Agent is the part of the agent the API drives.
type Agent interface {
	HandleDirective(d directive.Directive, result directive.Result)
	FocusSnapshot() emp.FocusSnapshot
	OnButtonPressed(button adapter.PlaybackButton)
	OnTogglePressed(toggle adapter.PlaybackToggle, selected bool)
}

// ContextSource builds context snapshots.
type ContextSource interface {
	GetContext(ctx context.Context) ([]contextmgr.Entry, error)
}

// Deps are the collaborators of the router. Agent and Context are required.
type Deps struct {
	Agent   Agent
	Context ContextSource
	// Health reports dependency health; nil means always healthy.
	Health func() error
	// Authorized lists the authorized players.
	Authorized func(ctx context.Context) ([]adapter.PlayerInfo, error)
	Metrics    *metrics.Metrics
	// SocketIO is mounted at /socket.io/ when set.
	SocketIO http.Handler
	Timeout  time.Duration
}

// NewRouter builds the HTTP handler.
func NewRouter(d Deps) http.Handler {
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	h := &handler{deps: d}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(requestLogger(d.Metrics))

	r.Get("/health", h.health)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}
	if d.SocketIO != nil {
		r.Handle("/socket.io/*", d.SocketIO)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", h.getVersion)
		r.Get("/context", h.getContext)
		r.Get("/focus", h.focus)
		r.Get("/players/authorized", h.authorized)
		r.Post("/directives", h.postDirective)
		r.Post("/buttons/{button}", h.button)
		r.Post("/toggles/{toggle}", h.toggle)
	})

	return r
}
