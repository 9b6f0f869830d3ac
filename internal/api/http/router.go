// Package http wires the GraphQL endpoint, WebSocket upgrades, and health
// probes into a single handler with logging and rate limits applied.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"

	"github.com/inkwellhq/inkwell/internal/api/store"
	"github.com/inkwellhq/inkwell/internal/api/subscription"
	"github.com/inkwellhq/inkwell/pkg/httpx"
	"github.com/inkwellhq/inkwell/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	schema       graphql.Schema
	manager      *subscription.Manager
	store        store.Store
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
}

func NewRouter(
	schema graphql.Schema,
	manager *subscription.Manager,
	st store.Store,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		schema:       schema,
		manager:      manager,
		store:        st,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	// POST /graphql - moderate rate limit keyed on the bearer token so one
	// client cannot starve others; anonymous traffic falls back to IP.
	r.Mux.Handle("POST /graphql",
		httpx.Chain(&GraphQLHandler{Schema: r.schema},
			httpx.RateLimitByBearer(httpx.ModerateLimit),
		),
	)

	// GET /graphql/ws - the upgrade itself is cheap and the handshake is
	// authenticated inside the connection, so lenient by IP.
	r.Mux.Handle("GET /graphql/ws",
		httpx.Chain(&WebSocketHandler{Manager: r.manager},
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// Health check endpoints - lenient limits, monitoring systems poll these.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}
