package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/saathi/internal/relay/domain"
	"github.com/aussiebroadwan/saathi/internal/relay/metrics"
	"github.com/aussiebroadwan/saathi/internal/relay/registry"
	"github.com/aussiebroadwan/saathi/internal/relay/service"
	"github.com/aussiebroadwan/saathi/internal/relay/store"
	"github.com/aussiebroadwan/saathi/pkg/httpx"
	"github.com/aussiebroadwan/saathi/pkg/jwtx"
	"github.com/aussiebroadwan/saathi/pkg/slogx"

	_ "github.com/aussiebroadwan/saathi/api/relay" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store            store.Store
	Registry         *registry.Registry
	Metrics          *metrics.Metrics
	HierarchyService *service.HierarchyService
	TokenService     *service.TokenService
	MessageService   *service.MessageService
	Relay            *service.Relay
	Lifecycle        *service.Lifecycle

	// MetricsHandler serves /metrics. Defaults to promhttp.Handler().
	MetricsHandler     http.Handler
	MaxFramesPerSecond int
}

func NewRouter(
	keys *jwtx.KeySet,
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerChat()
	r.registerHierarchy()
	r.registerRelay()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Saathi Relay API
//	@version		0.1.0
//	@description	Presence-aware chat and call-signalling relay for a five tier partner hierarchy.
//	@description
//	@description				Access tokens are EdDSA signed JWTs and can be verified using the JWKS endpoint.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/saathi
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authed wraps h with bearer authentication and the per-user API limit.
func (r *Router) authed(h http.Handler, extra ...httpx.Middleware) http.Handler {
	mws := append([]httpx.Middleware{
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.APILimit),
	}, extra...)
	return httpx.Chain(h, mws...)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Hierarchy: r.HierarchyService, Tokens: r.TokenService}

	// Register and login are the brute force surface.
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.Register), httpx.RateLimitByIP(httpx.AuthLimit)),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.Login), httpx.RateLimitByIP(httpx.AuthLimit)),
	)
	r.Mux.Handle("GET /v1/auth/profile", r.authed(http.HandlerFunc(h.Profile)))
}

func (r *Router) registerChat() {
	h := &ChatHandler{
		Messages:  r.MessageService,
		Relay:     r.Relay,
		Hierarchy: r.HierarchyService,
	}

	r.Mux.Handle("GET /v1/chat/conversation/{userId}", r.authed(http.HandlerFunc(h.Conversation)))
	r.Mux.Handle("GET /v1/chat/unread", r.authed(http.HandlerFunc(h.Unread)))
	r.Mux.Handle("POST /v1/chat/mark-read/{messageId}", r.authed(http.HandlerFunc(h.MarkRead)))
	r.Mux.Handle("GET /v1/chat/available-users", r.authed(http.HandlerFunc(h.AvailableUsers)))
}

func (r *Router) registerHierarchy() {
	h := &HierarchyHandler{Hierarchy: r.HierarchyService}

	r.Mux.Handle("GET /v1/hierarchy/users", r.authed(http.HandlerFunc(h.Users)))
	r.Mux.Handle("GET /v1/hierarchy/referrals", r.authed(http.HandlerFunc(h.Referrals)))
	r.Mux.Handle("POST /v1/services/{serviceId}/members", r.authed(http.HandlerFunc(h.JoinService)))
	r.Mux.Handle("DELETE /v1/services/{serviceId}/members", r.authed(http.HandlerFunc(h.LeaveService)))

	// Checked by the registration form before an account exists.
	r.Mux.Handle("GET /v1/invitations/{code}/valid",
		httpx.Chain(http.HandlerFunc(h.ValidInvitation), httpx.RateLimitByIP(httpx.AuthLimit)),
	)
}

func (r *Router) registerRelay() {
	ws := &WSHandler{
		Relay:              r.Relay,
		Lifecycle:          r.Lifecycle,
		Metrics:            r.Metrics,
		MaxFramesPerSecond: r.MaxFramesPerSecond,
	}
	r.Mux.Handle("GET /v1/ws", r.authed(ws))

	r.Mux.Handle("GET /v1/admin/sessions",
		r.authed(SessionsHandler(r.Registry), httpx.RequireRole(domain.RoleAdmin.String())),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys), httpx.RateLimitByIP(httpx.PublicLimit)),
	)
	// Probes are polled frequently, so they share the public limit.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion), httpx.RateLimitByIP(httpx.PublicLimit)),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.keys), httpx.RateLimitByIP(httpx.PublicLimit)),
	)

	metricsHandler := r.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Mux.Handle("GET /metrics", metricsHandler)
}
