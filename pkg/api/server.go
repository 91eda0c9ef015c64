package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/auth"
	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/identitysync"
	"github.com/platinummonkey/warden/pkg/middleware"
	"github.com/platinummonkey/warden/pkg/observability"
)

// TokenIssuer signs bearer tokens
type TokenIssuer interface {
	Issue(p auth.Principal) (string, error)
	TTL() time.Duration
}

// SessionStarter opens browser sessions after a password login
type SessionStarter interface {
	CreateSession(ctx context.Context, p auth.Principal) (string, error)
	IssueRemember(ctx context.Context, p auth.Principal) (string, error)
}

// Synchronizer runs identity to profile synchronization on demand
type Synchronizer interface {
	Synchronize(ctx context.Context, identityID int64) (*identitysync.Result, error)
	SynchronizeAll(ctx context.Context) (*identitysync.Summary, error)
	ValidateIntegrity(ctx context.Context) (*identitysync.IntegrityReport, error)
}

// Deps are the collaborators of the HTTP server
type Deps struct {
	Accounts     *accounts.Service
	Tokens       TokenIssuer
	Sessions     SessionStarter
	Dispatcher   *middleware.Dispatcher
	Audit        *audit.Service
	Recorder     audit.Recorder
	Synchronizer Synchronizer
	// LoginLimiter guards the login endpoints; nil disables it
	LoginLimiter *middleware.RateLimitMiddleware
	Health       *observability.HealthChecker
	Registry     *prometheus.Registry
	Logger       *observability.Logger
	Metrics      *observability.Metrics
}

// Config tunes the HTTP surface
type Config struct {
	MaxBodyBytes   int64
	AllowedOrigins []string
	// ProxyTrust resolves client addresses; nil trusts no forwarding header
	ProxyTrust *auth.ProxyTrust
}

// Server is the warden HTTP server
type Server struct {
	router  *mux.Router
	handler http.Handler
	deps    Deps
}

// NewServer wires all routes and middleware
func NewServer(deps Deps, config Config) (*Server, error) {
	if deps.Accounts == nil || deps.Tokens == nil || deps.Sessions == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("accounts, tokens, sessions and dispatcher are required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}
	if deps.Recorder == nil {
		deps.Recorder = audit.NopRecorder{}
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()

	// route-scoped middleware sees the matched route template
	s.router.Use(
		httputil.LoggingMiddleware(deps.Logger, deps.Metrics),
		deps.Dispatcher.Handler,
		audit.NewMiddleware(deps.Recorder, middleware.DefaultAPIPrefix).Handler,
	)

	chain := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		config.ProxyTrust.Middleware,
		httputil.RecoveryMiddleware(deps.Logger),
		httputil.MaxBytesMiddleware(config.MaxBodyBytes),
	}
	if len(config.AllowedOrigins) > 0 {
		chain = append(chain, httputil.CORSMiddleware(config.AllowedOrigins))
	}
	s.handler = httputil.Chain(chain...)(s.router)
	return s, nil
}

// setupRoutes configures all the routes
func (s *Server) setupRoutes() {
	authHandlers := NewAuthHandlers(s.deps.Accounts, s.deps.Tokens, s.deps.Sessions, s.deps.Dispatcher.Cookies())
	authHandlers.RegisterRoutes(s.router, s.deps.LoginLimiter)

	admin := s.router.PathPrefix("/api/admin").Subrouter()
	admin.Use(middleware.RequireRole(auth.RoleAdmin))
	s.RegisterRoutes(admin, NewAdminHandlers(s.deps.Accounts, s.deps.Synchronizer))
	if s.deps.Audit != nil {
		s.RegisterRoutes(admin, audit.NewHandlers(s.deps.Audit))
	}

	if s.deps.Health != nil {
		observability.RegisterHealthRoutes(s.router, s.deps.Health)
	}
	if s.deps.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.deps.Registry)).Methods(http.MethodGet)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}

// RegisterRoutes registers routes from a RouteRegistrar
func (s *Server) RegisterRoutes(router *mux.Router, registrar RouteRegistrar) {
	registrar.RegisterRoutes(router)
}
