// Package api provides the HTTP API for study groups: a huma API mounted on a chi
// router, plus the SSE stream and Prometheus endpoints.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/boilergroups/groups-server/internal/ratelimit"
	"github.com/boilergroups/groups-server/internal/service"
	"github.com/boilergroups/groups-server/internal/sse"
	"github.com/boilergroups/groups-server/internal/store"
)

// Services groups the business services used by the handlers.
type Services struct {
	Auth          *service.AuthService
	Groups        *service.GroupService
	Messages      *service.MessageService
	Notifications *service.NotificationService
}

// SearchHealth reports the state of the search index. *search.Index implements it.
type SearchHealth interface {
	DocumentCount() (uint64, error)
}

// Options configures NewServer.
type Options struct {
	Store    store.Store
	Services *Services
	// SSEManager is optional; without it /events is not mounted.
	SSEManager *sse.Manager
	// Search is optional and only used by the health check.
	Search SearchHealth
	// Metrics is served at /metrics when set.
	Metrics         http.Handler
	AuthRateLimiter *ratelimit.KeyedRateLimiter
	CORSOrigins     []string
	Logger          *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store           store.Store
	services        *Services
	sseManager      *sse.Manager
	search          SearchHealth
	metrics         http.Handler
	authRateLimiter *ratelimit.KeyedRateLimiter
	router          chi.Router
	api             huma.API
	logger          *slog.Logger
}

// NewServer creates the HTTP server with all routes configured.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		store:           opts.Store,
		services:        opts.Services,
		sseManager:      opts.SSEManager,
		search:          opts.Search,
		metrics:         opts.Metrics,
		authRateLimiter: opts.AuthRateLimiter,
		router:          chi.NewRouter(),
		logger:          logger,
	}

	s.setupMiddleware(opts.CORSOrigins)

	humaConfig := huma.DefaultConfig("Boiler Groups API", "1.0.0")
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// API exposes the huma API, mainly for tests.
func (s *Server) API() huma.API {
	return s.api
}

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	if s.services != nil && s.services.Auth != nil {
		s.router.Use(authMiddleware(s.services.Auth))
	}
}

func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerGroupRoutes()
	s.registerMessageRoutes()
	s.registerNotificationRoutes()

	if s.sseManager != nil {
		s.router.Get("/events", sse.NewHandler(s.sseManager, s.streamIdentity, s.logger).ServeHTTP)
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics)
	}
}

// streamIdentity authenticates an SSE request. Browsers cannot set headers on an
// EventSource, so a token query parameter is accepted too.
func (s *Server) streamIdentity(r *http.Request) (string, string, bool) {
	if id, ok := identityFrom(r.Context()); ok {
		return id.UserID, id.Email, true
	}
	token := r.URL.Query().Get("token")
	if token == "" || s.services == nil || s.services.Auth == nil {
		return "", "", false
	}
	id, err := s.services.Auth.Authenticate(r.Context(), token)
	if err != nil {
		return "", "", false
	}
	return id.UserID, id.Email, true
}

// bearerSecurity marks an operation as requiring a token in the OpenAPI document.
var bearerSecurity = []map[string][]string{{"bearer": {}}}
