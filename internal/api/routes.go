package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aviaryhq/aviary-go/internal/api/handlers"
	apiMiddleware "github.com/aviaryhq/aviary-go/internal/api/middleware"
	"github.com/aviaryhq/aviary-go/internal/api/websocket"
	"github.com/aviaryhq/aviary-go/internal/config"
	"github.com/aviaryhq/aviary-go/internal/events"
	"github.com/aviaryhq/aviary-go/internal/runner"
	"github.com/aviaryhq/aviary-go/internal/store"
)

// Server represents the simulator's HTTP server
type Server struct {
	router      *chi.Mux
	store       store.Store
	config      *config.Config
	taskHandler *handlers.TaskHandler
	wsHub       *websocket.Hub
	wsHandler   *websocket.Handler
	publisher   events.Publisher
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, s store.Store, r *runner.Runner, publisher events.Publisher) *Server {
	wsHub := websocket.NewHub(publisher)

	srv := &Server{
		router:      chi.NewRouter(),
		store:       s,
		config:      cfg,
		taskHandler: handlers.NewTaskHandler(s, r, publisher),
		wsHub:       wsHub,
		wsHandler:   websocket.NewHandler(wsHub),
		publisher:   publisher,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apiMiddleware.RequestLogger())
	s.router.Use(middleware.Recoverer)

	// Heartbeat endpoint for load balancers
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	authCfg := &apiMiddleware.AuthConfig{
		Enabled:   s.config.Auth.Enabled,
		JWTSecret: s.config.Auth.JWTSecret,
		APIKeys:   make(map[string]bool),
	}
	for _, key := range s.config.Auth.APIKeys {
		authCfg.APIKeys[key] = true
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.Auth(authCfg))

		if s.config.Server.RateLimitRPS > 0 {
			r.Use(apiMiddleware.RateLimit(s.config.Server.RateLimitRPS))
		}

		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.taskHandler.Create)
			r.Post("/run", s.taskHandler.RunSync)
			r.Post("/batch", s.taskHandler.CreateBatch)
			r.Get("/{taskID}", s.taskHandler.Get)
			r.Get("/{taskID}/result", s.taskHandler.GetResult)
		})
	})

	// WebSocket endpoint
	s.router.Get("/ws", s.wsHandler.ServeWS)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
