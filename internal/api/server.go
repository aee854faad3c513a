package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/terra-clan/hackathon-leaderboard/internal/config"
	"github.com/terra-clan/hackathon-leaderboard/internal/health"
	"github.com/terra-clan/hackathon-leaderboard/internal/models"
)

// Leaderboard is the live snapshot the API serves
type Leaderboard interface {
	Snapshot() models.Snapshot
	Refetch(ctx context.Context) error
	Listen() (<-chan models.Snapshot, func())
}

// TeamReader loads the drill-down view of one team
type TeamReader interface {
	Get(ctx context.Context, teamID string) (*models.TeamDetails, error)
}

// Admin performs validated writes
type Admin interface {
	CreateTeam(ctx context.Context, req models.CreateTeamRequest) (*models.Team, error)
	AddScore(ctx context.Context, teamID string, req models.ScoreEventRequest) (*models.ScoreEvent, error)
	DeleteTeam(ctx context.Context, teamID string) error
	AwardBadge(ctx context.Context, teamID string, req models.AwardBadgeRequest) (*models.TeamBadge, error)
}

// Dependencies are the collaborators behind the HTTP API
type Dependencies struct {
	Leaderboard Leaderboard
	Teams       TeamReader
	Admin       Admin
	Clients     ClientStore
	Health      *health.Registry
	// Gatherer backs /metrics; prometheus.DefaultGatherer when nil
	Gatherer prometheus.Gatherer
}

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	leaderboard    Leaderboard
	teams          TeamReader
	admin          Admin
	health         *health.Registry
	gatherer       prometheus.Gatherer
	authMiddleware *AuthMiddleware
	writeLimiter   *clientRateLimiter
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, limits config.RateLimitConfig, deps Dependencies) *Server {
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Health == nil {
		deps.Health = health.NewRegistry(0)
	}

	s := &Server{
		config:         cfg,
		leaderboard:    deps.Leaderboard,
		teams:          deps.Teams,
		admin:          deps.Admin,
		health:         deps.Health,
		gatherer:       deps.Gatherer,
		authMiddleware: NewAuthMiddleware(deps.Clients),
		writeLimiter:   newClientRateLimiter(limits.RequestsPerSecond, limits.Burst),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Snapshot stream is long-lived and must stay outside the timeout
	r.Get("/api/v1/leaderboard/ws", s.handleLeaderboardWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

		r.Route("/api/v1", func(r chi.Router) {
			// Public reads
			r.Get("/leaderboard", s.handleGetLeaderboard)
			r.Get("/badges", s.handleListBadges)
			r.Get("/teams/{id}", s.handleGetTeam)

			// Admin writes
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.authMiddleware.Authenticate)
				r.Use(s.rateLimitMiddleware)

				r.With(s.authMiddleware.RequirePermission(models.PermTeamsWrite)).Post("/teams", s.handleCreateTeam)
				r.With(s.authMiddleware.RequirePermission(models.PermTeamsWrite)).Delete("/teams/{id}", s.handleDeleteTeam)
				r.With(s.authMiddleware.RequirePermission(models.PermScoresWrite)).Post("/teams/{id}/scores", s.handleAddScore)
				r.With(s.authMiddleware.RequirePermission(models.PermBadgesWrite)).Post("/teams/{id}/badges", s.handleAwardBadge)
				r.With(s.authMiddleware.RequirePermission(models.PermLeaderboardWrite)).Post("/leaderboard/refresh", s.handleRefresh)
			})
		})
	})

	s.router = r
}

// loggingMiddleware logs HTTP requests using slog
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
