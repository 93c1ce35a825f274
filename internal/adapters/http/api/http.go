// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/arcade/internal/app"
	"github.com/okian/arcade/internal/domain/model"
	"github.com/okian/arcade/internal/domain/types"
	"github.com/okian/arcade/internal/domain/usage"
	"github.com/okian/arcade/pkg/logger"
	"github.com/okian/arcade/pkg/metrics"
)

// UsageService is the ingestion pipeline and its read side.
type UsageService interface {
	Submit(ctx context.Context, sub usage.Submission) (string, error)
	Finalize(ctx context.Context, id string, end time.Time, sessionCount *int) (*model.UsageEvent, error)
	UpdateUsage(ctx context.Context, id string, patch model.UsagePatch) (*model.UsageEvent, error)
	DeleteUsage(ctx context.Context, id string) error
	GetUsage(ctx context.Context, id string) (*model.UsageEvent, error)
	ListUsage(ctx context.Context, f model.UsageFilter) (types.Page[model.UsageEvent], error)
	UsageStats(ctx context.Context, f model.UsageFilter) (types.UsageStats, error)
}

// CatalogService manages games, categories, configs and the CDN version.
type CatalogService interface {
	ListConfigs(ctx context.Context) ([]model.SystemConfig, error)
	GetConfig(ctx context.Context, key string) (*model.SystemConfig, error)
	CreateConfig(ctx context.Context, c model.SystemConfig) (*model.SystemConfig, error)
	UpdateConfig(ctx context.Context, key string, p service.ConfigPatch) (*model.SystemConfig, error)
	DeleteConfig(ctx context.Context, key string) error

	ListCategories(ctx context.Context, f model.CategoryFilter) (types.Page[model.Category], error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	CreateCategory(ctx context.Context, c model.Category) (*model.Category, error)
	UpdateCategory(ctx context.Context, id string, p service.CategoryPatch) (*model.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListGames(ctx context.Context, f model.GameFilter) (types.Page[model.Game], error)
	GetGame(ctx context.Context, id string) (*model.Game, error)
	CreateGame(ctx context.Context, g model.Game) (*model.Game, error)
	UpdateGame(ctx context.Context, id string, p service.GamePatch) (*model.Game, error)
	DeactivateGame(ctx context.Context, id string) error

	CDNVersion(ctx context.Context) (model.CDNVersion, error)
	PublishCDN(ctx context.Context, enabled *bool) (model.CDNVersion, error)
}

// RankService orders games and tracks position clicks.
type RankService interface {
	SetPosition(ctx context.Context, gameID string, position int) (model.Reorder, error)
	RecordClick(ctx context.Context, gameID string) (model.ClickResult, error)
	GetAtPosition(ctx context.Context, position int) (*model.Game, error)
	GameHistory(ctx context.Context, gameID string) (types.GameHistory, error)
	PositionPerformance(ctx context.Context) ([]types.PositionPerformance, error)
	MostClickedPositions(ctx context.Context, limit int) ([]types.PositionPerformance, error)
	RecentActivity(ctx context.Context, window time.Duration) (types.RecentActivity, error)
}

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	UsageService
	CatalogService
	RankService

	Ready(ctx context.Context) error
	Stats(ctx context.Context) types.ServiceStats
}

// Server wires HTTP routes for the business API.
type Server struct {
	cfg      settings
	validate *validator.Validate
	rw       *responder

	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	analyticsHandler *AnalyticsHandler
	catalogHandler   *CatalogHandler
	configHandler    *ConfigHandler
	positionHandler  *PositionHandler
	cdnHandler       *CDNHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{cfg: cfg, validate: newValidator()}
	s.rw = &responder{production: cfg.production, log: cfg.log}
	rw, in := s.rw, &decoder{validate: s.validate}

	s.healthHandler = NewHealthHandler(deps)
	s.statsHandler = NewStatsHandler(deps)
	s.analyticsHandler = &AnalyticsHandler{svc: deps, rw: rw, in: in}
	s.catalogHandler = &CatalogHandler{svc: deps, rw: rw, in: in}
	s.configHandler = &ConfigHandler{svc: deps, rw: rw, in: in}
	s.positionHandler = &PositionHandler{svc: deps, rw: rw, in: in}
	s.cdnHandler = &CDNHandler{svc: deps, rw: rw, in: in}
	return s
}

// Handler builds the router. Docs routes are mounted by the caller through
// mount, which may be nil.
func (s *Server) Handler(mount func(chi.Router)) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(requestContext)
	r.Use(chimiddleware.RealIP)
	r.Use(recoverer(s.cfg.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", headerUserID},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(metricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/readyz", s.healthHandler.HandleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	r.Get("/stats", s.statsHandler.HandleStats)

	submitLimit := httprate.Limit(
		s.cfg.submitLimit,
		s.cfg.submitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			s.rw.status(w, r, http.StatusTooManyRequests, "too many submissions, slow down")
		}),
	)

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/", s.analyticsHandler.HandleList)
		r.Get("/stats", s.analyticsHandler.HandleStats)
		if s.cfg.submitLimit > 0 {
			r.With(submitLimit).Post("/", s.analyticsHandler.HandleSubmit)
		} else {
			r.Post("/", s.analyticsHandler.HandleSubmit)
		}
		r.Get("/{id}", s.analyticsHandler.HandleGet)
		r.Put("/{id}", s.analyticsHandler.HandleUpdate)
		r.Delete("/{id}", s.analyticsHandler.HandleDelete)
		r.Post("/{id}/end", s.analyticsHandler.HandleFinalize)
	})

	r.Route("/system-configs", func(r chi.Router) {
		r.Get("/", s.configHandler.HandleList)
		r.Post("/", s.configHandler.HandleCreate)
		r.Get("/{key}", s.configHandler.HandleGet)
		r.Put("/{key}", s.configHandler.HandleUpdate)
		r.Delete("/{key}", s.configHandler.HandleDelete)
	})

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", s.catalogHandler.HandleListCategories)
		r.Post("/", s.catalogHandler.HandleCreateCategory)
		r.Get("/{id}", s.catalogHandler.HandleGetCategory)
		r.Put("/{id}", s.catalogHandler.HandleUpdateCategory)
		r.Delete("/{id}", s.catalogHandler.HandleDeleteCategory)
	})

	r.Route("/games", func(r chi.Router) {
		r.Get("/", s.catalogHandler.HandleListGames)
		r.Post("/", s.catalogHandler.HandleCreateGame)
		r.Get("/position/{position}", s.positionHandler.HandleGetAtPosition)
		r.Get("/{id}", s.catalogHandler.HandleGetGame)
		r.Put("/{id}", s.catalogHandler.HandleUpdateGame)
		r.Delete("/{id}", s.catalogHandler.HandleDeactivateGame)
		r.Put("/{id}/position", s.positionHandler.HandleSetPosition)
	})

	r.Route("/game-position-history", func(r chi.Router) {
		r.Get("/analytics/positions", s.positionHandler.HandlePerformance)
		r.Get("/analytics/most-clicked", s.positionHandler.HandleMostClicked)
		r.Get("/analytics/recent", s.positionHandler.HandleRecent)
		r.Get("/{gameId}", s.positionHandler.HandleHistory)
		r.Post("/{gameId}/click", s.positionHandler.HandleClick)
	})

	r.Route("/cdn", func(r chi.Router) {
		r.Get("/version", s.cdnHandler.HandleVersion)
		r.Post("/publish", s.cdnHandler.HandlePublish)
	})

	if mount != nil {
		mount(r)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.rw.status(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.rw.status(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.cfg.log.Debug(context.Background(), "routes registered",
		logger.Int("submit_rate_limit", s.cfg.submitLimit),
		logger.Duration("submit_rate_window", s.cfg.submitWindow))
	return r
}
