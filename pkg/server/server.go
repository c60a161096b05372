package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/playforge/liveops/pkg/cache"
	"github.com/playforge/liveops/pkg/channel"
	"github.com/playforge/liveops/pkg/metrics"
	"github.com/playforge/liveops/pkg/publisher"
	"github.com/playforge/liveops/pkg/schema"
)

// Server owns the stores, the deployer, and the HTTP router.
type Server struct {
	config    *Config
	db        *gorm.DB
	logger    *slog.Logger
	metrics   *metrics.Metrics
	publisher publisher.Publisher
	extractor ActorExtractor

	schemas     *schema.Store
	channels    *channel.Store
	deployer    *channel.Deployer
	publicCache *cache.PublicCache

	router     chi.Router
	httpServer *http.Server
	startedAt  time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPublisher sets the artifact sink. Overrides the config's file
// publisher root.
func WithPublisher(p publisher.Publisher) ServerOption {
	return func(s *Server) {
		s.publisher = p
	}
}

// WithActorExtractor sets a custom principal extractor.
func WithActorExtractor(extract ActorExtractor) ServerOption {
	return func(s *Server) {
		s.extractor = extract
	}
}

// WithMetrics sets a shared metrics bundle, for tests that assert on
// counter values.
func WithMetrics(m *metrics.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a server over an open database handle.
func NewServer(cfg *Config, db *gorm.DB, logger *slog.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:    cfg,
		db:        db,
		logger:    logger,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	if s.extractor == nil {
		s.extractor = HeaderActorExtractor
	}
	if s.publisher == nil && cfg.Publisher.Root != "" {
		s.publisher = publisher.NewFilePublisher(cfg.Publisher.Root)
	}
	return s
}

// Init migrates the database and wires the stores together.
func (s *Server) Init() error {
	s.schemas = schema.NewStore(s.db)
	if err := s.schemas.AutoMigrate(); err != nil {
		return err
	}

	s.channels = channel.NewStore(s.db, s.schemas)
	if err := s.channels.AutoMigrate(); err != nil {
		return err
	}

	// Destructive schema operations consult the channel store for live
	// bindings.
	s.schemas.SetChannelGuard(s.channels)

	s.deployer = channel.NewDeployer(s.channels, s.publisher, s.metrics, s.logger)

	ttl := time.Duration(s.config.Cache.TTLSeconds) * time.Second
	s.publicCache = cache.NewPublicCache(cache.Config{
		Enabled:     s.config.Cache.Enabled,
		TTL:         ttl,
		MaxChannels: s.config.Cache.MaxChannels,
	}, "/public/v1")
	if s.publicCache != nil {
		s.deployer.SetReleaseCache(s.publicCache)
	}
	return nil
}

// MountRoutes creates the HTTP router with all routes mounted.
func (s *Server) MountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Principal", "X-User-Role"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(ActorMiddleware(s.extractor))
	r.Use(RequestLogger(s.logger, s.metrics))

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/schemas", schema.NewRouter(s.schemas))
		r.Mount("/", channel.NewRouter(s.channels, s.deployer))
	})

	// Read-only endpoints game clients poll; no actor required. Responses
	// are cached briefly and invalidated on deploy and rollback.
	r.Route("/public/v1", func(r chi.Router) {
		r.Use(s.publicCache.Middleware())
		r.Mount("/", channel.NewPublicRouter(s.channels))
	})

	r.Get("/healthz", s.healthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))

	s.router = r
	return r
}

// Router returns the mounted router, mounting it on first use.
func (s *Server) Router() chi.Router {
	if s.router == nil {
		return s.MountRoutes()
	}
	return s.router
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.config.Listen,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.config.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Stop(context.Background())
	}
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Schemas returns the schema registry store.
func (s *Server) Schemas() *schema.Store { return s.schemas }

// Channels returns the channel store.
func (s *Server) Channels() *channel.Store { return s.channels }

// Deployer returns the deployment pipeline.
func (s *Server) Deployer() *channel.Deployer { return s.deployer }

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}
