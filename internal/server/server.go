// Package server assembles the SafeScore HTTP API: storage, cache,
// upstream clients, the risk service, the realtime hub and the gin router.
package server

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/safescore/internal/cache"
	"github.com/mbd888/safescore/internal/chain"
	"github.com/mbd888/safescore/internal/config"
	"github.com/mbd888/safescore/internal/defillama"
	"github.com/mbd888/safescore/internal/health"
	"github.com/mbd888/safescore/internal/logging"
	"github.com/mbd888/safescore/internal/ratelimit"
	"github.com/mbd888/safescore/internal/realtime"
	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/scoring"
)

const (
	defaultShutdownDelay = 5 * time.Second
	memoryCacheWindow    = 10 * time.Minute
	maxTopFactors        = 3
)

// Server owns the API's dependencies and its HTTP listener.
type Server struct {
	cfg     *config.Config
	version string
	logger  *slog.Logger

	service     *risk.Service
	fetch       *risk.Fetchers
	oracle      scoring.Oracle
	protocols   *defillama.Client // nil when fetchers are injected
	prober      *chain.Prober     // nil without a reachable RPC node
	cache       cache.Cache
	db          *sql.DB // nil with the in-memory store
	realtimeHub *realtime.Hub
	health      *health.Registry
	rateLimiter *ratelimit.Limiter

	router  *gin.Engine
	httpSrv *http.Server

	shutdownDelay time.Duration
	cancelRunCtx  context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger used by the server and everything it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithVersion sets the version reported by /health and /api.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithFetchers replaces the Etherscan, DeFiLlama and RPC clients.
func WithFetchers(f risk.Fetchers) Option {
	return func(s *Server) { s.fetch = &f }
}

// WithOracle sets the LLM oracle instead of building one from config.
func WithOracle(o scoring.Oracle) Option {
	return func(s *Server) { s.oracle = o }
}

// WithCache sets the assessment cache instead of building one from config.
func WithCache(c cache.Cache) Option {
	return func(s *Server) { s.cache = c }
}

// WithShutdownDelay sets how long Shutdown reports not-ready before it
// stops accepting connections.
func WithShutdownDelay(d time.Duration) Option {
	return func(s *Server) { s.shutdownDelay = d }
}

// New wires the server from cfg. Postgres and Redis are used when their
// URLs are set; otherwise storage and cache stay in-process.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:           cfg,
		version:       "dev",
		health:        health.NewRegistry(),
		shutdownDelay: defaultShutdownDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	}

	ctx := context.Background()

	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache == nil {
		if s.cache, err = s.openCache(ctx); err != nil {
			return nil, err
		}
	}
	if s.fetch == nil {
		if s.fetch, err = s.dialUpstreams(ctx); err != nil {
			return nil, err
		}
	}
	if s.oracle == nil {
		s.oracle = s.newOracle()
	}

	s.realtimeHub = realtime.NewHub(s.logger, realtime.WithAllowedOrigins(s.allowedOrigins()))
	s.service = risk.NewService(*s.fetch, scoring.NewEngine(cfg.Scoring, s.oracle), store,
		risk.WithCache(s.cache, cfg.CacheTTL),
		risk.WithEventEmitter(&hubEmitter{hub: s.realtimeHub}),
		risk.WithBatchRate(cfg.BatchRate),
		risk.WithLogger(s.logger),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// Router returns the gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Service returns the wallet risk service.
func (s *Server) Service() *risk.Service {
	return s.service
}

func (s *Server) storageKind() string {
	if s.db != nil {
		return "postgres"
	}
	return "memory"
}

