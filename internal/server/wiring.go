package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"

	"github.com/mbd888/safescore/internal/cache"
	"github.com/mbd888/safescore/internal/chain"
	"github.com/mbd888/safescore/internal/defillama"
	"github.com/mbd888/safescore/internal/etherscan"
	"github.com/mbd888/safescore/internal/health"
	"github.com/mbd888/safescore/internal/llm"
	"github.com/mbd888/safescore/internal/metrics"
	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/scoring"
)

// openStore connects to Postgres when DATABASE_URL is set. A failed
// migration is logged, not fatal: the schema may be managed by cmd/migrate.
func (s *Server) openStore(ctx context.Context) (risk.Store, error) {
	if s.cfg.DatabaseURL == "" {
		s.logger.Info("using in-memory storage (data will not persist)")
		return risk.NewMemoryStore(), nil
	}

	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := risk.NewPostgresStore(db)
	if err := store.Migrate(ctx); err != nil {
		s.logger.Warn("failed to migrate assessment store", "error", err)
	}

	if err := metrics.RegisterDB(db); err != nil {
		s.logger.Warn("failed to register database metrics", "error", err)
	}
	s.db = db
	s.health.Register("database", health.FromPinger("database", health.PingFunc(db.PingContext)))
	s.logger.Info("using PostgreSQL storage", "url", maskDSN(s.cfg.DatabaseURL))
	return store, nil
}

// openCache returns a Redis cache when REDIS_URL is set and an in-process
// one otherwise.
func (s *Server) openCache(ctx context.Context) (cache.Cache, error) {
	if s.cfg.RedisURL == "" {
		mc, err := cache.NewMemory(memoryCacheWindow)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		s.logger.Info("using in-process assessment cache", "ttl", s.cfg.CacheTTL)
		return mc, nil
	}

	rc, err := cache.NewRedis(ctx, s.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.health.Register("redis", health.FromPinger("redis", rc))
	s.logger.Info("using Redis assessment cache", "ttl", s.cfg.CacheTTL)
	return rc, nil
}

// dialUpstreams builds the Etherscan, DeFiLlama and RPC clients. An
// unreachable RPC node is not fatal; reports then omit address facts.
func (s *Server) dialUpstreams(ctx context.Context) (*risk.Fetchers, error) {
	explorer, err := etherscan.NewClient(s.cfg.EtherscanAPIKey,
		etherscan.WithBaseURL(s.cfg.EtherscanURL),
		etherscan.WithLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create etherscan client: %w", err)
	}
	s.protocols = defillama.NewClient(
		defillama.WithBaseURL(s.cfg.DefiLlamaURL),
		defillama.WithLogger(s.logger),
	)
	s.health.RegisterOptional("etherscan", health.FromPinger("etherscan", explorer))
	s.health.RegisterOptional("defillama", health.FromPinger("defillama", s.protocols))

	fetch := &risk.Fetchers{Transactions: explorer, Protocols: s.protocols}

	prober, err := chain.Dial(ctx, s.cfg.RPCURL)
	if err != nil {
		s.logger.Warn("RPC node unavailable, address probing disabled", "error", err)
		return fetch, nil
	}
	s.prober = prober
	fetch.Prober = prober
	s.health.RegisterOptional("rpc", health.FromPinger("rpc", prober))
	return fetch, nil
}

// newOracle returns the Gemini oracle, or nil for rule-based scoring.
func (s *Server) newOracle() scoring.Oracle {
	if !s.cfg.LLMEnabled() {
		s.logger.Info("LLM oracle disabled, rule-based scoring only")
		return nil
	}
	g := llm.NewGemini(s.cfg.GeminiAPIKey,
		llm.WithModel(s.cfg.GeminiModel),
		llm.WithLogger(s.logger),
	)
	s.health.RegisterOptional("gemini", health.FromPinger("gemini", g))
	s.logger.Info("LLM oracle enabled", "model", s.cfg.GeminiModel)
	return g
}

// maskDSN hides the password in a connection string.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
