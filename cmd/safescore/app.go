package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/mbd888/safescore/internal/cache"
	"github.com/mbd888/safescore/internal/chain"
	"github.com/mbd888/safescore/internal/config"
	"github.com/mbd888/safescore/internal/defillama"
	"github.com/mbd888/safescore/internal/etherscan"
	"github.com/mbd888/safescore/internal/llm"
	"github.com/mbd888/safescore/internal/logging"
	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/scoring"
)

// app is the assessment stack wired for one CLI invocation. It keeps
// history in memory; a configured Redis cache is shared with the server.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	service   *risk.Service
	protocols *defillama.Client
	closers   []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NewWithOptions(logging.Options{
		Level:  flagLogLevel,
		Format: "text",
		File:   cfg.LogFile,
		Output: os.Stderr,
	})

	a := &app{cfg: cfg, logger: logger}

	explorer, err := etherscan.NewClient(cfg.EtherscanAPIKey,
		etherscan.WithBaseURL(cfg.EtherscanURL),
		etherscan.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create etherscan client: %w", err)
	}
	a.protocols = defillama.NewClient(
		defillama.WithBaseURL(cfg.DefiLlamaURL),
		defillama.WithLogger(logger),
	)
	fetch := risk.Fetchers{Transactions: explorer, Protocols: a.protocols}

	if prober, err := chain.Dial(ctx, cfg.RPCURL); err != nil {
		logger.Warn("RPC node unavailable, address probing disabled", "error", err)
	} else {
		fetch.Prober = prober
		a.closers = append(a.closers, prober.Close)
	}

	var opts []risk.Option
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("redis unavailable, assessing without cache", "error", err)
		} else {
			opts = append(opts, risk.WithCache(rc, cfg.CacheTTL))
			a.closers = append(a.closers, rc.Close)
		}
	}

	var oracle scoring.Oracle
	if cfg.LLMEnabled() {
		oracle = llm.NewGemini(cfg.GeminiAPIKey,
			llm.WithModel(cfg.GeminiModel),
			llm.WithLogger(logger),
		)
	}

	opts = append(opts,
		risk.WithBatchRate(cfg.BatchRate),
		risk.WithLogger(logger),
	)
	a.service = risk.NewService(fetch, scoring.NewEngine(cfg.Scoring, oracle), risk.NewMemoryStore(), opts...)
	return a, nil
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}
