package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/mbd888/safescore/internal/cache"
	"github.com/mbd888/safescore/internal/etherscan"
	"github.com/mbd888/safescore/internal/idgen"
	"github.com/mbd888/safescore/internal/logging"
	"github.com/mbd888/safescore/internal/metrics"
	"github.com/mbd888/safescore/internal/pagination"
	"github.com/mbd888/safescore/internal/scoring"
	"github.com/mbd888/safescore/internal/traces"
	"github.com/mbd888/safescore/internal/validation"
)

const (
	defaultCacheTTL = 5 * time.Minute
	topTokenLimit   = 10
)

// Service runs wallet assessments.
type Service struct {
	fetch    Fetchers
	engine   *scoring.Engine
	store    Store
	cache    cache.Cache
	cacheTTL time.Duration
	events   EventEmitter
	limiter  *rate.Limiter
	inflight singleflight.Group
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCache serves repeat assessments from c for ttl.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithEventEmitter broadcasts finished assessments and batches.
func WithEventEmitter(e EventEmitter) Option {
	return func(s *Service) { s.events = e }
}

// WithBatchRate paces batch runs to perSecond wallets. Zero or less
// disables pacing.
func WithBatchRate(perSecond float64) Option {
	return func(s *Service) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a wallet risk service. store may be nil, in which
// case assessments are kept in memory.
func NewService(fetch Fetchers, engine *scoring.Engine, store Store, opts ...Option) *Service {
	if store == nil {
		store = NewMemoryStore()
	}
	s := &Service{
		fetch:    fetch,
		engine:   engine,
		store:    store,
		cacheTTL: defaultCacheTTL,
		limiter:  rate.NewLimiter(rate.Limit(1), 1),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeAddress lowercases address and checks its format.
func NormalizeAddress(address string) (string, error) {
	addr := validation.SanitizeAddress(address)
	if !validation.IsValidEthAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return addr, nil
}

// Assess scores a wallet, serving a cached assessment when one is fresh.
// Concurrent cache misses for one address share a single evaluation,
// which is not cancelled when the caller that started it goes away.
func (s *Service) Assess(ctx context.Context, address string) (*WalletAssessment, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if cached := s.cached(ctx, addr); cached != nil {
		return cached, nil
	}
	// The shared run outlives any one caller; each caller still stops
	// waiting when its own ctx ends.
	ch := s.inflight.DoChan(addr, func() (any, error) {
		ev, err := s.run(context.WithoutCancel(ctx), addr)
		if err != nil {
			return nil, err
		}
		return ev.wallet, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*WalletAssessment), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reassess scores a wallet from fresh upstream data, replacing any cached entry.
func (s *Service) Reassess(ctx context.Context, address string) (*WalletAssessment, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	ev, err := s.run(ctx, addr)
	if err != nil {
		return nil, err
	}
	return ev.wallet, nil
}

// Report runs a fresh assessment and returns it with the data it was
// computed from.
func (s *Service) Report(ctx context.Context, address string) (*ComprehensiveReport, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	ev, err := s.run(ctx, addr)
	if err != nil {
		return nil, err
	}
	return buildReport(ev), nil
}

// Score runs the engine on caller-supplied inputs without upstream fetches.
func (s *Service) Score(ctx context.Context, in scoring.Inputs) *scoring.Assessment {
	return s.engine.Score(ctx, in)
}

// History returns the newest stored assessments for address. limit is
// clamped to [1, MaxHistoryLimit]; zero means DefaultHistoryLimit.
func (s *Service) History(ctx context.Context, address string, limit int) ([]*WalletAssessment, error) {
	page, err := s.HistoryPage(ctx, address, "", limit)
	if err != nil {
		return nil, err
	}
	return page.Assessments, nil
}

// HistoryPage returns one page of stored assessments. An empty cursor
// starts at the newest; NextCursor is set when older ones remain.
func (s *Service) HistoryPage(ctx context.Context, address, cursor string, limit int) (*HistoryPage, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	before, err := pagination.Decode(cursor)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	list, err := s.store.ListByAddress(ctx, addr, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	list, next := pagination.Page(list, limit, func(wa *WalletAssessment) (time.Time, string) {
		return wa.AssessedAt, wa.ID
	})
	if list == nil {
		list = []*WalletAssessment{}
	}
	return &HistoryPage{Assessments: list, NextCursor: next}, nil
}

// Latest returns the most recent stored assessment for address.
func (s *Service) Latest(ctx context.Context, address string) (*WalletAssessment, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	return s.store.Latest(ctx, addr)
}

// AssessBatch assesses addresses one at a time at the configured batch
// rate. A failing address is reported in its result and does not stop
// the batch; cancellation does, returning the results gathered so far.
func (s *Service) AssessBatch(ctx context.Context, addresses []string) (*Batch, error) {
	if len(addresses) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(addresses) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(addresses), MaxBatchSize)
	}

	batch := &Batch{
		ID:      idgen.WithPrefix(idgen.BatchPrefix),
		Results: make([]BatchResult, 0, len(addresses)),
	}
	log := s.log(ctx).With("batch_id", batch.ID)
	log.Info("batch started", "wallets", len(addresses))

	for i, address := range addresses {
		if err := s.limiter.Wait(ctx); err != nil {
			log.Warn("batch cancelled", "completed", i, "error", err)
			return batch, fmt.Errorf("batch cancelled after %d of %d wallets: %w", i, len(addresses), ctxErr(ctx, err))
		}

		res := BatchResult{Address: address}
		wa, err := s.Assess(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return batch, fmt.Errorf("batch cancelled after %d of %d wallets: %w", i, len(addresses), ctx.Err())
			}
			res.Error = err.Error()
			batch.Failed++
			metrics.BatchWalletsTotal.WithLabelValues("error").Inc()
			log.Warn("batch wallet failed", "address", address, "error", err)
		} else {
			res.Address = wa.Address
			res.Assessment = wa
			batch.Succeeded++
			metrics.BatchWalletsTotal.WithLabelValues("ok").Inc()
		}
		batch.Results = append(batch.Results, res)
	}

	batch.CompletedAt = s.now().UTC()
	log.Info("batch completed", "succeeded", batch.Succeeded, "failed", batch.Failed)
	if s.events != nil {
		s.events.EmitBatchCompleted(batch)
	}
	return batch, nil
}

// ctxErr prefers the context's own error over the limiter's wrapper.
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// evaluation is one assessment together with the data it was computed from.
type evaluation struct {
	wallet *WalletAssessment
	inputs scoring.Inputs
	names  []string
	took   time.Duration
}

// run evaluates addr and then persists, caches and broadcasts the result.
func (s *Service) run(ctx context.Context, addr string) (*evaluation, error) {
	ev, err := s.evaluate(ctx, addr)
	if err != nil {
		return nil, err
	}
	log := s.log(ctx)

	if err := s.store.Record(ctx, ev.wallet); err != nil {
		log.Error("failed to record assessment", "address", addr, "error", err)
	}
	s.storeCache(ctx, ev.wallet)
	if s.events != nil {
		s.events.EmitWalletAssessed(ev.wallet)
	}

	metrics.AssessmentsTotal.WithLabelValues(string(ev.wallet.Level())).Inc()
	metrics.AssessmentDuration.Observe(ev.took.Seconds())
	log.Info("wallet assessed",
		"address", addr,
		"score", ev.wallet.Score(),
		"level", ev.wallet.Level(),
		"duration_ms", ev.wallet.DurationMS,
	)
	return ev, nil
}

func (s *Service) evaluate(ctx context.Context, addr string) (*evaluation, error) {
	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "risk.Assess", traces.WalletAddress(addr))
	defer span.End()
	log := s.log(ctx)

	var (
		txs       []etherscan.Transaction
		txErr     error
		info      *scoring.AddressInfo
		contracts map[string]string
	)
	balances := scoring.BalanceData{Tokens: []scoring.TokenHolding{}}

	// Every fetch degrades on its own; none of them fails the group.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, txErr = s.fetch.Transactions.Transactions(gctx, addr)
		return nil
	})
	g.Go(func() error {
		b, err := s.fetch.Transactions.Balances(gctx, addr)
		if err != nil {
			log.Warn("balance lookup failed", "address", addr, "error", err)
		}
		if b.Tokens != nil {
			balances.Tokens = b.Tokens
		}
		balances.ETHBalance = b.ETHBalance
		return nil
	})
	g.Go(func() error {
		m, err := s.fetch.Protocols.ContractMap(gctx)
		if err != nil {
			log.Warn("contract map unavailable", "error", err)
		}
		contracts = m
		return nil
	})
	if s.fetch.Prober != nil {
		g.Go(func() error {
			i, err := s.fetch.Prober.Probe(gctx, addr)
			if err != nil {
				log.Warn("address probe failed", "address", addr, "error", err)
				return nil
			}
			info = i
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		traces.Fail(span, err)
		return nil, err
	}

	balances.AddressInfo = info
	patterns := etherscan.PatternsOrMarker(addr, txs, txErr, s.now())
	if txErr != nil && patterns.Error == etherscan.NoDataReason {
		log.Warn("transaction history unavailable", "address", addr, "error", txErr)
	}

	names := ProtocolNames(etherscan.ContractCalls(txs), contracts)
	in := scoring.Inputs{
		Patterns:  patterns,
		Protocols: s.fetch.Protocols.AnalyzeInteractions(ctx, names),
		Balances:  balances,
	}

	assessment := s.engine.Score(ctx, in)
	took := time.Since(start)
	span.SetAttributes(
		traces.RiskScore(assessment.OverallRiskScore),
		traces.RiskLevel(string(assessment.RiskLevel)),
	)

	return &evaluation{
		wallet: &WalletAssessment{
			ID:         idgen.WithPrefix(idgen.AssessmentPrefix),
			Address:    addr,
			Assessment: assessment,
			Summary:    summarize(in, names),
			AssessedAt: s.now().UTC(),
			DurationMS: took.Milliseconds(),
		},
		inputs: in,
		names:  names,
		took:   took,
	}, nil
}

func (s *Service) cached(ctx context.Context, addr string) *WalletAssessment {
	if s.cache == nil {
		return nil
	}
	raw, ok, err := s.cache.Get(ctx, cache.AssessmentKey(addr))
	switch {
	case err != nil:
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
		s.log(ctx).Warn("cache read failed", "address", addr, "error", err)
		return nil
	case !ok:
		metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil
	}

	var wa WalletAssessment
	if err := json.Unmarshal(raw, &wa); err != nil {
		metrics.CacheRequestsTotal.WithLabelValues("error").Inc()
		s.log(ctx).Warn("discarding unreadable cache entry", "address", addr, "error", err)
		_ = s.cache.Delete(ctx, cache.AssessmentKey(addr))
		return nil
	}
	metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
	wa.Cached = true
	return &wa
}

func (s *Service) storeCache(ctx context.Context, wa *WalletAssessment) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(wa)
	if err == nil {
		err = s.cache.Set(ctx, cache.AssessmentKey(wa.Address), raw, s.cacheTTL)
	}
	if err != nil {
		s.log(ctx).Warn("cache write failed", "address", wa.Address, "error", err)
	}
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	if id := logging.RequestID(ctx); id != "" {
		return s.logger.With("request_id", id)
	}
	return s.logger
}

// ProtocolNames maps contract calls to protocol names through contracts
// (lowercase address -> name). Unmapped calls are named NameTokenTransfer
// when they carry no calldata and NameUnknownProtocol otherwise. Names
// keep first-seen order without duplicates; no calls yields
// NameNoInteractions.
func ProtocolNames(calls []etherscan.Transaction, contracts map[string]string) []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(calls))
	for _, tx := range calls {
		name := contracts[strings.ToLower(tx.To)]
		if name == "" {
			if tx.Input == "" || tx.Input == "0x" {
				name = NameTokenTransfer
			} else {
				name = NameUnknownProtocol
			}
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return []string{NameNoInteractions}
	}
	return names
}

func identified(names []string) int {
	if len(names) == 1 && names[0] == NameNoInteractions {
		return 0
	}
	return len(names)
}

func successRate(p scoring.TransactionPatterns) float64 {
	return float64(p.SuccessfulTransactions) / float64(max(p.TotalTransactions, 1)) * 100
}

func summarize(in scoring.Inputs, names []string) Summary {
	return Summary{
		TotalTransactions:   in.Patterns.TotalTransactions,
		SuccessRate:         round2(successRate(in.Patterns)),
		ETHBalance:          in.Balances.ETHBalance,
		TokenTypes:          len(in.Balances.Tokens),
		ProtocolsIdentified: identified(names),
		Protocols:           names,
	}
}

func buildReport(ev *evaluation) *ComprehensiveReport {
	p := ev.inputs.Patterns
	pa := ev.inputs.Protocols
	b := ev.inputs.Balances

	categories := pa.Categories
	if categories == nil {
		categories = []string{}
	}
	top := b.Tokens
	if len(top) > topTokenLimit {
		top = top[:topTokenLimit]
	}

	assets := AssetSummary{
		ETHBalance:  b.ETHBalance,
		TokenTypes:  len(b.Tokens),
		TopTokens:   top,
		AddressType: "Unknown",
	}
	if b.AddressInfo != nil {
		assets.IsContract = b.AddressInfo.IsContract
		assets.AddressType = b.AddressInfo.AddressType
		assets.TransactionCount = b.AddressInfo.TransactionCount
	}

	return &ComprehensiveReport{
		WalletAssessment: ev.wallet,
		Transactions: TransactionSummary{
			TotalTransactions:     p.TotalTransactions,
			SuccessRate:           round2(successRate(p)),
			RecentActivity:        p.RecentActivity,
			ContractInteractions:  p.ContractInteractions,
			UniqueAddresses:       p.UniqueAddresses,
			HighValueTransactions: p.HighValueTransactions,
			ActivityFrequency:     p.Time.ActivityFrequency,
			AvgGasPrice:           p.Gas.AvgGasPrice,
			TotalFeesPaid:         p.Gas.TotalFees,
			TotalValueIn:          p.Value.TotalValueIn,
			TotalValueOut:         p.Value.TotalValueOut,
			FirstSeen:             p.Time.FirstTransaction,
			LastSeen:              p.Time.LastTransaction,
			DataError:             p.Error,
		},
		Protocols: ProtocolSummary{
			Names:                ev.names,
			ProtocolsIdentified:  identified(ev.names),
			ProtocolsInteracted:  len(pa.Protocols),
			HighRiskProtocols:    pa.HighRiskProtocols,
			AverageProtocolRisk:  pa.AverageRisk,
			DiversificationScore: pa.DiversificationScore,
			TotalTVLExposure:     pa.TotalTVLInteracted,
			Categories:           categories,
			RiskDistribution:     pa.RiskDistribution,
		},
		Assets:   assets,
		Duration: round2(ev.took.Seconds()),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
