// Package scoring computes a 0-100 risk score for a wallet from four
// rule-based analyzers and an optional model-based opinion.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"
)

// Component score keys, shared with the oracle's component breakdown.
const (
	KeyTransaction   = "transaction_patterns"
	KeyProtocol      = "protocol_interactions"
	KeyConcentration = "asset_concentration"
	KeyBehavioral    = "behavioral_patterns"
)

const (
	levelUnavailable       = "N/A"
	methodologyRuleOnly    = "100% rule-based (Gemini unavailable)"
	reasoningNoOracle      = "LLM analysis not configured"
	reasoningNoOracleScore = "LLM analysis not available"
)

// Assessment is the result of scoring one wallet. Hybrid values are primary.
type Assessment struct {
	OverallRiskScore float64            `json:"overall_risk_score"`
	RiskLevel        RiskLevel          `json:"risk_level"`
	RiskDescription  string             `json:"risk_description"`
	ComponentScores  map[string]float64 `json:"component_scores"`
	ComponentWeights map[string]float64 `json:"component_weights"`
	RiskFactors      []string           `json:"risk_factors"`
	Recommendations  []string           `json:"recommendations"`
	RiskDistribution RiskBuckets        `json:"risk_distribution"`
	DetailedAnalysis DetailedAnalysis   `json:"detailed_analysis"`
	ScoringMethods   ScoringMethods     `json:"scoring_methods"`
}

// DetailedAnalysis keeps every analyzer's full output.
type DetailedAnalysis struct {
	Transaction   ComponentResult `json:"transaction_analysis"`
	Protocol      ComponentResult `json:"protocol_analysis"`
	Concentration ComponentResult `json:"concentration_analysis"`
	Behavioral    ComponentResult `json:"behavioral_analysis"`
	LLM           *OracleResult   `json:"llm_analysis"`
}

// ScoringMethods holds three independent breakdowns.
type ScoringMethods struct {
	RuleBased MethodBreakdown `json:"rule_based"`
	LLMBased  LLMBreakdown    `json:"llm_based"`
	Hybrid    HybridBreakdown `json:"hybrid"`
}

// MethodBreakdown is one scoring method's overall and component scores.
type MethodBreakdown struct {
	OverallScore float64            `json:"overall_score"`
	RiskLevel    RiskLevel          `json:"risk_level"`
	Components   map[string]float64 `json:"components"`
}

// LLMBreakdown is the oracle's view. OverallScore is nil when unavailable.
type LLMBreakdown struct {
	OverallScore *float64           `json:"overall_score"`
	RiskLevel    string             `json:"risk_level"`
	Components   map[string]float64 `json:"components"`
	Reasoning    string             `json:"reasoning"`
	KeyInsights  []string           `json:"key_insights"`
}

// HybridBreakdown is the blended view plus how it was produced.
type HybridBreakdown struct {
	MethodBreakdown
	Methodology string `json:"methodology"`
}

// Engine orchestrates the analyzers and the oracle.
type Engine struct {
	cfg           Config
	transaction   *TransactionAnalyzer
	protocol      *ProtocolAnalyzer
	concentration *ConcentrationAnalyzer
	behavioral    *BehavioralAnalyzer
	oracle        Oracle
	logger        *slog.Logger
}

// NewEngine creates an engine. oracle may be nil, in which case every
// assessment is purely rule-based.
func NewEngine(cfg Config, oracle Oracle) *Engine {
	cfg = cfg.clone()
	return &Engine{
		cfg:           cfg,
		transaction:   NewTransactionAnalyzer(cfg),
		protocol:      NewProtocolAnalyzer(cfg),
		concentration: NewConcentrationAnalyzer(cfg),
		behavioral:    NewBehavioralAnalyzer(cfg),
		oracle:        oracle,
		logger:        slog.Default(),
	}
}

// WithLogger sets the logger used for oracle failures.
func (e *Engine) WithLogger(l *slog.Logger) *Engine {
	if l != nil {
		e.logger = l
	}
	return e
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg.clone()
}

// Score assesses a wallet. It always returns a complete assessment; an
// oracle failure or timeout only removes the model-based contribution.
func (e *Engine) Score(ctx context.Context, in Inputs) *Assessment {
	var (
		txRes, protoRes, concRes, behRes ComponentResult
		oracleRes                        *OracleResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { txRes = e.transaction.Analyze(in.Patterns); return nil })
	g.Go(func() error { protoRes = e.protocol.Analyze(in.Protocols); return nil })
	g.Go(func() error { concRes = e.concentration.Analyze(in.Balances); return nil })
	g.Go(func() error { behRes = e.behavioral.Analyze(in.Patterns); return nil })
	g.Go(func() error { oracleRes = e.consult(gctx, in); return nil })
	_ = g.Wait()

	rule := map[string]float64{
		KeyTransaction:   txRes.RiskScore,
		KeyProtocol:      protoRes.RiskScore,
		KeyConcentration: concRes.RiskScore,
		KeyBehavioral:    behRes.RiskScore,
	}
	w := e.cfg.Weights
	ruleOverall := clamp(rule[KeyTransaction]*w.TransactionPatterns +
		rule[KeyProtocol]*w.ProtocolInteractions +
		rule[KeyConcentration]*w.AssetConcentration +
		rule[KeyBehavioral]*w.Behavioral())

	hybrid := make(map[string]float64, len(rule))
	hybridOverall := ruleOverall
	methodology := methodologyRuleOnly
	llm := LLMBreakdown{
		RiskLevel:   levelUnavailable,
		Components:  oracleRes.ComponentScores,
		Reasoning:   oracleRes.Reasoning,
		KeyInsights: oracleRes.KeyInsights,
	}

	if oracleRes.Available() {
		llmScore := clamp(*oracleRes.Score)
		b := e.cfg.Components
		blends := map[string]Blend{
			KeyTransaction:   b.Transaction,
			KeyProtocol:      b.Protocol,
			KeyConcentration: b.Concentration,
			KeyBehavioral:    b.Behavioral,
		}
		for key, ruleScore := range rule {
			llmComponent := ruleScore
			if v, ok := oracleRes.ComponentScores[key]; ok {
				llmComponent = clamp(v)
			}
			hybrid[key] = blends[key].apply(ruleScore, llmComponent)
		}
		hybridOverall = e.cfg.Overall.apply(ruleOverall, llmScore)
		methodology = fmt.Sprintf("%.0f%% rule-based + %.0f%% Gemini", e.cfg.Overall.Rule*100, e.cfg.Overall.LLM*100)

		rounded := round2(llmScore)
		llm.OverallScore = &rounded
		llm.RiskLevel = string(Level(llmScore))
	} else {
		for key, v := range rule {
			hybrid[key] = v
		}
	}

	level := Level(hybridOverall)
	factors := make([]string, 0, len(txRes.Reasons)+len(protoRes.Reasons)+len(concRes.Reasons)+len(behRes.Reasons))
	factors = append(factors, txRes.Reasons...)
	factors = append(factors, protoRes.Reasons...)
	factors = append(factors, concRes.Reasons...)
	factors = append(factors, behRes.Reasons...)

	components := ComponentScores{
		Transaction:   hybrid[KeyTransaction],
		Protocol:      hybrid[KeyProtocol],
		Concentration: hybrid[KeyConcentration],
		Behavioral:    hybrid[KeyBehavioral],
	}

	return &Assessment{
		OverallRiskScore: round2(hybridOverall),
		RiskLevel:        level,
		RiskDescription:  level.Description(),
		ComponentScores:  roundAll(hybrid),
		ComponentWeights: w.asMap(),
		RiskFactors:      factors,
		Recommendations:  Recommendations(hybridOverall, components, factors, e.cfg.MaxRecommendations),
		RiskDistribution: Categorize([]NamedScore{
			{Name: "transaction", Score: components.Transaction},
			{Name: "protocol", Score: components.Protocol},
			{Name: "concentration", Score: components.Concentration},
			{Name: "behavioral", Score: components.Behavioral},
		}),
		DetailedAnalysis: DetailedAnalysis{
			Transaction:   txRes,
			Protocol:      protoRes,
			Concentration: concRes,
			Behavioral:    behRes,
			LLM:           oracleRes,
		},
		ScoringMethods: ScoringMethods{
			RuleBased: MethodBreakdown{
				OverallScore: round2(ruleOverall),
				RiskLevel:    Level(ruleOverall),
				Components:   roundAll(rule),
			},
			LLMBased: llm,
			Hybrid: HybridBreakdown{
				MethodBreakdown: MethodBreakdown{
					OverallScore: round2(hybridOverall),
					RiskLevel:    level,
					Components:   roundAll(hybrid),
				},
				Methodology: methodology,
			},
		},
	}
}

// consult calls the oracle under the configured timeout. It never returns
// nil and never lets an oracle failure escape.
func (e *Engine) consult(ctx context.Context, in Inputs) *OracleResult {
	if e.oracle == nil {
		return Unavailable(reasoningNoOracle)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	type outcome struct {
		res *OracleResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("oracle panic: %v", r)}
			}
		}()
		res, err := e.oracle.Assess(ctx, in)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		out = outcome{err: ctx.Err()}
	}

	if out.err != nil {
		e.logger.Warn("llm analysis failed, using rule-based score", "error", out.err)
		return Unavailable(fmt.Sprintf("LLM analysis failed: %v", out.err))
	}
	if out.res == nil {
		return Unavailable(reasoningNoOracleScore)
	}
	return normalizeOracle(out.res)
}

// normalizeOracle copies the result so the assessment owns its data.
// Non-finite numbers are dropped.
func normalizeOracle(r *OracleResult) *OracleResult {
	out := &OracleResult{
		Reasoning:       r.Reasoning,
		ComponentScores: make(map[string]float64, len(r.ComponentScores)),
		KeyInsights:     append([]string{}, r.KeyInsights...),
	}
	if r.Score != nil && finite(*r.Score) {
		v := *r.Score
		out.Score = &v
	}
	for k, v := range r.ComponentScores {
		if finite(v) {
			out.ComponentScores[k] = v
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func roundAll(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = round2(v)
	}
	return out
}
