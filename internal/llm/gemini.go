// Package llm implements the scoring oracle on Google Gemini.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mbd888/safescore/internal/circuitbreaker"
	"github.com/mbd888/safescore/internal/metrics"
	"github.com/mbd888/safescore/internal/scoring"
	"github.com/mbd888/safescore/internal/traces"
)

// ErrEmptyResponse means the model answered without any text.
var ErrEmptyResponse = errors.New("llm: Gemini returned no text")

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-1.5-flash"

	temperature     = 0.1
	maxOutputTokens = 500
	defaultScore    = 50.0
	maxResponseSize = 1 << 20
	breakerKey      = "gemini"
)

// Reasoning strings attached to unavailable results.
const (
	ReasonNoAPIKey    = "Gemini analysis not available (no API key)"
	ReasonCallFailed  = "Gemini API call failed"
	ReasonCircuitOpen = "Gemini analysis skipped (circuit open after repeated failures)"
	reasonCompleted   = "Gemini analysis completed"
)

// Gemini is a scoring.Oracle backed by the generateContent REST endpoint.
// Repeated upstream failures open a circuit so later assessments skip
// the call until the cooldown passes.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

var _ scoring.Oracle = (*Gemini)(nil)

// Option configures Gemini.
type Option func(*Gemini)

func WithModel(model string) Option {
	return func(g *Gemini) {
		if model != "" {
			g.model = model
		}
	}
}

func WithBaseURL(u string) Option {
	return func(g *Gemini) { g.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(g *Gemini) { g.http = h }
}

// WithBreaker replaces the default breaker (5 failures, 30s cooldown).
func WithBreaker(b *circuitbreaker.Breaker) Option {
	return func(g *Gemini) { g.breaker = b }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gemini) { g.logger = l }
}

// NewGemini creates the oracle. An empty apiKey is allowed; every
// assessment then reports the oracle as unavailable.
func NewGemini(apiKey string, opts ...Option) *Gemini {
	g := &Gemini{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: DefaultBaseURL,
		http:    &http.Client{},
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		g.logger.Warn("gemini circuit state changed", "from", from.String(), "to", to.String())
	})
	return g
}

// Available reports whether an API key is configured.
func (g *Gemini) Available() bool {
	return g.apiKey != ""
}

// Ping reports the oracle unhealthy while its circuit is open. It does not
// call the API, so health checks never spend model quota.
func (g *Gemini) Ping(context.Context) error {
	if !g.Available() {
		return errors.New("gemini: no API key")
	}
	if st := g.breaker.State(breakerKey); st != circuitbreaker.StateClosed {
		return fmt.Errorf("gemini: circuit %s", st)
	}
	return nil
}

// Assess asks the model for a score. Failures come back as an
// unavailable result, never as an error.
func (g *Gemini) Assess(ctx context.Context, in scoring.Inputs) (*scoring.OracleResult, error) {
	if !g.Available() {
		metrics.OracleCallsTotal.WithLabelValues("unavailable").Inc()
		return scoring.Unavailable(ReasonNoAPIKey), nil
	}

	ctx, span := traces.StartSpan(ctx, "gemini.assess", traces.Upstream(breakerKey))
	defer span.End()

	var text string
	err := g.breaker.Execute(breakerKey, func() error {
		var err error
		text, err = g.generate(ctx, BuildPrompt(in))
		return err
	})
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		metrics.OracleCallsTotal.WithLabelValues("circuit_open").Inc()
		return scoring.Unavailable(ReasonCircuitOpen), nil
	case errors.Is(err, ErrEmptyResponse):
		metrics.OracleCallsTotal.WithLabelValues("error").Inc()
		traces.Fail(span, err)
		return scoring.Unavailable(ReasonCallFailed), nil
	case err != nil:
		metrics.OracleCallsTotal.WithLabelValues("error").Inc()
		traces.Fail(span, err)
		g.logger.Warn("gemini call failed", "error", err)
		return scoring.Unavailable(fmt.Sprintf("Gemini API error: %v", err)), nil
	}

	metrics.OracleCallsTotal.WithLabelValues("ok").Inc()
	return ParseResponse(text), nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *Gemini) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     temperature,
			MaxOutputTokens: maxOutputTokens,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(g.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	resp, err := g.http.Do(req)
	metrics.ObserveUpstream(breakerKey, start, err)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("failed to decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("HTTP %d %s: %s", resp.StatusCode, out.Error.Status, out.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 ||
		strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text) == "" {
		return "", ErrEmptyResponse
	}
	return out.Candidates[0].Content.Parts[0].Text, nil
}

type modelAnswer struct {
	OverallRiskScore *float64           `json:"overall_risk_score"`
	ComponentScores  map[string]float64 `json:"component_scores"`
	RiskReasoning    *string            `json:"risk_reasoning"`
	KeyInsights      []string           `json:"key_insights"`
}

// ParseResponse reads the model's JSON answer, tolerating a markdown
// code fence. A missing score defaults to 50; an unparsable answer
// scores 50 with the parse error as reasoning.
func ParseResponse(text string) *scoring.OracleResult {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	score := defaultScore
	var ans modelAnswer
	if err := json.Unmarshal([]byte(cleaned), &ans); err != nil {
		res := scoring.Unavailable(fmt.Sprintf("Gemini response could not be parsed: %v", err))
		res.Score = &score
		return res
	}

	if ans.OverallRiskScore != nil {
		score = *ans.OverallRiskScore
	}
	res := &scoring.OracleResult{
		Score:           &score,
		ComponentScores: ans.ComponentScores,
		Reasoning:       reasonCompleted,
		KeyInsights:     ans.KeyInsights,
	}
	if ans.RiskReasoning != nil {
		res.Reasoning = *ans.RiskReasoning
	}
	if res.ComponentScores == nil {
		res.ComponentScores = map[string]float64{}
	}
	if res.KeyInsights == nil {
		res.KeyInsights = []string{}
	}
	return res
}
