package scoring

import "context"

// Oracle produces an independent, model-based opinion of a wallet.
//
// A nil Score means the opinion is unavailable (no credential, call
// failure or unparsable response). Assess may also return an error; the
// engine treats both the same way and never fails because of the oracle.
type Oracle interface {
	Assess(ctx context.Context, in Inputs) (*OracleResult, error)
}

// OracleResult is the oracle's opinion. ComponentScores uses the same keys
// as Assessment.ComponentScores; missing keys fall back to the rule score.
type OracleResult struct {
	Score           *float64           `json:"llm_risk_score"`
	ComponentScores map[string]float64 `json:"component_scores"`
	Reasoning       string             `json:"reasoning"`
	KeyInsights     []string           `json:"key_insights"`
}

// Available reports whether the result carries a score.
func (r *OracleResult) Available() bool {
	return r != nil && r.Score != nil
}

// Unavailable returns a result with no score and the given reasoning.
func Unavailable(reasoning string) *OracleResult {
	return &OracleResult{
		ComponentScores: map[string]float64{},
		Reasoning:       reasoning,
		KeyInsights:     []string{},
	}
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, in Inputs) (*OracleResult, error)

// Assess calls f.
func (f OracleFunc) Assess(ctx context.Context, in Inputs) (*OracleResult, error) {
	return f(ctx, in)
}
