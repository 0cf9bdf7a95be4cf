package scoring

import "math"

// ComponentResult is the output of a single analyzer.
type ComponentResult struct {
	RiskScore float64        `json:"risk_score"`
	Reasons   []string       `json:"reasons"`
	Metrics   map[string]any `json:"metrics"`
}

func fixedResult(score float64, reason string) ComponentResult {
	return ComponentResult{
		RiskScore: score,
		Reasons:   []string{reason},
		Metrics:   map[string]any{},
	}
}

// clamp bounds a score to [0, 100].
func clamp(score float64) float64 {
	return math.Max(0, math.Min(100, score))
}

// round2 rounds half away from zero to two decimals.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ratio(n, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(n) / float64(total)
}
