package scoring

import "fmt"

// ProtocolAnalyzer scores DeFi protocol exposure. No exposure is zero risk.
type ProtocolAnalyzer struct {
	t ProtocolThresholds
}

// NewProtocolAnalyzer creates a ProtocolAnalyzer.
func NewProtocolAnalyzer(cfg Config) *ProtocolAnalyzer {
	return &ProtocolAnalyzer{t: cfg.Protocol}
}

// Analyze scores the protocol analysis. The score is seeded from the raw
// average; the concentration penalty already lives in AverageRisk and is
// only reported here.
func (a *ProtocolAnalyzer) Analyze(pa ProtocolAnalysis) ComponentResult {
	if pa.Protocols == nil {
		return fixedResult(0, "No DeFi protocol interactions detected - Low Risk")
	}
	if len(pa.Protocols) == 0 {
		return fixedResult(0, "No DeFi protocol interactions - Low Risk")
	}

	total := pa.TotalProtocols
	if total <= 0 {
		total = len(pa.Protocols)
	}

	score := pa.RawAverageRisk
	reasons := make([]string, 0, 5)

	highRiskRatio := ratio(pa.HighRiskProtocols, total)
	if pa.HighRiskProtocols > 0 {
		score += min(highRiskRatio*30, 30)
		reasons = append(reasons, fmt.Sprintf("High-risk protocols: %d/%d", pa.HighRiskProtocols, total))
	}

	switch div := pa.DiversificationScore; {
	case div == 1:
		score += a.t.SingleProtocolPenalty
		reasons = append(reasons, "Single protocol category")
	case div < a.t.LowDiversificationCategory:
		score += a.t.LowDiversificationPenalty
		reasons = append(reasons, fmt.Sprintf("Low diversification: %d categories", div))
	default:
		score -= a.t.DiversificationBonus
		reasons = append(reasons, fmt.Sprintf("Good diversification: %d categories", div))
	}

	switch tvl := pa.TotalTVLInteracted; {
	case tvl > a.t.VeryHighTVL:
		score -= a.t.VeryHighTVLBonus
		reasons = append(reasons, fmt.Sprintf("Very high TVL protocols: $%.1fB", tvl/1e9))
	case tvl > a.t.HighTVL:
		score -= a.t.HighTVLBonus
		reasons = append(reasons, fmt.Sprintf("High TVL protocols: $%.1fB", tvl/1e9))
	case tvl > a.t.MediumTVL:
		score -= a.t.MediumTVLBonus
		reasons = append(reasons, fmt.Sprintf("Medium TVL protocols: $%.1fB", tvl/1e9))
	case tvl < a.t.LowTVL:
		score += a.t.LowTVLPenalty
		reasons = append(reasons, fmt.Sprintf("Low TVL protocols: $%.1fM", tvl/1e6))
	}

	if pa.ConcentrationPenalty > 0 {
		reasons = append(reasons, "Protocol concentration risk")
	}

	if vh := pa.RiskDistribution.VeryHigh; vh > 0 {
		score += float64(vh) * a.t.VeryHighRiskPenalty
		reasons = append(reasons, fmt.Sprintf("Very high-risk protocols: %d", vh))
	}

	return ComponentResult{
		RiskScore: clamp(score),
		Reasons:   reasons,
		Metrics: map[string]any{
			"average_protocol_risk":    pa.RawAverageRisk,
			"high_risk_protocol_ratio": highRiskRatio,
			"diversification_score":    pa.DiversificationScore,
			"total_tvl":                pa.TotalTVLInteracted,
			"risk_distribution":        pa.RiskDistribution,
		},
	}
}
