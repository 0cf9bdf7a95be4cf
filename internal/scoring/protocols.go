package scoring

import "math"

const highRiskProtocolScore = 70

// NoProtocolInteractions is the explicit "wallet never touched DeFi"
// result. It scores as zero protocol risk.
func NoProtocolInteractions() ProtocolAnalysis {
	return ProtocolAnalysis{
		Protocols:  []ProtocolInfo{},
		Categories: []string{},
	}
}

// SummarizeProtocols derives the aggregate fields of a ProtocolAnalysis
// from the per-protocol records.
func SummarizeProtocols(protocols []ProtocolInfo) ProtocolAnalysis {
	if len(protocols) == 0 {
		return NoProtocolInteractions()
	}

	out := ProtocolAnalysis{
		Protocols:      make([]ProtocolInfo, len(protocols)),
		Categories:     []string{},
		TotalProtocols: len(protocols),
	}

	seen := make(map[string]bool)
	var sum float64
	for i, p := range protocols {
		p.Chains = append(make([]string, 0, len(p.Chains)), p.Chains...)
		out.Protocols[i] = p

		sum += p.RiskScore
		out.TotalTVLInteracted += p.TVL
		if p.RiskScore > highRiskProtocolScore {
			out.HighRiskProtocols++
		}

		category := p.Category
		if category == "" {
			category = "Unknown"
		}
		if !seen[category] {
			seen[category] = true
			out.Categories = append(out.Categories, category)
		}

		switch {
		case p.RiskScore < 25:
			out.RiskDistribution.Low++
		case p.RiskScore < 50:
			out.RiskDistribution.Medium++
		case p.RiskScore < 75:
			out.RiskDistribution.High++
		default:
			out.RiskDistribution.VeryHigh++
		}
	}

	out.DiversificationScore = len(out.Categories)
	out.RawAverageRisk = sum / float64(len(protocols))

	switch {
	case len(protocols) == 1:
		out.ConcentrationPenalty = 15
	case len(protocols) < 3:
		out.ConcentrationPenalty = 10
	}
	out.AverageRisk = math.Min(100, out.RawAverageRisk+out.ConcentrationPenalty)

	return out
}
