package scoring

import "strings"

// ComponentScores are the four component scores used for recommendations.
type ComponentScores struct {
	Transaction   float64
	Protocol      float64
	Concentration float64
	Behavioral    float64
}

type reasonRule struct {
	match func(reason string) bool
	text  string
}

func contains(sub string) func(string) bool {
	return func(r string) bool { return strings.Contains(r, sub) }
}

// reasonRules are checked in order against lowercased reasons.
var reasonRules = []reasonRule{
	{contains("gas"), "Gas Optimization: Consider using lower gas prices during off-peak hours"},
	{contains("new wallet"), "New Wallet: Monitor activity patterns as wallet establishes history"},
	{func(r string) bool {
		return strings.Contains(r, "large") && strings.Contains(r, "transaction")
	}, "Large Transactions: Verify transaction authenticity for high-value transfers"},
	{contains("stablecoin"), "Stablecoin Holdings: Good risk mitigation through stable assets"},
	{contains("diversification"), "Portfolio Management: Continue maintaining diversified holdings"},
	{contains("high-value"), "High-Value Activity: Implement additional security measures for large transactions"},
	{func(r string) bool {
		return strings.Contains(r, "inactive") || strings.Contains(r, "activity")
	}, "Activity Monitoring: Regular activity helps establish trust patterns"},
}

// Recommendations maps the overall score, component scores and reason text
// to advisory strings. Output follows rule order and is capped at limit.
func Recommendations(overall float64, c ComponentScores, reasons []string, limit int) []string {
	recs := make([]string, 0, limit)

	switch {
	case overall > 80:
		recs = append(recs, "CRITICAL: Extreme caution advised - multiple high-risk factors detected")
	case overall > 60:
		recs = append(recs, "HIGH RISK: Significant caution required before any interactions")
	case overall < 25:
		recs = append(recs, "LOW RISK: Generally safe wallet with conservative behavior")
	}

	if c.Transaction > 70 {
		recs = append(recs, "Transaction Patterns: Review transaction success rates and activity patterns")
	}
	if c.Protocol > 70 {
		recs = append(recs,
			"Protocol Risk: Wallet interacts with high-risk DeFi protocols",
			"Suggestion: Research protocol security audits and TVL stability")
	}
	if c.Concentration > 70 {
		recs = append(recs,
			"Asset Concentration: Consider portfolio diversification",
			"Tip: Spread holdings across multiple assets and protocols")
	}
	if c.Behavioral > 70 {
		recs = append(recs,
			"Behavioral Risk: Unusual transaction patterns detected",
			"Recommendation: Verify wallet ownership and transaction authenticity")
	}

	lowered := make([]string, len(reasons))
	for i, r := range reasons {
		lowered[i] = strings.ToLower(r)
	}
	for _, rule := range reasonRules {
		for _, r := range lowered {
			if rule.match(r) {
				recs = append(recs, rule.text)
				break
			}
		}
	}

	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}
