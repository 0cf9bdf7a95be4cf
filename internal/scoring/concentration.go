package scoring

import (
	"fmt"
	"strings"
)

// ConcentrationAnalyzer scores how concentrated a wallet's holdings are.
type ConcentrationAnalyzer struct {
	t           AssetThresholds
	stablecoins []string
}

// NewConcentrationAnalyzer creates a ConcentrationAnalyzer.
func NewConcentrationAnalyzer(cfg Config) *ConcentrationAnalyzer {
	stables := make([]string, len(cfg.Asset.StablecoinSymbols))
	for i, s := range cfg.Asset.StablecoinSymbols {
		stables[i] = strings.ToLower(s)
	}
	return &ConcentrationAnalyzer{t: cfg.Asset, stablecoins: stables}
}

// Analyze runs three independent passes: token diversification, ETH
// holding size and stablecoin composition. An empty wallet is penalized by
// both the first and second pass.
func (a *ConcentrationAnalyzer) Analyze(b BalanceData) ComponentResult {
	score := 50.0
	reasons := make([]string, 0, 3)
	eth := b.ETHBalance
	count := len(b.Tokens)

	switch {
	case count == 0 && eth > 0:
		score -= 15
		reasons = append(reasons, "ETH-only portfolio (conservative)")
	case count == 0:
		score += 30
		reasons = append(reasons, "No significant assets detected")
	case count == 1:
		score += a.t.SingleTokenPenalty
		reasons = append(reasons, "Single token concentration")
	case count < a.t.LowDiversificationCount:
		score += a.t.LowDiversificationPenalty
		reasons = append(reasons, fmt.Sprintf("Low diversification: %d tokens", count))
	case count < a.t.GoodDiversificationCount:
		score -= a.t.GoodDiversificationBonus
		reasons = append(reasons, fmt.Sprintf("Good diversification: %d tokens", count))
	default:
		score -= a.t.HighDiversificationBonus
		reasons = append(reasons, fmt.Sprintf("High diversification: %d tokens", count))
	}

	switch {
	case eth > a.t.VeryLargeETH:
		score += a.t.VeryLargeETHPenalty
		reasons = append(reasons, fmt.Sprintf("Very large ETH holdings: %.2f ETH", eth))
	case eth > a.t.LargeETH:
		score += a.t.LargeETHPenalty
		reasons = append(reasons, fmt.Sprintf("Large ETH holdings: %.2f ETH", eth))
	case eth > a.t.SignificantETH:
		score += a.t.SignificantETHPenalty
		reasons = append(reasons, fmt.Sprintf("Significant ETH holdings: %.2f ETH", eth))
	case eth < a.t.VeryLowETH:
		score += a.t.VeryLowETHPenalty
		reasons = append(reasons, "Very low ETH balance")
	}

	if stables := a.countStablecoins(b.Tokens); stables > 0 {
		score -= min(float64(stables)*a.t.StablecoinBonusPerToken, a.t.StablecoinBonusMax)
		reasons = append(reasons, fmt.Sprintf("Stablecoin exposure: %d tokens", stables))
	}

	return ComponentResult{
		RiskScore: clamp(score),
		Reasons:   reasons,
		Metrics: map[string]any{
			"eth_balance":           eth,
			"token_count":           count,
			"asset_diversification": a.diversificationLevel(count),
		},
	}
}

func (a *ConcentrationAnalyzer) countStablecoins(tokens []TokenHolding) int {
	n := 0
	for _, tok := range tokens {
		sym := strings.ToLower(tok.TokenSymbol)
		for _, stable := range a.stablecoins {
			if strings.Contains(sym, stable) {
				n++
				break
			}
		}
	}
	return n
}

func (a *ConcentrationAnalyzer) diversificationLevel(count int) string {
	switch {
	case count > a.t.GoodDiversificationCount:
		return "high"
	case count > a.t.LowDiversificationCount:
		return "medium"
	case count > 0:
		return "low"
	default:
		return "none"
	}
}
