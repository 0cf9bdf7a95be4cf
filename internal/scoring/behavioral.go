package scoring

import "fmt"

const secondsPerDay = 24 * 60 * 60

// BehavioralAnalyzer scores gas, value flow, transaction size, interaction
// concentration and wallet age.
type BehavioralAnalyzer struct {
	t BehavioralThresholds
}

// NewBehavioralAnalyzer creates a BehavioralAnalyzer.
func NewBehavioralAnalyzer(cfg Config) *BehavioralAnalyzer {
	return &BehavioralAnalyzer{t: cfg.Behavioral}
}

// Analyze scores behavioral signals. Missing data scores 60.
func (a *BehavioralAnalyzer) Analyze(p TransactionPatterns) ComponentResult {
	if p.HasError() {
		return fixedResult(60, "Unable to analyze behavior")
	}

	score := 50.0
	reasons := make([]string, 0, 5)

	gas := p.Gas.AvgGasPrice
	switch {
	case gas > a.t.VeryHighGasPrice:
		score += a.t.VeryHighGasPenalty
		reasons = append(reasons, fmt.Sprintf("Very high gas usage: %.1f Gwei", gas))
	case gas > a.t.HighGasPrice:
		score += a.t.HighGasPenalty
		reasons = append(reasons, fmt.Sprintf("High gas usage: %.1f Gwei", gas))
	case gas < a.t.LowGasPrice:
		score -= a.t.LowGasBonus
		reasons = append(reasons, fmt.Sprintf("Efficient gas usage: %.1f Gwei", gas))
	}

	in, out := p.Value.TotalValueIn, p.Value.TotalValueOut
	switch {
	case out > in*a.t.HeavyOutflowRatio:
		score += a.t.HeavyOutflowPenalty
		reasons = append(reasons, "Heavy fund outflow pattern")
	case out > in*a.t.ModerateOutflowRatio:
		score += a.t.ModerateOutflowPenalty
		reasons = append(reasons, "Moderate outflow pattern")
	case in > out*a.t.AccumulationRatio:
		score -= a.t.AccumulationBonus
		reasons = append(reasons, "Accumulation pattern")
	}

	largest := p.Value.LargestTransaction
	switch {
	case largest > a.t.VeryLargeTransaction:
		score += a.t.VeryLargeTxPenalty
		reasons = append(reasons, fmt.Sprintf("Very large transaction: %.2f ETH", largest))
	case largest > a.t.LargeTransaction:
		score += a.t.LargeTxPenalty
		reasons = append(reasons, fmt.Sprintf("Large transaction: %.2f ETH", largest))
	}

	diversity := ratio(p.Addresses.InteractionDiversity, p.TotalTransactions)
	if p.TotalTransactions > 0 {
		switch {
		case diversity < a.t.VeryConcentratedInteractions:
			score += a.t.VeryConcentratedPenalty
			reasons = append(reasons, "Very concentrated interactions")
		case diversity < a.t.ConcentratedInteractions:
			score += a.t.ConcentratedPenalty
			reasons = append(reasons, "Somewhat concentrated interactions")
		case diversity > a.t.DiverseInteractions:
			score -= a.t.DiverseBonus
			reasons = append(reasons, "Diverse interaction pattern")
		}
	}

	ageDays, known := walletAgeDays(p.Time)
	if known {
		switch {
		case ageDays < a.t.VeryNewWalletDays:
			score += a.t.VeryNewWalletPenalty
			reasons = append(reasons, "Very new wallet (<30 days)")
		case ageDays < a.t.NewWalletDays:
			score += a.t.NewWalletPenalty
			reasons = append(reasons, "New wallet (<90 days)")
		case ageDays > a.t.OldWalletDays:
			score -= a.t.OldWalletBonus
			reasons = append(reasons, "Established wallet (>2 years)")
		}
	}

	return ComponentResult{
		RiskScore: clamp(score),
		Reasons:   reasons,
		Metrics: map[string]any{
			"avg_gas_price":         gas,
			"value_flow_ratio":      out / max(in, 1),
			"largest_transaction":   largest,
			"interaction_diversity": diversity,
			"wallet_age_days":       ageDays,
		},
	}
}

// walletAgeDays is zero and unknown unless both timestamps are set.
func walletAgeDays(t TimeAnalysis) (float64, bool) {
	if t.FirstTransaction == 0 || t.LastTransaction == 0 {
		return 0, false
	}
	return float64(t.LastTransaction-t.FirstTransaction) / secondsPerDay, true
}
