package scoring

import "fmt"

// RecentActivityDays is the window TransactionPatterns.RecentActivity counts over.
const RecentActivityDays = 30

// TransactionAnalyzer scores success rate, activity and counterparty patterns.
type TransactionAnalyzer struct {
	t TransactionThresholds
}

// NewTransactionAnalyzer creates a TransactionAnalyzer.
func NewTransactionAnalyzer(cfg Config) *TransactionAnalyzer {
	return &TransactionAnalyzer{t: cfg.Transaction}
}

// Analyze scores the transaction patterns. Missing data and an inactive
// wallet both score 90 with distinct reasons.
func (a *TransactionAnalyzer) Analyze(p TransactionPatterns) ComponentResult {
	if p.HasError() {
		return fixedResult(90, "No transaction data available")
	}
	total := p.TotalTransactions
	if total == 0 {
		return fixedResult(90, "Inactive wallet - no transactions")
	}

	score := 50.0
	reasons := make([]string, 0, 8)
	add := func(delta float64, format string, args ...any) {
		score += delta
		reasons = append(reasons, fmt.Sprintf(format, args...))
	}

	successRate := ratio(p.SuccessfulTransactions, total)
	switch {
	case successRate < a.t.LowSuccessRate:
		add(25, "Low success rate: %.1f%%", successRate*100)
	case successRate < a.t.ModerateSuccessRate:
		add(10, "Moderate success rate: %.1f%%", successRate*100)
	case successRate > a.t.HighSuccessRate:
		add(-10, "High success rate: %.1f%%", successRate*100)
	}

	freq := p.Time.ActivityFrequency
	switch {
	case freq > a.t.VeryHighActivityFrequency:
		add(15, "Very high activity: %.1f tx/day", freq)
	case freq > a.t.HighActivityFrequency:
		add(5, "High activity: %.1f tx/day", freq)
	case freq < a.t.LowActivityFrequency:
		add(15, "Very low activity: %.3f tx/day", freq)
	case freq >= 1 && freq <= 5:
		add(-5, "Normal activity: %.1f tx/day", freq)
	}

	highValueRatio := ratio(p.HighValueTransactions, total)
	switch {
	case highValueRatio > a.t.VeryHighValueRatio:
		add(15, "High value transaction ratio: %.1f%%", highValueRatio*100)
	case highValueRatio > a.t.HighValueRatio:
		add(5, "Moderate high-value transactions: %.1f%%", highValueRatio*100)
	}

	contractRatio := ratio(p.ContractInteractions, total)
	switch {
	case contractRatio > a.t.VeryHighContractRatio:
		add(15, "Very high DeFi usage: %.1f%%", contractRatio*100)
	case contractRatio > a.t.HighContractRatio:
		add(5, "High DeFi usage: %.1f%%", contractRatio*100)
	case contractRatio < a.t.LowContractRatio:
		add(-5, "Low DeFi usage: %.1f%%", contractRatio*100)
	}

	switch {
	case p.RecentActivity == 0 && total > 10:
		add(20, "No recent activity (%d days)", RecentActivityDays)
	case p.RecentActivity > a.t.RecentActivityThreshold:
		add(10, "Very active recently: %d txs", p.RecentActivity)
	}

	if p.Gas.AvgGasPrice > a.t.HighGasPrice {
		add(10, "High gas prices: %.1f Gwei", p.Gas.AvgGasPrice)
	}

	if diversity := ratio(p.UniqueAddresses, total); diversity < a.t.LowAddressDiversity {
		add(10, "Low address diversity: %.2f", diversity)
	}

	return ComponentResult{
		RiskScore: clamp(score),
		Reasons:   reasons,
		Metrics: map[string]any{
			"success_rate":               successRate,
			"activity_frequency":         freq,
			"high_value_ratio":           highValueRatio,
			"contract_interaction_ratio": contractRatio,
			"recent_activity":            p.RecentActivity,
		},
	}
}
