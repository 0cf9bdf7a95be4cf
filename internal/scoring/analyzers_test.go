package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionAnalyzer(t *testing.T) {
	a := NewTransactionAnalyzer(DefaultConfig())

	tests := []struct {
		name    string
		in      TransactionPatterns
		score   float64
		reasons []string
	}{
		{
			name:    "error marker",
			in:      NoTransactionData("etherscan unavailable"),
			score:   90,
			reasons: []string{"No transaction data available"},
		},
		{
			name:    "zero transactions",
			in:      TransactionPatterns{},
			score:   90,
			reasons: []string{"Inactive wallet - no transactions"},
		},
		{
			name: "healthy wallet",
			in: TransactionPatterns{
				TotalTransactions:      100,
				SuccessfulTransactions: 98,
				FailedTransactions:     2,
				UniqueAddresses:        40,
				ContractInteractions:   50,
				HighValueTransactions:  10,
				RecentActivity:         5,
				Gas:                    GasAnalysis{AvgGasPrice: 30},
				Time:                   TimeAnalysis{ActivityFrequency: 2},
			},
			score:   35,
			reasons: []string{"High success rate: 98.0%", "Normal activity: 2.0 tx/day"},
		},
		{
			name: "every penalty fires",
			in: TransactionPatterns{
				TotalTransactions:      20,
				SuccessfulTransactions: 10,
				FailedTransactions:     10,
				UniqueAddresses:        1,
				ContractInteractions:   19,
				HighValueTransactions:  12,
				Gas:                    GasAnalysis{AvgGasPrice: 150},
				Time:                   TimeAnalysis{ActivityFrequency: 25},
			},
			score: 100,
			reasons: []string{
				"Low success rate: 50.0%",
				"Very high activity: 25.0 tx/day",
				"High value transaction ratio: 60.0%",
				"Very high DeFi usage: 95.0%",
				"No recent activity (30 days)",
				"High gas prices: 150.0 Gwei",
				"Low address diversity: 0.05",
			},
		},
		{
			name: "dormant low usage",
			in: TransactionPatterns{
				TotalTransactions:      10,
				SuccessfulTransactions: 8,
				FailedTransactions:     2,
				UniqueAddresses:        5,
				HighValueTransactions:  4,
				RecentActivity:         60,
				Time:                   TimeAnalysis{ActivityFrequency: 0.05},
			},
			// 50 +10 moderate success +15 low activity +5 high value -5 low defi +10 recent
			score: 85,
			reasons: []string{
				"Moderate success rate: 80.0%",
				"Very low activity: 0.050 tx/day",
				"Moderate high-value transactions: 40.0%",
				"Low DeFi usage: 0.0%",
				"Very active recently: 60 txs",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Analyze(tt.in)
			assert.InDelta(t, tt.score, res.RiskScore, 1e-9)
			assert.Equal(t, tt.reasons, res.Reasons)
			assert.NotNil(t, res.Metrics)
		})
	}
}

func TestTransactionAnalyzer_Metrics(t *testing.T) {
	res := NewTransactionAnalyzer(DefaultConfig()).Analyze(TransactionPatterns{
		TotalTransactions:      4,
		SuccessfulTransactions: 3,
		FailedTransactions:     1,
		UniqueAddresses:        4,
		ContractInteractions:   2,
		HighValueTransactions:  1,
		RecentActivity:         2,
		Time:                   TimeAnalysis{ActivityFrequency: 3},
	})

	assert.InDelta(t, 0.75, res.Metrics["success_rate"], 1e-9)
	assert.InDelta(t, 0.5, res.Metrics["contract_interaction_ratio"], 1e-9)
	assert.InDelta(t, 0.25, res.Metrics["high_value_ratio"], 1e-9)
	assert.Equal(t, 2, res.Metrics["recent_activity"])
}

func TestProtocolAnalyzer(t *testing.T) {
	a := NewProtocolAnalyzer(DefaultConfig())

	t.Run("absent list", func(t *testing.T) {
		res := a.Analyze(ProtocolAnalysis{})
		assert.Equal(t, 0.0, res.RiskScore)
		assert.Equal(t, []string{"No DeFi protocol interactions detected - Low Risk"}, res.Reasons)
		assert.Empty(t, res.Metrics)
	})

	t.Run("explicit none", func(t *testing.T) {
		res := a.Analyze(NoProtocolInteractions())
		assert.Equal(t, 0.0, res.RiskScore)
		assert.Equal(t, []string{"No DeFi protocol interactions - Low Risk"}, res.Reasons)
	})

	t.Run("blue chips clamp to zero", func(t *testing.T) {
		pa := SummarizeProtocols([]ProtocolInfo{
			{Name: "Aave", RiskScore: 10, TVL: 7e9, Category: "Lending"},
			{Name: "Uniswap", RiskScore: 10, TVL: 7e9, Category: "Dexes"},
			{Name: "Lido", RiskScore: 10, TVL: 6e9, Category: "Liquid Staking"},
		})
		res := a.Analyze(pa)
		assert.Equal(t, 0.0, res.RiskScore)
		assert.Equal(t, []string{
			"Good diversification: 3 categories",
			"High TVL protocols: $20.0B",
		}, res.Reasons)
	})

	t.Run("two protocols", func(t *testing.T) {
		pa := SummarizeProtocols([]ProtocolInfo{
			{Name: "Aave", RiskScore: 30, TVL: 5e9, Category: "Lending"},
			{Name: "Uniswap", RiskScore: 40, TVL: 6e9, Category: "Dexes"},
		})
		res := a.Analyze(pa)
		// raw 35, +5 low diversification, -10 high TVL
		assert.InDelta(t, 30, res.RiskScore, 1e-9)
		assert.Equal(t, []string{
			"Low diversification: 2 categories",
			"High TVL protocols: $11.0B",
			"Protocol concentration risk",
		}, res.Reasons)
		assert.InDelta(t, 35, res.Metrics["average_protocol_risk"], 1e-9)
	})

	t.Run("single unknown protocol", func(t *testing.T) {
		pa := SummarizeProtocols([]ProtocolInfo{
			{Name: "shadyswap", RiskScore: 85, Category: "Unknown"},
		})
		res := a.Analyze(pa)
		assert.Equal(t, 100.0, res.RiskScore)
		assert.Equal(t, []string{
			"High-risk protocols: 1/1",
			"Single protocol category",
			"Low TVL protocols: $0.0M",
			"Protocol concentration risk",
			"Very high-risk protocols: 1",
		}, res.Reasons)
		assert.InDelta(t, 1.0, res.Metrics["high_risk_protocol_ratio"], 1e-9)
	})

	t.Run("total defaults to list length", func(t *testing.T) {
		pa := ProtocolAnalysis{
			Protocols:            []ProtocolInfo{{Name: "x"}, {Name: "y"}},
			RawAverageRisk:       50,
			HighRiskProtocols:    1,
			DiversificationScore: 3,
			TotalTVLInteracted:   5e8,
		}
		res := a.Analyze(pa)
		// 50 + 15 high-risk ratio - 10 diversification
		assert.InDelta(t, 55, res.RiskScore, 1e-9)
		assert.Contains(t, res.Reasons, "High-risk protocols: 1/2")
	})
}

func TestSummarizeProtocols(t *testing.T) {
	pa := SummarizeProtocols([]ProtocolInfo{
		{Name: "Aave", RiskScore: 30, TVL: 5e9, Category: "Lending", Chains: []string{"Ethereum"}},
		{Name: "Curve", RiskScore: 80, TVL: 2e9, Category: "Dexes"},
		{Name: "Compound", RiskScore: 20, TVL: 1e9, Category: "Lending"},
		{Name: "mystery", RiskScore: 60},
	})

	assert.Equal(t, 4, pa.TotalProtocols)
	assert.InDelta(t, 47.5, pa.RawAverageRisk, 1e-9)
	assert.Equal(t, 0.0, pa.ConcentrationPenalty)
	assert.InDelta(t, 47.5, pa.AverageRisk, 1e-9)
	assert.Equal(t, 1, pa.HighRiskProtocols)
	assert.Equal(t, []string{"Lending", "Dexes", "Unknown"}, pa.Categories)
	assert.Equal(t, 3, pa.DiversificationScore)
	assert.InDelta(t, 8e9, pa.TotalTVLInteracted, 1)
	assert.Equal(t, RiskDistribution{Low: 1, Medium: 1, High: 1, VeryHigh: 1}, pa.RiskDistribution)

	t.Run("penalty caps average", func(t *testing.T) {
		single := SummarizeProtocols([]ProtocolInfo{{Name: "x", RiskScore: 95}})
		assert.Equal(t, 15.0, single.ConcentrationPenalty)
		assert.Equal(t, 100.0, single.AverageRisk)
		assert.Equal(t, 95.0, single.RawAverageRisk)
	})

	t.Run("empty input", func(t *testing.T) {
		empty := SummarizeProtocols(nil)
		require.NotNil(t, empty.Protocols)
		assert.Empty(t, empty.Protocols)
	})

	t.Run("does not alias input", func(t *testing.T) {
		in := []ProtocolInfo{{Name: "a", Chains: []string{"Ethereum"}}}
		out := SummarizeProtocols(in)
		in[0].Chains[0] = "Arbitrum"
		assert.Equal(t, "Ethereum", out.Protocols[0].Chains[0])
	})
}

func TestConcentrationAnalyzer(t *testing.T) {
	a := NewConcentrationAnalyzer(DefaultConfig())

	tokens := func(symbols ...string) []TokenHolding {
		out := make([]TokenHolding, len(symbols))
		for i, s := range symbols {
			out[i] = TokenHolding{TokenSymbol: s}
		}
		return out
	}

	tests := []struct {
		name    string
		in      BalanceData
		score   float64
		reasons []string
		level   string
	}{
		{
			name:    "empty wallet double penalty",
			in:      BalanceData{},
			score:   90,
			reasons: []string{"No significant assets detected", "Very low ETH balance"},
			level:   "none",
		},
		{
			name:    "eth only",
			in:      BalanceData{ETHBalance: 5},
			score:   35,
			reasons: []string{"ETH-only portfolio (conservative)"},
			level:   "none",
		},
		{
			name:    "single stablecoin",
			in:      BalanceData{ETHBalance: 0.5, Tokens: tokens("USDC")},
			score:   65,
			reasons: []string{"Single token concentration", "Stablecoin exposure: 1 tokens"},
			level:   "low",
		},
		{
			name:  "diversified whale",
			in:    BalanceData{ETHBalance: 150, Tokens: tokens("USDT", "aUSDC", "DAI", "WETH", "UNI")},
			score: 45,
			reasons: []string{
				"Good diversification: 5 tokens",
				"Large ETH holdings: 150.00 ETH",
				"Stablecoin exposure: 3 tokens",
			},
			level: "medium",
		},
		{
			name: "many tokens huge balance",
			in: BalanceData{ETHBalance: 2000, Tokens: tokens(
				"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L")},
			score: 65,
			reasons: []string{
				"High diversification: 12 tokens",
				"Very large ETH holdings: 2000.00 ETH",
			},
			level: "high",
		},
		{
			name:    "two tokens",
			in:      BalanceData{ETHBalance: 20, Tokens: tokens("LINK", "UNI")},
			score:   65,
			reasons: []string{"Low diversification: 2 tokens", "Significant ETH holdings: 20.00 ETH"},
			level:   "low",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := a.Analyze(tt.in)
			assert.InDelta(t, tt.score, res.RiskScore, 1e-9)
			assert.Equal(t, tt.reasons, res.Reasons)
			assert.Equal(t, tt.level, res.Metrics["asset_diversification"])
			assert.Equal(t, len(tt.in.Tokens), res.Metrics["token_count"])
		})
	}
}

func TestBehavioralAnalyzer(t *testing.T) {
	a := NewBehavioralAnalyzer(DefaultConfig())
	const start = int64(1_700_000_000)

	t.Run("error marker", func(t *testing.T) {
		res := a.Analyze(NoTransactionData(""))
		assert.Equal(t, 60.0, res.RiskScore)
		assert.Equal(t, []string{"Unable to analyze behavior"}, res.Reasons)
		assert.Empty(t, res.Metrics)
	})

	t.Run("zero activity", func(t *testing.T) {
		res := a.Analyze(TransactionPatterns{})
		assert.Equal(t, 45.0, res.RiskScore)
		assert.Equal(t, []string{"Efficient gas usage: 0.0 Gwei"}, res.Reasons)
	})

	t.Run("risky", func(t *testing.T) {
		res := a.Analyze(TransactionPatterns{
			TotalTransactions: 100,
			Gas:               GasAnalysis{AvgGasPrice: 250},
			Value:             ValueAnalysis{TotalValueIn: 10, TotalValueOut: 100, LargestTransaction: 150},
			Addresses:         AddressInteractions{InteractionDiversity: 5},
			Time:              TimeAnalysis{FirstTransaction: start, LastTransaction: start + 10*secondsPerDay},
		})
		assert.Equal(t, 100.0, res.RiskScore)
		assert.Equal(t, []string{
			"Very high gas usage: 250.0 Gwei",
			"Heavy fund outflow pattern",
			"Very large transaction: 150.00 ETH",
			"Very concentrated interactions",
			"Very new wallet (<30 days)",
		}, res.Reasons)
		assert.InDelta(t, 10.0, res.Metrics["value_flow_ratio"], 1e-9)
	})

	t.Run("established", func(t *testing.T) {
		res := a.Analyze(TransactionPatterns{
			TotalTransactions: 100,
			Gas:               GasAnalysis{AvgGasPrice: 50},
			Value:             ValueAnalysis{TotalValueIn: 100, TotalValueOut: 20, LargestTransaction: 5},
			Addresses:         AddressInteractions{InteractionDiversity: 80},
			Time:              TimeAnalysis{FirstTransaction: start, LastTransaction: start + 800*secondsPerDay},
		})
		assert.InDelta(t, 30, res.RiskScore, 1e-9)
		assert.Equal(t, []string{
			"Accumulation pattern",
			"Diverse interaction pattern",
			"Established wallet (>2 years)",
		}, res.Reasons)
		assert.InDelta(t, 800, res.Metrics["wallet_age_days"], 1e-9)
		assert.InDelta(t, 0.2, res.Metrics["value_flow_ratio"], 1e-9)
		assert.InDelta(t, 0.8, res.Metrics["interaction_diversity"], 1e-9)
	})

	t.Run("moderate", func(t *testing.T) {
		res := a.Analyze(TransactionPatterns{
			TotalTransactions: 10,
			Gas:               GasAnalysis{AvgGasPrice: 150},
			Value:             ValueAnalysis{TotalValueIn: 10, TotalValueOut: 20, LargestTransaction: 15},
			Addresses:         AddressInteractions{InteractionDiversity: 2},
			Time:              TimeAnalysis{FirstTransaction: start, LastTransaction: start + 60*secondsPerDay},
		})
		// 50 +10 gas +5 outflow +5 size +5 concentration +5 age
		assert.InDelta(t, 80, res.RiskScore, 1e-9)
		assert.Equal(t, []string{
			"High gas usage: 150.0 Gwei",
			"Moderate outflow pattern",
			"Large transaction: 15.00 ETH",
			"Somewhat concentrated interactions",
			"New wallet (<90 days)",
		}, res.Reasons)
	})
}

func TestAnalyzersDoNotMutateInput(t *testing.T) {
	cfg := DefaultConfig()
	b := BalanceData{ETHBalance: 1, Tokens: []TokenHolding{{TokenSymbol: "USDC"}, {TokenSymbol: "DAI"}}}
	NewConcentrationAnalyzer(cfg).Analyze(b)
	assert.Equal(t, "USDC", b.Tokens[0].TokenSymbol)

	pa := SummarizeProtocols([]ProtocolInfo{{Name: "a", RiskScore: 20, Category: "Dexes"}})
	before := pa.RawAverageRisk
	NewProtocolAnalyzer(cfg).Analyze(pa)
	assert.Equal(t, before, pa.RawAverageRisk)
}
