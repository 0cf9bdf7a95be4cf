package scoring

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{100, LevelVeryHigh},
		{80, LevelVeryHigh},
		{79.99, LevelHigh},
		{60, LevelHigh},
		{59.99, LevelMedium},
		{40, LevelMedium},
		{39.99, LevelLow},
		{20, LevelLow},
		{19.99, LevelVeryLow},
		{0, LevelVeryLow},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%.2f", tt.score), func(t *testing.T) {
			assert.Equal(t, tt.want, Level(tt.score))
		})
	}
}

func TestLevelDescriptions(t *testing.T) {
	for _, l := range []RiskLevel{LevelVeryLow, LevelLow, LevelMedium, LevelHigh, LevelVeryHigh} {
		if l.Description() == "" {
			t.Errorf("level %s has no description", l)
		}
	}
	assert.Equal(t, "Medium risk with some concerning factors", LevelMedium.Description())
}

func TestCategorize(t *testing.T) {
	b := Categorize([]NamedScore{
		{"transaction", 90},
		{"protocol", 0},
		{"concentration", 70},
		{"behavioral", 40},
	})
	assert.Equal(t, []string{"transaction", "concentration"}, b.High)
	assert.Equal(t, []string{"behavioral"}, b.Medium)
	assert.Equal(t, []string{"protocol"}, b.Low)

	empty := Categorize(nil)
	assert.NotNil(t, empty.High)
	assert.Empty(t, empty.High)
}

func TestRecommendations_CappedInRuleOrder(t *testing.T) {
	reasons := []string{
		"Very high gas usage: 250.0 Gwei",
		"New wallet (<90 days)",
		"Large transaction: 15.00 ETH",
		"Stablecoin exposure: 2 tokens",
		"Good diversification: 5 tokens",
		"Moderate high-value transactions: 40.0%",
		"No recent activity (30 days)",
	}
	c := ComponentScores{Transaction: 90, Protocol: 90, Concentration: 90, Behavioral: 90}

	recs := Recommendations(95, c, reasons, DefaultMaxRecommendations)
	assert.Len(t, recs, 10)
	assert.True(t, strings.HasPrefix(recs[0], "CRITICAL"))
	assert.True(t, strings.HasPrefix(recs[1], "Transaction Patterns"))
	assert.True(t, strings.HasPrefix(recs[8], "Gas Optimization"))
	assert.True(t, strings.HasPrefix(recs[9], "New Wallet"))
}

func TestRecommendations_Bands(t *testing.T) {
	none := ComponentScores{}

	high := Recommendations(70, none, nil, 10)
	assert.Equal(t, []string{"HIGH RISK: Significant caution required before any interactions"}, high)

	low := Recommendations(10, none, nil, 10)
	assert.Equal(t, []string{"LOW RISK: Generally safe wallet with conservative behavior"}, low)

	// 80 is not above 80 and 25 is not below 25
	assert.True(t, strings.HasPrefix(Recommendations(80, none, nil, 10)[0], "HIGH RISK"))
	assert.Empty(t, Recommendations(25, none, nil, 10))
	assert.Empty(t, Recommendations(50, none, nil, 10))
}

func TestRecommendations_ReasonMatching(t *testing.T) {
	none := ComponentScores{}

	recs := Recommendations(50, none, []string{"Inactive wallet - no transactions"}, 10)
	assert.Equal(t, []string{"Activity Monitoring: Regular activity helps establish trust patterns"}, recs)

	// one line per rule even when many reasons match
	recs = Recommendations(50, none, []string{"High gas prices: 120.0 Gwei", "High gas usage: 120.0 Gwei"}, 10)
	assert.Len(t, recs, 1)

	// "large" and "transaction" must appear in the same reason
	recs = Recommendations(50, none, []string{"Large ETH holdings: 150.00 ETH", "Very concentrated interactions"}, 10)
	assert.Empty(t, recs)
}

func TestRecommendations_ComponentLines(t *testing.T) {
	recs := Recommendations(50, ComponentScores{Protocol: 71, Concentration: 70}, nil, 10)
	assert.Equal(t, []string{
		"Protocol Risk: Wallet interacts with high-risk DeFi protocols",
		"Suggestion: Research protocol security audits and TVL stability",
	}, recs)
}
