package risk

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTextReport(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	results := []BatchResult{
		{Address: walletA, Assessment: sampleAssessment("wra_1", walletA, 35, now)},
		{Address: "0xbad", Error: "risk: invalid wallet address: \"0xbad\""},
		{Address: walletB, Assessment: sampleAssessment("wra_2", walletB, 65, now)},
		{Address: stranger, Assessment: sampleAssessment("wra_3", stranger, 45, now)},
	}

	out := TextReport(results, now)

	assert.Contains(t, out, "Generated: 2025-03-14 09:30:00")
	assert.Contains(t, out, "Wallets Analyzed: 4")
	assert.Contains(t, out, "Failed Analyses: 1")
	assert.Contains(t, out, "0xbad: risk: invalid wallet address")
	assert.Contains(t, out, "Average Risk Score: 48.3/100")
	assert.Contains(t, out, "Risk Range: 35.0 - 65.0")
	assert.Contains(t, out, "High Risk (>=60): 1 wallets")
	assert.Contains(t, out, "Medium Risk (40-59): 1 wallets")
	assert.Contains(t, out, "Low Risk (<40): 1 wallets")
	assert.Contains(t, out, "Transaction Patterns: 65.0/100")
	assert.Contains(t, out, "Transactions: 10 (Success: 40.0%)")

	// Highest score first.
	b := strings.Index(out, "1. WALLET: "+walletB)
	s := strings.Index(out, "2. WALLET: "+stranger)
	a := strings.Index(out, "3. WALLET: "+walletA)
	assert.True(t, b > 0 && s > b && a > s, "wallets out of order:\n%s", out)
}

func TestTextReport_AllFailed(t *testing.T) {
	out := TextReport([]BatchResult{{Address: walletA, Error: "upstream timeout"}}, time.Now())
	assert.Contains(t, out, "Failed Analyses: 1")
	assert.Contains(t, out, "No successful analyses to report")
	assert.NotContains(t, out, "EXECUTIVE SUMMARY")
}

func TestComponentTitle(t *testing.T) {
	assert.Equal(t, "Asset Concentration", componentTitle("asset_concentration"))
	assert.Equal(t, "Behavioral Patterns", componentTitle("behavioral_patterns"))
	assert.Equal(t, "Single", componentTitle("single"))
}
