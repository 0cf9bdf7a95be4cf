package risk

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mbd888/safescore/internal/scoring"
)

// Report thresholds for the executive summary.
const (
	reportHighRisk   = 60
	reportMediumRisk = 40
)

var componentOrder = []string{
	scoring.KeyTransaction,
	scoring.KeyProtocol,
	scoring.KeyConcentration,
	scoring.KeyBehavioral,
}

// TextReport renders batch results as a plain-text risk report. Wallets
// are listed highest score first; failed wallets are listed up front.
func TextReport(results []BatchResult, generated time.Time) string {
	var (
		b      strings.Builder
		scored []*WalletAssessment
		failed []BatchResult
	)
	for _, r := range results {
		if r.Assessment == nil || r.Assessment.Assessment == nil {
			failed = append(failed, r)
			continue
		}
		scored = append(scored, r.Assessment)
	}

	line := func(format string, args ...any) {
		fmt.Fprintf(&b, format, args...)
		b.WriteByte('\n')
	}

	line("SAFESCORE - COMPREHENSIVE RISK REPORT")
	line("%s", strings.Repeat("=", 80))
	line("Generated: %s", generated.Format("2006-01-02 15:04:05"))
	line("Wallets Analyzed: %d", len(results))
	line("")

	if len(failed) > 0 {
		line("Failed Analyses: %d", len(failed))
		for _, f := range failed {
			line("   %s: %s", f.Address, f.Error)
		}
		line("")
	}

	if len(scored) == 0 {
		line("No successful analyses to report")
		return b.String()
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score() > scored[j].Score() })

	var sum float64
	high, medium, low := 0, 0, 0
	minScore, maxScore := scored[len(scored)-1].Score(), scored[0].Score()
	for _, w := range scored {
		s := w.Score()
		sum += s
		switch {
		case s >= reportHighRisk:
			high++
		case s >= reportMediumRisk:
			medium++
		default:
			low++
		}
	}

	line("EXECUTIVE SUMMARY")
	line("%s", strings.Repeat("-", 40))
	line("Average Risk Score: %.1f/100", sum/float64(len(scored)))
	line("Risk Range: %.1f - %.1f", minScore, maxScore)
	line("Risk Distribution:")
	line("  - High Risk (>=60): %d wallets", high)
	line("  - Medium Risk (40-59): %d wallets", medium)
	line("  - Low Risk (<40): %d wallets", low)
	line("")

	line("DETAILED WALLET ANALYSIS")
	line("%s", strings.Repeat("=", 40))
	for i, w := range scored {
		a := w.Assessment
		line("")
		line("%d. WALLET: %s", i+1, w.Address)
		line("   Risk Score: %.2f/100 (%s)", a.OverallRiskScore, a.RiskLevel)
		line("   Description: %s", a.RiskDescription)
		line("   Transactions: %d (Success: %.1f%%)", w.Summary.TotalTransactions, w.Summary.SuccessRate)
		line("   ETH Balance: %.4f ETH", w.Summary.ETHBalance)
		line("   Token Types: %d", w.Summary.TokenTypes)
		line("   Protocols: %d identified", w.Summary.ProtocolsIdentified)

		line("   Component Scores:")
		for _, key := range componentOrder {
			if score, ok := a.ComponentScores[key]; ok {
				line("     - %s: %.1f/100", componentTitle(key), score)
			}
		}
		if len(a.RiskFactors) > 0 {
			line("   Key Risk Factors:")
			for _, f := range a.RiskFactors[:min(3, len(a.RiskFactors))] {
				line("     - %s", f)
			}
		}
		if len(a.Recommendations) > 0 {
			line("   Recommendations:")
			for _, r := range a.Recommendations[:min(2, len(a.Recommendations))] {
				line("     - %s", r)
			}
		}
	}
	return b.String()
}

// componentTitle turns "asset_concentration" into "Asset Concentration".
func componentTitle(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
