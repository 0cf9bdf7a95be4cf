package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mbd888/safescore/internal/scoring"
)

const systemPrompt = "You are an expert cryptocurrency risk analyst. " +
	"Analyze wallet data and provide risk scores (0-100) with reasoning."

const responseFormat = `Please provide a comprehensive risk assessment with scores for each component:

Respond in this JSON format:
{
    "overall_risk_score": <0-100>,
    "component_scores": {
        "transaction_patterns": <0-100>,
        "protocol_interactions": <0-100>,
        "asset_concentration": <0-100>,
        "behavioral_patterns": <0-100>
    },
    "risk_reasoning": "<explain the main risk factors and score rationale>",
    "key_insights": [
        "<insight 1>",
        "<insight 2>",
        "<insight 3>"
    ]
}`

const (
	promptTopAddresses = 5
	promptTopTokens    = 10
)

// BuildPrompt renders the wallet summary sent to the model, system
// instruction included.
func BuildPrompt(in scoring.Inputs) string {
	p := in.Patterns
	total := p.TotalTransactions
	successRate := float64(p.SuccessfulTransactions) / float64(max(total, 1)) * 100

	addrs := p.Addresses.MostFrequentAddresses
	if len(addrs) > promptTopAddresses {
		addrs = addrs[:promptTopAddresses]
	}
	if addrs == nil {
		addrs = []scoring.AddressCount{}
	}

	tokens := in.Balances.Tokens
	if len(tokens) > promptTopTokens {
		tokens = tokens[:promptTopTokens]
	}
	tokenInfo := make([]string, 0, len(tokens))
	for _, t := range tokens {
		name, sym := t.TokenName, t.TokenSymbol
		if name == "" {
			name = "Unknown"
		}
		if sym == "" {
			sym = "UNK"
		}
		tokenInfo = append(tokenInfo, fmt.Sprintf("%s (%s)", name, sym))
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\nWALLET RISK ANALYSIS REQUEST\n\n")

	b.WriteString("TRANSACTION PATTERNS:\n")
	fmt.Fprintf(&b, "- Total Transactions: %d\n", total)
	fmt.Fprintf(&b, "- Success Rate: %.1f%%\n", successRate)
	fmt.Fprintf(&b, "- Contract Interactions: %d\n", p.ContractInteractions)
	fmt.Fprintf(&b, "- Value Flow: $%.2f out vs $%.2f in\n", p.Value.TotalValueOut, p.Value.TotalValueIn)
	fmt.Fprintf(&b, "- ETH Balance: %.4f ETH\n\n", in.Balances.ETHBalance)

	b.WriteString("MOST FREQUENT CONTRACT INTERACTIONS:\n")
	b.WriteString(indentJSON(addrs))
	b.WriteString("\n\nTOKEN HOLDINGS (Top 10):\n")
	b.WriteString(indentJSON(tokenInfo))

	b.WriteString("\n\nCURRENT PROTOCOL ANALYSIS:\n")
	fmt.Fprintf(&b, "- Protocols Identified: %d\n", in.Protocols.TotalProtocols)
	fmt.Fprintf(&b, "- Average Protocol Risk: %v\n\n", in.Protocols.AverageRisk)

	b.WriteString(responseFormat)
	return b.String()
}

func indentJSON(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(out)
}
