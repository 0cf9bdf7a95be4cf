package defillama

import (
	"context"
	"errors"
	"strings"

	"github.com/mbd888/safescore/internal/scoring"
)

const (
	// UnknownProtocolRisk is the score of a name DeFiLlama does not list.
	UnknownProtocolRisk = 85.0
	// UnlistedRisk is what RiskScore returns for a nil protocol.
	UnlistedRisk = 80.0
)

var (
	highRiskCategories   = []string{"leverage", "derivatives", "yield farming", "synthetics"}
	mediumRiskCategories = []string{"yield", "options", "insurance"}
	safeCategories       = []string{"dexes", "lending"}

	noInteractionNames = map[string]bool{"no defi interactions": true, "no defi": true, "none": true}
	skippedNames       = map[string]bool{"unknown": true, "": true}
)

// RiskScore rates a protocol from 0 to 100 using TVL, category and chains.
func RiskScore(p *Protocol) float64 {
	if p == nil {
		return UnlistedRisk
	}

	score := 50.0
	switch {
	case p.TVL > 10_000_000_000:
		score -= 20
	case p.TVL > 1_000_000_000:
		score -= 15
	case p.TVL > 100_000_000:
		score -= 10
	case p.TVL > 10_000_000:
		score -= 5
	default:
		score += 15
	}

	category := strings.ToLower(p.Category)
	switch {
	case containsAny(category, highRiskCategories):
		score += 15
	case containsAny(category, mediumRiskCategories):
		score += 5
	case containsAny(category, safeCategories):
		score -= 10
	}

	var eth, bsc bool
	for _, ch := range p.Chains {
		switch strings.ToLower(ch) {
		case "ethereum":
			eth = true
		case "binance", "bsc":
			bsc = true
		}
	}
	if eth {
		score -= 10
	}
	if bsc {
		score -= 5
	}
	if len(p.Chains) > 5 {
		score += 5
	}

	return max(0, min(100, score))
}

// AnalyzeInteractions scores the protocols behind names. A lone
// "No DeFi Interactions" style sentinel yields the no-interaction
// analysis; names DeFiLlama does not list score UnknownProtocolRisk.
// When the listing is unreachable every name is treated as unlisted.
func (c *Client) AnalyzeInteractions(ctx context.Context, names []string) scoring.ProtocolAnalysis {
	if len(names) == 1 && noInteractionNames[strings.ToLower(names[0])] {
		return scoring.NoProtocolInteractions()
	}

	protocols, err := c.Protocols(ctx)
	if err != nil {
		c.logger.Warn("protocol listing unavailable, scoring names as unlisted", "error", err)
	}
	return analyze(protocols, names)
}

func analyze(listing []Protocol, names []string) scoring.ProtocolAnalysis {
	infos := make([]scoring.ProtocolInfo, 0, len(names))
	for _, name := range names {
		if skippedNames[strings.ToLower(name)] {
			continue
		}
		p := matchProtocol(listing, name)
		if p == nil {
			infos = append(infos, scoring.ProtocolInfo{
				Name:      name,
				RiskScore: UnknownProtocolRisk,
				Category:  "Unknown",
				Chains:    []string{},
			})
			continue
		}
		chains := p.Chains
		if chains == nil {
			chains = []string{}
		}
		infos = append(infos, scoring.ProtocolInfo{
			Name:      name,
			RiskScore: RiskScore(p),
			TVL:       p.TVL,
			Category:  p.Category,
			Chains:    chains,
		})
	}
	return scoring.SummarizeProtocols(infos)
}

// IsNotFound reports whether err means the protocol is not listed.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProtocolNotFound)
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
