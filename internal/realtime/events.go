package realtime

import (
	"slices"
	"strings"
	"time"
)

// EventType names a message on the stream.
type EventType string

const (
	EventWalletAssessed EventType = "wallet_assessed"
	EventHighRisk       EventType = "high_risk_detected"
	EventBatchCompleted EventType = "batch_completed"

	// EventSubscribed acknowledges a subscription update. It is sent only
	// to the client that asked.
	EventSubscribed EventType = "subscribed"
)

// HighRiskThreshold is the score at which a wallet assessment is also
// published as a high-risk event.
const HighRiskThreshold = 60

// Event is the envelope written to clients.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// WalletData is the payload of wallet_assessed and high_risk_detected events.
type WalletData struct {
	ID          string   `json:"id"`
	Address     string   `json:"address"`
	Score       float64  `json:"score"`
	Level       string   `json:"level"`
	Description string   `json:"description,omitempty"`
	TopFactors  []string `json:"topFactors,omitempty"`
	Cached      bool     `json:"cached"`
}

// BatchData is the payload of batch_completed events.
type BatchData struct {
	ID        string   `json:"id"`
	Wallets   int      `json:"wallets"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Addresses []string `json:"addresses,omitempty"`
}

// Subscription narrows what a client receives. The zero value receives
// every wallet event with a score of 0 or more, which is all of them.
type Subscription struct {
	AllEvents  bool        `json:"allEvents"`
	EventTypes []EventType `json:"eventTypes"`
	Addresses  []string    `json:"addresses"`
	MinScore   float64     `json:"minScore"`
}

// normalize lowercases watched addresses and drops blanks so matching is
// a plain comparison.
func (s Subscription) normalize() Subscription {
	addrs := make([]string, 0, len(s.Addresses))
	for _, a := range s.Addresses {
		if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
			addrs = append(addrs, a)
		}
	}
	s.Addresses = addrs
	return s
}

// Matches applies the subscription filters to an event. Address and score
// filters only constrain wallet events; batch events pass them.
func (s Subscription) Matches(event *Event) bool {
	switch {
	case s.AllEvents:
		return true
	case len(s.EventTypes) > 0 && !slices.Contains(s.EventTypes, event.Type):
		return false
	}

	wallet, ok := event.Data.(*WalletData)
	if !ok {
		return true
	}
	if wallet.Score < s.MinScore {
		return false
	}
	return len(s.Addresses) == 0 || slices.ContainsFunc(s.Addresses, func(addr string) bool {
		return strings.EqualFold(addr, wallet.Address)
	})
}
