package server

import (
	"github.com/mbd888/safescore/internal/realtime"
	"github.com/mbd888/safescore/internal/risk"
)

// hubEmitter publishes service events on the realtime hub.
type hubEmitter struct {
	hub *realtime.Hub
}

var _ risk.EventEmitter = (*hubEmitter)(nil)

func (e *hubEmitter) EmitWalletAssessed(a *risk.WalletAssessment) {
	if e.hub == nil || a == nil || a.Assessment == nil {
		return
	}
	factors := a.Assessment.RiskFactors
	e.hub.BroadcastWalletAssessed(&realtime.WalletData{
		ID:          a.ID,
		Address:     a.Address,
		Score:       a.Score(),
		Level:       string(a.Level()),
		Description: a.Assessment.RiskDescription,
		TopFactors:  factors[:min(maxTopFactors, len(factors))],
		Cached:      a.Cached,
	})
}

func (e *hubEmitter) EmitBatchCompleted(b *risk.Batch) {
	if e.hub == nil || b == nil {
		return
	}
	data := &realtime.BatchData{
		ID:        b.ID,
		Wallets:   len(b.Results),
		Succeeded: b.Succeeded,
		Failed:    b.Failed,
		Addresses: make([]string, 0, len(b.Results)),
	}
	for _, r := range b.Results {
		data.Addresses = append(data.Addresses, r.Address)
	}
	e.hub.BroadcastBatchCompleted(data)
}
