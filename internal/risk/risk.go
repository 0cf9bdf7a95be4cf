// Package risk assesses Ethereum wallets end to end.
//
// The Service fetches a wallet's transaction history, holdings, protocol
// exposure and on-chain account type, hands them to the scoring engine,
// and persists, caches and broadcasts the result. Batch runs are paced so
// upstream explorers are not rate limited.
package risk

import (
	"context"
	"errors"
	"time"

	"github.com/mbd888/safescore/internal/etherscan"
	"github.com/mbd888/safescore/internal/pagination"
	"github.com/mbd888/safescore/internal/scoring"
)

var (
	ErrInvalidAddress = errors.New("risk: invalid wallet address")
	ErrNotFound       = errors.New("risk: no assessment found")
	ErrEmptyBatch     = errors.New("risk: batch has no addresses")
	ErrBatchTooLarge  = errors.New("risk: batch exceeds maximum size")
)

// Batch and history limits.
const (
	MaxBatchSize        = 25
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Protocol names used when a contract call cannot be attributed.
const (
	NameTokenTransfer   = "Token Transfer"
	NameUnknownProtocol = "Unknown Protocol"
	NameNoInteractions  = "No DeFi Interactions"
)

// WalletAssessment is one scored wallet.
type WalletAssessment struct {
	ID         string              `json:"id"`
	Address    string              `json:"address"`
	Assessment *scoring.Assessment `json:"assessment"`
	Summary    Summary             `json:"summary"`
	AssessedAt time.Time           `json:"assessedAt"`
	DurationMS int64               `json:"durationMs"`
	Cached     bool                `json:"cached"`
}

// Score returns the overall score, or 0 when the assessment is missing.
func (w *WalletAssessment) Score() float64 {
	if w == nil || w.Assessment == nil {
		return 0
	}
	return w.Assessment.OverallRiskScore
}

// Level returns the risk level, or "" when the assessment is missing.
func (w *WalletAssessment) Level() scoring.RiskLevel {
	if w == nil || w.Assessment == nil {
		return ""
	}
	return w.Assessment.RiskLevel
}

// Summary is the headline data shown next to a score in reports.
type Summary struct {
	TotalTransactions   int      `json:"totalTransactions"`
	SuccessRate         float64  `json:"successRate"`
	ETHBalance          float64  `json:"ethBalance"`
	TokenTypes          int      `json:"tokenTypes"`
	ProtocolsIdentified int      `json:"protocolsIdentified"`
	Protocols           []string `json:"protocols"`
}

// BatchResult is the outcome for one address of a batch. Exactly one of
// Assessment and Error is set.
type BatchResult struct {
	Address    string            `json:"address"`
	Assessment *WalletAssessment `json:"assessment,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// HistoryPage is one page of stored assessments, newest first.
type HistoryPage struct {
	Assessments []*WalletAssessment `json:"assessments"`
	NextCursor  string              `json:"nextCursor,omitempty"`
}

// Batch is a completed batch run.
type Batch struct {
	ID          string        `json:"id"`
	Results     []BatchResult `json:"results"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	CompletedAt time.Time     `json:"completedAt"`
}

// ComprehensiveReport is a fresh assessment plus the data it was built from.
type ComprehensiveReport struct {
	*WalletAssessment
	Transactions TransactionSummary `json:"transaction_summary"`
	Protocols    ProtocolSummary    `json:"protocol_summary"`
	Assets       AssetSummary       `json:"asset_summary"`
	Duration     float64            `json:"analysis_duration_seconds"`
}

// TransactionSummary condenses the wallet's transaction patterns.
type TransactionSummary struct {
	TotalTransactions     int     `json:"total_transactions"`
	SuccessRate           float64 `json:"success_rate"`
	RecentActivity        int     `json:"recent_activity"`
	ContractInteractions  int     `json:"contract_interactions"`
	UniqueAddresses       int     `json:"unique_addresses"`
	HighValueTransactions int     `json:"high_value_transactions"`
	ActivityFrequency     float64 `json:"activity_frequency"`
	AvgGasPrice           float64 `json:"avg_gas_price"`
	TotalFeesPaid         float64 `json:"total_fees_paid"`
	TotalValueIn          float64 `json:"total_value_in"`
	TotalValueOut         float64 `json:"total_value_out"`
	FirstSeen             int64   `json:"first_seen"`
	LastSeen              int64   `json:"last_seen"`
	DataError             string  `json:"data_error,omitempty"`
}

// ProtocolSummary condenses the wallet's DeFi exposure.
type ProtocolSummary struct {
	Names                []string                 `json:"protocol_names"`
	ProtocolsIdentified  int                      `json:"protocols_identified"`
	ProtocolsInteracted  int                      `json:"protocols_interacted"`
	HighRiskProtocols    int                      `json:"high_risk_protocols"`
	AverageProtocolRisk  float64                  `json:"average_protocol_risk"`
	DiversificationScore int                      `json:"diversification_score"`
	TotalTVLExposure     float64                  `json:"total_tvl_exposure"`
	Categories           []string                 `json:"protocol_categories"`
	RiskDistribution     scoring.RiskDistribution `json:"risk_distribution"`
}

// AssetSummary condenses holdings and the on-chain account type.
type AssetSummary struct {
	ETHBalance       float64                `json:"eth_balance"`
	TokenTypes       int                    `json:"token_types"`
	TopTokens        []scoring.TokenHolding `json:"top_tokens"`
	IsContract       bool                   `json:"is_contract"`
	AddressType      string                 `json:"address_type"`
	TransactionCount uint64                 `json:"transaction_count"`
}

// Store persists assessments for history queries.
type Store interface {
	Record(ctx context.Context, a *WalletAssessment) error
	// ListByAddress returns the newest assessments first, starting after
	// the before cursor when it is set.
	ListByAddress(ctx context.Context, address string, before *pagination.Cursor, limit int) ([]*WalletAssessment, error)
	// Latest returns ErrNotFound when the address was never assessed.
	Latest(ctx context.Context, address string) (*WalletAssessment, error)
}

// EventEmitter broadcasts assessment events to real-time subscribers.
type EventEmitter interface {
	EmitWalletAssessed(a *WalletAssessment)
	EmitBatchCompleted(b *Batch)
}

// TransactionSource is the block explorer.
type TransactionSource interface {
	Transactions(ctx context.Context, address string) ([]etherscan.Transaction, error)
	Balances(ctx context.Context, address string) (scoring.BalanceData, error)
}

// ProtocolSource resolves contracts and names to DeFi protocols.
type ProtocolSource interface {
	ContractMap(ctx context.Context) (map[string]string, error)
	AnalyzeInteractions(ctx context.Context, names []string) scoring.ProtocolAnalysis
}

// AddressProber reads account facts from a chain node.
type AddressProber interface {
	Probe(ctx context.Context, address string) (*scoring.AddressInfo, error)
}

// Fetchers groups the upstream data sources. Prober is optional.
type Fetchers struct {
	Transactions TransactionSource
	Protocols    ProtocolSource
	Prober       AddressProber
}
