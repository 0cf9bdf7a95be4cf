package scoring

// TransactionPatterns aggregates an address's transaction history.
// A non-empty Error means no data could be retrieved, which is scored
// differently from a wallet with zero transactions.
type TransactionPatterns struct {
	Error string `json:"error,omitempty"`

	TotalTransactions      int `json:"total_transactions"`
	SuccessfulTransactions int `json:"successful_transactions"`
	FailedTransactions     int `json:"failed_transactions"`
	UniqueAddresses        int `json:"unique_addresses"`
	ContractInteractions   int `json:"contract_interactions"`
	HighValueTransactions  int `json:"high_value_transactions"`
	RecentActivity         int `json:"recent_activity"`

	Gas       GasAnalysis         `json:"gas_analysis"`
	Time      TimeAnalysis        `json:"time_analysis"`
	Value     ValueAnalysis       `json:"value_analysis"`
	Addresses AddressInteractions `json:"address_interactions"`
}

// HasError reports whether the patterns carry the no-data marker.
func (p TransactionPatterns) HasError() bool {
	return p.Error != ""
}

// NoTransactionData returns patterns carrying only the error marker.
func NoTransactionData(reason string) TransactionPatterns {
	if reason == "" {
		reason = "no transaction data"
	}
	return TransactionPatterns{Error: reason}
}

// GasAnalysis summarizes gas spend.
type GasAnalysis struct {
	TotalGasUsed uint64  `json:"total_gas_used"`
	AvgGasPrice  float64 `json:"avg_gas_price"` // Gwei
	TotalFees    float64 `json:"total_fees"`    // ETH
}

// TimeAnalysis holds first/last activity as unix seconds. Zero means unknown.
type TimeAnalysis struct {
	FirstTransaction  int64   `json:"first_transaction"`
	LastTransaction   int64   `json:"last_transaction"`
	ActivityFrequency float64 `json:"activity_frequency"` // tx/day
}

// ValueAnalysis holds ETH value flow.
type ValueAnalysis struct {
	TotalValueIn        float64 `json:"total_value_in"`
	TotalValueOut       float64 `json:"total_value_out"`
	LargestTransaction  float64 `json:"largest_transaction"`
	AvgTransactionValue float64 `json:"avg_transaction_value"`
}

// AddressCount is one entry of the counterparty frequency table.
type AddressCount struct {
	Address string `json:"address"`
	Count   int    `json:"count"`
}

// AddressInteractions holds the ordered top counterparties and the number
// of distinct counterparties.
type AddressInteractions struct {
	MostFrequentAddresses []AddressCount `json:"most_frequent_addresses"`
	InteractionDiversity  int            `json:"interaction_diversity"`
}

// ProtocolInfo is one DeFi protocol a wallet interacted with.
type ProtocolInfo struct {
	Name      string   `json:"name"`
	RiskScore float64  `json:"risk_score"`
	TVL       float64  `json:"tvl"`
	Category  string   `json:"category"`
	Chains    []string `json:"chains"`
}

// RiskDistribution counts protocols per risk bucket.
type RiskDistribution struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	VeryHigh int `json:"very_high"`
}

// ProtocolAnalysis is the protocol exposure of a wallet. A nil Protocols
// slice means the lookup produced nothing; an empty one means the wallet
// explicitly had no DeFi interactions.
type ProtocolAnalysis struct {
	Protocols            []ProtocolInfo   `json:"protocols"`
	AverageRisk          float64          `json:"average_risk"`
	RawAverageRisk       float64          `json:"raw_average_risk"`
	HighRiskProtocols    int              `json:"high_risk_protocols"`
	TotalTVLInteracted   float64          `json:"total_tvl_interacted"`
	DiversificationScore int              `json:"diversification_score"`
	Categories           []string         `json:"categories"`
	TotalProtocols       int              `json:"total_protocols"`
	ConcentrationPenalty float64          `json:"concentration_penalty"`
	RiskDistribution     RiskDistribution `json:"risk_distribution"`
}

// TokenHolding is an ERC-20 token seen in the wallet's transfers.
type TokenHolding struct {
	ContractAddress string `json:"contract_address"`
	TokenName       string `json:"token_name"`
	TokenSymbol     string `json:"token_symbol"`
	TokenDecimal    int    `json:"token_decimal"`
	LastTransaction int64  `json:"last_transaction"`
}

// AddressInfo describes the address itself, from an RPC probe.
type AddressInfo struct {
	Address          string  `json:"address"`
	IsContract       bool    `json:"is_contract"`
	AddressType      string  `json:"address_type"`
	ETHBalance       float64 `json:"eth_balance"`
	TransactionCount uint64  `json:"transaction_count"`
}

// BalanceData is the wallet's holdings.
type BalanceData struct {
	ETHBalance  float64        `json:"eth_balance"`
	Tokens      []TokenHolding `json:"tokens"`
	AddressInfo *AddressInfo   `json:"address_info,omitempty"`
}

// Inputs bundles everything the engine and the oracle score.
type Inputs struct {
	Patterns  TransactionPatterns `json:"patterns"`
	Protocols ProtocolAnalysis    `json:"protocol_analysis"`
	Balances  BalanceData         `json:"balances"`
}
