package scoring

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when a scoring config fails validation.
var ErrInvalidConfig = errors.New("scoring: invalid config")

// Weights for the rule-based overall score.
// ActivityFrequency and FailureRate both apply to the behavioral score.
type Weights struct {
	TransactionPatterns  float64 `yaml:"transaction_patterns" json:"transaction_patterns"`
	ProtocolInteractions float64 `yaml:"protocol_interactions" json:"protocol_interactions"`
	AssetConcentration   float64 `yaml:"asset_concentration" json:"asset_concentration"`
	ActivityFrequency    float64 `yaml:"activity_frequency" json:"activity_frequency"`
	FailureRate          float64 `yaml:"failure_rate" json:"failure_rate"`
}

// Behavioral returns the combined weight applied to the behavioral score.
func (w Weights) Behavioral() float64 {
	return w.ActivityFrequency + w.FailureRate
}

func (w Weights) asMap() map[string]float64 {
	return map[string]float64{
		"transaction_patterns":  w.TransactionPatterns,
		"protocol_interactions": w.ProtocolInteractions,
		"asset_concentration":   w.AssetConcentration,
		"activity_frequency":    w.ActivityFrequency,
		"failure_rate":          w.FailureRate,
	}
}

// Blend splits a score between the rule-based and LLM results.
type Blend struct {
	Rule float64 `yaml:"rule"`
	LLM  float64 `yaml:"llm"`
}

func (b Blend) apply(rule, llm float64) float64 {
	return b.Rule*rule + b.LLM*llm
}

// ComponentBlends holds the per-component hybrid ratios. These are not
// derived from the overall blend.
type ComponentBlends struct {
	Transaction   Blend `yaml:"transaction"`
	Protocol      Blend `yaml:"protocol"`
	Concentration Blend `yaml:"concentration"`
	Behavioral    Blend `yaml:"behavioral"`
}

// TransactionThresholds drive the transaction pattern rules.
type TransactionThresholds struct {
	LowSuccessRate            float64 `yaml:"low_success_rate"`
	ModerateSuccessRate       float64 `yaml:"moderate_success_rate"`
	HighSuccessRate           float64 `yaml:"high_success_rate"`
	HighActivityFrequency     float64 `yaml:"high_activity_frequency"`
	VeryHighActivityFrequency float64 `yaml:"very_high_activity_frequency"`
	LowActivityFrequency      float64 `yaml:"low_activity_frequency"`
	HighValueRatio            float64 `yaml:"high_value_tx_ratio"`
	VeryHighValueRatio        float64 `yaml:"very_high_value_tx_ratio"`
	HighContractRatio         float64 `yaml:"high_contract_ratio"`
	VeryHighContractRatio     float64 `yaml:"very_high_contract_ratio"`
	LowContractRatio          float64 `yaml:"low_contract_ratio"`
	RecentActivityThreshold   int     `yaml:"recent_activity_threshold"`
	HighGasPrice              float64 `yaml:"high_gas_price"`
	LowAddressDiversity       float64 `yaml:"low_address_diversity"`
}

// ProtocolThresholds drive the protocol exposure rules.
type ProtocolThresholds struct {
	SingleProtocolPenalty      float64 `yaml:"single_protocol_penalty"`
	LowDiversificationPenalty  float64 `yaml:"low_diversification_penalty"`
	DiversificationBonus       float64 `yaml:"diversification_bonus"`
	LowDiversificationCategory int     `yaml:"low_diversification_threshold"`
	VeryHighTVL                float64 `yaml:"very_high_tvl"`
	HighTVL                    float64 `yaml:"high_tvl"`
	MediumTVL                  float64 `yaml:"medium_tvl"`
	LowTVL                     float64 `yaml:"low_tvl"`
	VeryHighTVLBonus           float64 `yaml:"very_high_tvl_bonus"`
	HighTVLBonus               float64 `yaml:"high_tvl_bonus"`
	MediumTVLBonus             float64 `yaml:"medium_tvl_bonus"`
	LowTVLPenalty              float64 `yaml:"low_tvl_penalty"`
	VeryHighRiskPenalty        float64 `yaml:"very_high_risk_penalty"`
}

// AssetThresholds drive the asset concentration rules.
type AssetThresholds struct {
	SingleTokenPenalty        float64  `yaml:"single_token_penalty"`
	LowDiversificationPenalty float64  `yaml:"low_diversification_penalty"`
	GoodDiversificationBonus  float64  `yaml:"good_diversification_bonus"`
	HighDiversificationBonus  float64  `yaml:"high_diversification_bonus"`
	LowDiversificationCount   int      `yaml:"low_diversification_count"`
	GoodDiversificationCount  int      `yaml:"good_diversification_count"`
	VeryLargeETH              float64  `yaml:"very_large_eth_holdings"`
	LargeETH                  float64  `yaml:"large_eth_holdings"`
	SignificantETH            float64  `yaml:"significant_eth_holdings"`
	VeryLowETH                float64  `yaml:"very_low_eth_balance"`
	VeryLargeETHPenalty       float64  `yaml:"very_large_eth_penalty"`
	LargeETHPenalty           float64  `yaml:"large_eth_penalty"`
	SignificantETHPenalty     float64  `yaml:"significant_eth_penalty"`
	VeryLowETHPenalty         float64  `yaml:"very_low_eth_penalty"`
	StablecoinBonusMax        float64  `yaml:"stablecoin_bonus_max"`
	StablecoinBonusPerToken   float64  `yaml:"stablecoin_bonus_per_token"`
	StablecoinSymbols         []string `yaml:"stablecoin_symbols"`
}

// BehavioralThresholds drive the behavioral rules.
type BehavioralThresholds struct {
	VeryHighGasPrice             float64 `yaml:"very_high_gas_price"`
	HighGasPrice                 float64 `yaml:"high_gas_price"`
	LowGasPrice                  float64 `yaml:"low_gas_price"`
	VeryHighGasPenalty           float64 `yaml:"very_high_gas_penalty"`
	HighGasPenalty               float64 `yaml:"high_gas_penalty"`
	LowGasBonus                  float64 `yaml:"low_gas_bonus"`
	HeavyOutflowRatio            float64 `yaml:"heavy_outflow_ratio"`
	ModerateOutflowRatio         float64 `yaml:"moderate_outflow_ratio"`
	AccumulationRatio            float64 `yaml:"accumulation_ratio"`
	HeavyOutflowPenalty          float64 `yaml:"heavy_outflow_penalty"`
	ModerateOutflowPenalty       float64 `yaml:"moderate_outflow_penalty"`
	AccumulationBonus            float64 `yaml:"accumulation_bonus"`
	VeryLargeTransaction         float64 `yaml:"very_large_transaction"`
	LargeTransaction             float64 `yaml:"large_transaction"`
	VeryLargeTxPenalty           float64 `yaml:"very_large_tx_penalty"`
	LargeTxPenalty               float64 `yaml:"large_tx_penalty"`
	VeryConcentratedInteractions float64 `yaml:"very_concentrated_interactions"`
	ConcentratedInteractions     float64 `yaml:"concentrated_interactions"`
	DiverseInteractions          float64 `yaml:"diverse_interactions"`
	VeryConcentratedPenalty      float64 `yaml:"very_concentrated_penalty"`
	ConcentratedPenalty          float64 `yaml:"concentrated_penalty"`
	DiverseBonus                 float64 `yaml:"diverse_bonus"`
	VeryNewWalletDays            float64 `yaml:"very_new_wallet_days"`
	NewWalletDays                float64 `yaml:"new_wallet_days"`
	OldWalletDays                float64 `yaml:"old_wallet_days"`
	VeryNewWalletPenalty         float64 `yaml:"very_new_wallet_penalty"`
	NewWalletPenalty             float64 `yaml:"new_wallet_penalty"`
	OldWalletBonus               float64 `yaml:"old_wallet_bonus"`
}

// Config is the complete scoring configuration. It is passed by value
// into each analyzer and the engine, so later edits by the caller never
// leak into a running engine.
type Config struct {
	Weights            Weights               `yaml:"weights"`
	Overall            Blend                 `yaml:"overall_blend"`
	Components         ComponentBlends       `yaml:"component_blends"`
	Transaction        TransactionThresholds `yaml:"transaction"`
	Protocol           ProtocolThresholds    `yaml:"protocol"`
	Asset              AssetThresholds       `yaml:"asset"`
	Behavioral         BehavioralThresholds  `yaml:"behavioral"`
	OracleTimeout      time.Duration         `yaml:"oracle_timeout"`
	MaxRecommendations int                   `yaml:"max_recommendations"`
}

// Default configuration values.
const (
	DefaultOracleTimeout      = 30 * time.Second
	DefaultMaxRecommendations = 10
)

// DefaultConfig returns the standard weights, blends and thresholds.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			TransactionPatterns:  0.25,
			ProtocolInteractions: 0.30,
			AssetConcentration:   0.20,
			ActivityFrequency:    0.15,
			FailureRate:          0.10,
		},
		Overall: Blend{Rule: 0.6, LLM: 0.4},
		Components: ComponentBlends{
			Transaction:   Blend{Rule: 0.7, LLM: 0.3},
			Protocol:      Blend{Rule: 0.5, LLM: 0.5},
			Concentration: Blend{Rule: 0.6, LLM: 0.4},
			Behavioral:    Blend{Rule: 0.7, LLM: 0.3},
		},
		Transaction: TransactionThresholds{
			LowSuccessRate:            0.7,
			ModerateSuccessRate:       0.85,
			HighSuccessRate:           0.95,
			HighActivityFrequency:     10,
			VeryHighActivityFrequency: 20,
			LowActivityFrequency:      0.1,
			HighValueRatio:            0.3,
			VeryHighValueRatio:        0.5,
			HighContractRatio:         0.7,
			VeryHighContractRatio:     0.9,
			LowContractRatio:          0.1,
			RecentActivityThreshold:   50,
			HighGasPrice:              100,
			LowAddressDiversity:       0.1,
		},
		Protocol: ProtocolThresholds{
			SingleProtocolPenalty:      15,
			LowDiversificationPenalty:  5,
			DiversificationBonus:       10,
			LowDiversificationCategory: 3,
			VeryHighTVL:                50_000_000_000,
			HighTVL:                    10_000_000_000,
			MediumTVL:                  1_000_000_000,
			LowTVL:                     100_000_000,
			VeryHighTVLBonus:           15,
			HighTVLBonus:               10,
			MediumTVLBonus:             5,
			LowTVLPenalty:              15,
			VeryHighRiskPenalty:        5,
		},
		Asset: AssetThresholds{
			SingleTokenPenalty:        20,
			LowDiversificationPenalty: 10,
			GoodDiversificationBonus:  5,
			HighDiversificationBonus:  10,
			LowDiversificationCount:   3,
			GoodDiversificationCount:  10,
			VeryLargeETH:              1000,
			LargeETH:                  100,
			SignificantETH:            10,
			VeryLowETH:                0.01,
			VeryLargeETHPenalty:       25,
			LargeETHPenalty:           15,
			SignificantETHPenalty:     5,
			VeryLowETHPenalty:         10,
			StablecoinBonusMax:        15,
			StablecoinBonusPerToken:   5,
			StablecoinSymbols:         []string{"usdt", "usdc", "dai", "busd", "frax", "tusd", "usdp", "gusd"},
		},
		Behavioral: BehavioralThresholds{
			VeryHighGasPrice:             200,
			HighGasPrice:                 100,
			LowGasPrice:                  20,
			VeryHighGasPenalty:           20,
			HighGasPenalty:               10,
			LowGasBonus:                  5,
			HeavyOutflowRatio:            3,
			ModerateOutflowRatio:         1.5,
			AccumulationRatio:            2,
			HeavyOutflowPenalty:          20,
			ModerateOutflowPenalty:       5,
			AccumulationBonus:            5,
			VeryLargeTransaction:         100,
			LargeTransaction:             10,
			VeryLargeTxPenalty:           15,
			LargeTxPenalty:               5,
			VeryConcentratedInteractions: 0.1,
			ConcentratedInteractions:     0.3,
			DiverseInteractions:          0.7,
			VeryConcentratedPenalty:      15,
			ConcentratedPenalty:          5,
			DiverseBonus:                 5,
			VeryNewWalletDays:            30,
			NewWalletDays:                90,
			OldWalletDays:                730,
			VeryNewWalletPenalty:         15,
			NewWalletPenalty:             5,
			OldWalletBonus:               10,
		},
		OracleTimeout:      DefaultOracleTimeout,
		MaxRecommendations: DefaultMaxRecommendations,
	}
}

// LoadConfig reads a YAML override file on top of DefaultConfig.
// Keys missing from the file keep their default value.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return Config{}, fmt.Errorf("failed to read scoring config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse scoring config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks weights, blend ratios and limits.
func (c Config) Validate() error {
	var sum float64
	for name, w := range c.Weights.asMap() {
		if w < 0 {
			return fmt.Errorf("%w: weight %s is negative", ErrInvalidConfig, name)
		}
		sum += w
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: weights must sum to 1, got %.4f", ErrInvalidConfig, sum)
	}

	blends := map[string]Blend{
		"overall_blend": c.Overall,
		"transaction":   c.Components.Transaction,
		"protocol":      c.Components.Protocol,
		"concentration": c.Components.Concentration,
		"behavioral":    c.Components.Behavioral,
	}
	for name, b := range blends {
		if b.Rule < 0 || b.LLM < 0 {
			return fmt.Errorf("%w: blend %s has a negative share", ErrInvalidConfig, name)
		}
		if math.Abs(b.Rule+b.LLM-1) > 1e-9 {
			return fmt.Errorf("%w: blend %s must sum to 1", ErrInvalidConfig, name)
		}
	}

	if c.OracleTimeout <= 0 {
		return fmt.Errorf("%w: oracle_timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRecommendations <= 0 || c.MaxRecommendations > DefaultMaxRecommendations {
		return fmt.Errorf("%w: max_recommendations must be between 1 and %d", ErrInvalidConfig, DefaultMaxRecommendations)
	}
	return nil
}

// clone returns a copy that shares no slices with c.
func (c Config) clone() Config {
	out := c
	out.Asset.StablecoinSymbols = append([]string(nil), c.Asset.StablecoinSymbols...)
	return out
}
