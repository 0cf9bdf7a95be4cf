// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mbd888/safescore/internal/scoring"
	"github.com/mbd888/safescore/internal/security"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"
	LogFile   string // Optional rotating log file

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Optional shared assessment cache, in-process cache if not set
	CacheTTL    time.Duration

	// Upstream data sources
	RPCURL          string
	EtherscanAPIKey string
	EtherscanURL    string
	DefiLlamaURL    string

	// LLM oracle (optional, rule-based only if no key)
	GeminiAPIKey string
	GeminiModel  string

	// Scoring
	ScoringConfigPath string
	Scoring           scoring.Config

	// Throughput
	RateLimitRPS int
	BatchRate    float64 // wallets per second in batch mode

	// CORS origins; empty allows all
	CORSOrigins []string

	// Tracing
	OTLPEndpoint     string
	TraceSampleRatio float64
}

// Defaults
const (
	DefaultPort         = "8080"
	DefaultEnv          = "development"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultRPCURL       = "https://ethereum-rpc.publicnode.com"
	DefaultEtherscanURL = "https://api.etherscan.io/api"
	DefaultDefiLlamaURL = "https://api.llama.fi"
	DefaultGeminiModel  = "gemini-1.5-flash"
	DefaultCacheTTL     = 300 // seconds
	DefaultRateLimit    = 100
	DefaultBatchRate    = 1.0
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:         getEnv("LOG_FORMAT", DefaultLogFormat),
		LogFile:           os.Getenv("LOG_FILE"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		CacheTTL:          time.Duration(getEnvInt64("CACHE_TTL_SECONDS", DefaultCacheTTL)) * time.Second,
		RPCURL:            getEnv("RPC_URL", DefaultRPCURL),
		EtherscanAPIKey:   os.Getenv("ETHERSCAN_API_KEY"), // Required, no default
		EtherscanURL:      getEnv("ETHERSCAN_URL", DefaultEtherscanURL),
		DefiLlamaURL:      getEnv("DEFILLAMA_URL", DefaultDefiLlamaURL),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiModel:       getEnv("GEMINI_MODEL", DefaultGeminiModel),
		ScoringConfigPath: os.Getenv("SCORING_CONFIG"),
		RateLimitRPS:      int(getEnvInt64("RATE_LIMIT_RPS", int64(DefaultRateLimit))),
		BatchRate:         getEnvFloat("BATCH_RATE", DefaultBatchRate),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TraceSampleRatio:  getEnvFloat("OTEL_SAMPLE_RATIO", 1),
		CORSOrigins:       splitList(os.Getenv("CORS_ORIGINS")),
	}

	sc, err := scoring.LoadConfig(cfg.ScoringConfigPath)
	if err != nil {
		return nil, err
	}
	cfg.Scoring = sc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.EtherscanAPIKey == "" {
		return fmt.Errorf("ETHERSCAN_API_KEY is required")
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL_SECONDS must be positive")
	}

	if c.BatchRate <= 0 {
		return fmt.Errorf("BATCH_RATE must be positive")
	}

	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}

	upstreams := map[string]string{
		"ETHERSCAN_URL": c.EtherscanURL,
		"DEFILLAMA_URL": c.DefiLlamaURL,
		"RPC_URL":       c.RPCURL,
	}
	for name, u := range upstreams {
		if err := security.ValidateUpstreamURL(u, c.IsProduction()); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return c.Scoring.Validate()
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// LLMEnabled reports whether a Gemini key is configured.
func (c *Config) LLMEnabled() bool {
	return c.GeminiAPIKey != ""
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// splitList parses a comma-separated value, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
