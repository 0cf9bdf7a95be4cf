package defillama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/safescore/internal/scoring"
)

var listing = []Protocol{
	{Name: "Uniswap V3", Slug: "uniswap-v3", Address: "0x1F98431c8aD98523631AE4a59f267346ea31F984",
		Category: "Dexes", Chains: []string{"Ethereum"}, TVL: 5e9},
	{Name: "Aave V3", Slug: "aave-v3", Address: "ethereum:0x7Fc66500c84A76Ad7e9c93437bFc5Ac33E2DDaE9",
		Category: "Lending", Chains: []string{"Ethereum", "Arbitrum"}, TVL: 12e9},
	{Name: "Curve DEX", Slug: "curve-dex", Address: "0xD533a949740bb3306d119CC777fa900bA034cd52",
		Category: "Dexes", Chains: []string{"Ethereum"}, TVL: 2e9},
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(append([]Option{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)...)
}

func serveListing(hits *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		_ = json.NewEncoder(w).Encode(listing)
	}
}

func TestRiskScore(t *testing.T) {
	tests := []struct {
		name string
		p    *Protocol
		want float64
	}{
		{"unlisted", nil, 80},
		{"large liquid staking on ethereum", &Protocol{TVL: 30e9, Category: "Liquid Staking", Chains: []string{"Ethereum", "Solana"}}, 20},
		{"lending on many chains", &Protocol{TVL: 12e9, Category: "Lending",
			Chains: []string{"Ethereum", "Arbitrum", "Optimism", "Polygon", "Base", "Avalanche"}}, 15},
		{"small yield farm on bsc", &Protocol{TVL: 1e6, Category: "Yield Farming", Chains: []string{"BSC"}}, 75},
		{"mid options", &Protocol{TVL: 50e6, Category: "Options"}, 50},
		{"tiny derivatives everywhere", &Protocol{TVL: 0, Category: "Derivatives",
			Chains: []string{"Arbitrum", "Optimism", "Polygon", "Base", "Avalanche", "Fantom"}}, 85},
		{"blue chip dex", &Protocol{TVL: 20e9, Category: "Dexes", Chains: []string{"Ethereum", "Binance"}}, 5},
		{"mid tier", &Protocol{TVL: 200e6, Category: "CDP"}, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RiskScore(tt.p))
		})
	}
}

func TestAnalyzeInteractions(t *testing.T) {
	c := newTestClient(t, serveListing(nil))

	got := c.AnalyzeInteractions(context.Background(), []string{"Uniswap V3", "aave", "Unknown", "MysteryFi"})

	require.Len(t, got.Protocols, 3)
	assert.Equal(t, 15.0, got.Protocols[0].RiskScore)
	assert.Equal(t, "aave", got.Protocols[1].Name)
	assert.Equal(t, 10.0, got.Protocols[1].RiskScore)
	assert.Equal(t, scoring.ProtocolInfo{Name: "MysteryFi", RiskScore: 85, Category: "Unknown", Chains: []string{}}, got.Protocols[2])

	assert.InDelta(t, 110.0/3, got.AverageRisk, 1e-9)
	assert.Equal(t, 0.0, got.ConcentrationPenalty)
	assert.Equal(t, 1, got.HighRiskProtocols)
	assert.Equal(t, 17e9, got.TotalTVLInteracted)
	assert.Equal(t, []string{"Dexes", "Lending", "Unknown"}, got.Categories)
	assert.Equal(t, scoring.RiskDistribution{Low: 2, VeryHigh: 1}, got.RiskDistribution)
}

func TestAnalyzeInteractions_NoDeFiSentinel(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, serveListing(&hits))

	got := c.AnalyzeInteractions(context.Background(), []string{"No DeFi Interactions"})
	assert.Equal(t, scoring.NoProtocolInteractions(), got)
	assert.Equal(t, int32(0), hits.Load())
}

func TestAnalyzeInteractions_ListingDown(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	got := c.AnalyzeInteractions(context.Background(), []string{"Uniswap V3"})
	require.Len(t, got.Protocols, 1)
	assert.Equal(t, UnknownProtocolRisk, got.Protocols[0].RiskScore)
	assert.Equal(t, 100.0, got.AverageRisk)
}

func TestProtocols_Cached(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, serveListing(&hits))

	for i := 0; i < 3; i++ {
		ps, err := c.Protocols(context.Background())
		require.NoError(t, err)
		assert.Len(t, ps, 3)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestProtocols_StaleOnError(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) > 1 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(listing)
	}, WithCacheTTL(time.Millisecond))

	_, err := c.Protocols(context.Background())
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	ps, err := c.Protocols(context.Background())
	require.NoError(t, err)
	assert.Len(t, ps, 3)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFindProtocol(t *testing.T) {
	c := newTestClient(t, serveListing(nil))

	p, err := c.FindProtocol(context.Background(), "curve dex")
	require.NoError(t, err)
	assert.Equal(t, "curve-dex", p.Slug)

	p, err = c.FindProtocol(context.Background(), "uniswap")
	require.NoError(t, err)
	assert.Equal(t, "Uniswap V3", p.Name)

	_, err = c.FindProtocol(context.Background(), "sushi")
	assert.True(t, IsNotFound(err))
}

func TestContractMap(t *testing.T) {
	c := newTestClient(t, serveListing(nil))

	m, err := c.ContractMap(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"0x1f98431c8ad98523631ae4a59f267346ea31f984": "Uniswap V3",
		"0xd533a949740bb3306d119cc777fa900ba034cd52": "Curve DEX",
	}, m)
}

func TestProtocolDetails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/protocol/aave-v3":
			_, _ = w.Write([]byte(`{"name":"Aave V3","category":"Lending","chains":["Ethereum"],
				"currentChainTvls":{"Ethereum":1.5e10},"tvl":[{"date":1700000000,"totalLiquidityUSD":1.4e10}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	d, err := c.ProtocolDetails(context.Background(), "aave-v3")
	require.NoError(t, err)
	assert.Equal(t, 1.5e10, d.CurrentChainTVLs["Ethereum"])
	require.Len(t, d.TVL, 1)
	assert.Equal(t, int64(1700000000), d.TVL[0].Date)

	_, err = c.ProtocolDetails(context.Background(), "nope")
	assert.True(t, IsNotFound(err))
}
