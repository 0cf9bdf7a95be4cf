package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/safescore/internal/defillama"
	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/scoring"
)

const (
	walletA = "0xd8da6bf26964af9d7eed9e03e53415d37aa96045"
	walletB = "0x1111111111111111111111111111111111111111"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	h := NewHandlers(NewSafeScoreClient(Config{APIURL: ts.URL}))
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sampleAssessment(address string, score float64) *risk.WalletAssessment {
	level := scoring.Level(score)
	return &risk.WalletAssessment{
		ID:      "wra_test",
		Address: address,
		Assessment: &scoring.Assessment{
			OverallRiskScore: score,
			RiskLevel:        level,
			RiskDescription:  "Moderate risk wallet",
			ComponentScores:  map[string]float64{"transaction_patterns": 40, "balance_analysis": 20},
			RiskFactors:      []string{"Low transaction success rate"},
			Recommendations:  []string{"Monitor transaction patterns"},
		},
		Summary: risk.Summary{
			TotalTransactions: 120,
			SuccessRate:       0.95,
			ETHBalance:        2.5,
			Protocols:         []string{"Uniswap"},
		},
		AssessedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_Headers(t *testing.T) {
	var gotAuth, gotRequestID string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewSafeScoreClient(Config{APIURL: ts.URL, APIKey: "secret123"})
	_, err := client.AssessWallet(context.Background(), walletA, false)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret123", gotAuth)
	assert.True(t, strings.HasPrefix(gotRequestID, "mcp_"), "request id %q", gotRequestID)
}

func TestClient_DoRequest_NoKeyNoAuthHeader(t *testing.T) {
	var sawAuth bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawAuth = r.Header["Authorization"]
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	_, err := NewSafeScoreClient(Config{APIURL: ts.URL}).GetHistory(context.Background(), walletA, 0)
	require.NoError(t, err)
	assert.False(t, sawAuth)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "invalid_address",
			"message": "Address must be 0x followed by 40 hex characters",
		})
	}))
	defer ts.Close()

	_, err := NewSafeScoreClient(Config{APIURL: ts.URL}).AssessWallet(context.Background(), walletA, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API error (400)")
	assert.Contains(t, err.Error(), "40 hex characters")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_address", apiErr.Code)
	assert.False(t, apiErr.Temporary())
}

func TestClient_RetriesTemporaryErrorsOnReads(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "upstream_unavailable", "message": "try later"})
			return
		}
		writeJSON(w, http.StatusOK, sampleAssessment(walletA, 30))
	}))
	defer ts.Close()

	wa, err := NewSafeScoreClient(Config{APIURL: ts.URL}).AssessWallet(context.Background(), walletA, false)
	require.NoError(t, err)
	assert.Equal(t, 30.0, wa.Score())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_DoesNotRetryClientErrorsOrBatches(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method == http.MethodPost {
			writeJSON(w, http.StatusBadGateway, map[string]any{"error": "upstream_error", "message": "boom"})
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "protocol_not_found", "message": "nope"})
	}))
	defer ts.Close()

	c := NewSafeScoreClient(Config{APIURL: ts.URL})
	_, err := c.GetProtocol(context.Background(), "nothing", false)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.BatchAssess(context.Background(), []string{walletA})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	_, err := NewSafeScoreClient(Config{APIURL: ts.URL}).GetProtocol(context.Background(), "aave", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	_, err := NewSafeScoreClient(Config{APIURL: "http://127.0.0.1:1"}).AssessWallet(context.Background(), walletA, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSafeScoreClient(Config{APIURL: ts.URL}).AssessWallet(ctx, walletA, false)
	require.Error(t, err)
}

func TestClient_Paths(t *testing.T) {
	var got []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	c := NewSafeScoreClient(Config{APIURL: ts.URL})
	ctx := context.Background()
	_, _ = c.AssessWallet(ctx, walletA, true)
	_, _ = c.AssessWallet(ctx, walletA, false)
	_, _ = c.GetHistory(ctx, walletA, 5)
	_, _ = c.GetProtocol(ctx, "aave v3", true)

	assert.Equal(t, []string{
		"GET /v1/wallets/" + walletA + "/risk?refresh=true",
		"GET /v1/wallets/" + walletA + "/risk?",
		"GET /v1/wallets/" + walletA + "/assessments?limit=5",
		"GET /v1/protocols/aave v3?details=true",
	}, got)
}

func TestClient_BatchAssess_RequestBody(t *testing.T) {
	var body map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/wallets/batch", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	_, err := NewSafeScoreClient(Config{APIURL: ts.URL}).BatchAssess(context.Background(), []string{walletA, walletB})
	require.NoError(t, err)
	assert.Equal(t, []string{walletA, walletB}, body["addresses"])
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleAssessWallet(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/"+walletA+"/risk", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		writeJSON(w, http.StatusOK, sampleAssessment(walletA, 42.5))
	}))
	defer cleanup()

	result, err := h.HandleAssessWallet(context.Background(), makeRequest(map[string]any{
		"address": strings.ToUpper(walletA[2:]),
		"refresh": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045")
	assert.Contains(t, text, "Risk Score: 42.5 / 100 (MEDIUM)")
	assert.Contains(t, text, "Transactions: 120 (95% successful)")
	assert.Contains(t, text, "Protocols: Uniswap")
	assert.Contains(t, text, "balance_analysis")
	assert.Contains(t, text, "- Low transaction success rate")
	assert.Contains(t, text, "- Monitor transaction patterns")
	assert.NotContains(t, text, "AI Analysis")
}

func TestHandleAssessWallet_ShowsLLMReasoning(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wa := sampleAssessment(walletA, 30)
		score := 30.0
		wa.Assessment.DetailedAnalysis.LLM = &scoring.OracleResult{Score: &score, Reasoning: "Long-lived wallet with steady usage"}
		wa.Cached = true
		writeJSON(w, http.StatusOK, wa)
	}))
	defer cleanup()

	result, err := h.HandleAssessWallet(context.Background(), makeRequest(map[string]any{"address": walletA}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "AI Analysis:\n  Long-lived wallet with steady usage")
	assert.Contains(t, text, "served from cache")
}

func TestHandleAssessWallet_InvalidAddress(t *testing.T) {
	h := NewHandlers(NewSafeScoreClient(Config{APIURL: "http://127.0.0.1:1"}))

	for _, addr := range []string{"", "0x123", "not-an-address"} {
		result, err := h.HandleAssessWallet(context.Background(), makeRequest(map[string]any{"address": addr}))
		require.NoError(t, err)
		assert.True(t, result.IsError, "address %q should be rejected", addr)
		assert.Contains(t, resultText(t, result), "address")
	}
}

func TestHandleAssessWallet_APIError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":   "upstream_unavailable",
			"message": "Blockchain data is temporarily unavailable",
		})
	}))
	defer cleanup()

	result, err := h.HandleAssessWallet(context.Background(), makeRequest(map[string]any{"address": walletA}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Blockchain data is temporarily unavailable")
}

func TestHandleGetWalletReport(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/wallets/"+walletA+"/report", r.URL.Path)
		writeJSON(w, http.StatusOK, risk.ComprehensiveReport{
			WalletAssessment: sampleAssessment(walletA, 70),
			Transactions: risk.TransactionSummary{
				RecentActivity:       4,
				ContractInteractions: 9,
				UniqueAddresses:      12,
				TotalValueIn:         3,
				TotalValueOut:        1.25,
			},
			Duration: 1.5,
		})
	}))
	defer cleanup()

	result, err := h.HandleGetWalletReport(context.Background(), makeRequest(map[string]any{"address": walletA}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, "Comprehensive Report")
	assert.Contains(t, text, "(HIGH)")
	assert.Contains(t, text, "Contract interactions: 9")
	assert.Contains(t, text, "Value in/out: 3.0000 / 1.2500 ETH")
	assert.Contains(t, text, "Analysis took 1.50s")
}

func TestHandleGetWalletReport_EmptyBody(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer cleanup()

	result, err := h.HandleGetWalletReport(context.Background(), makeRequest(map[string]any{"address": walletA}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleGetAssessmentHistory(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]any{
			"address":     walletA,
			"assessments": []*risk.WalletAssessment{sampleAssessment(walletA, 65), sampleAssessment(walletA, 35)},
			"count":       2,
		})
	}))
	defer cleanup()

	result, err := h.HandleGetAssessmentHistory(context.Background(), makeRequest(map[string]any{
		"address": walletA,
		"limit":   float64(3),
	}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "2 assessment(s)")
	assert.Contains(t, text, "1. 2026-01-02 03:04  score 65.0  HIGH")
	assert.Contains(t, text, "2. 2026-01-02 03:04  score 35.0  LOW")
}

func TestHandleGetAssessmentHistory_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"address": walletA, "assessments": []any{}, "count": 0})
	}))
	defer cleanup()

	result, err := h.HandleGetAssessmentHistory(context.Background(), makeRequest(map[string]any{"address": walletA}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No stored assessments")
}

func TestHandleGetAssessmentHistory_BadLimit(t *testing.T) {
	h := NewHandlers(NewSafeScoreClient(Config{APIURL: "http://127.0.0.1:1"}))

	result, err := h.HandleGetAssessmentHistory(context.Background(), makeRequest(map[string]any{
		"address": walletA,
		"limit":   float64(500),
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "limit must be between 1 and 100")
}

func TestHandleBatchAssess(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, []string{walletA, walletB}, body["addresses"])

		writeJSON(w, http.StatusOK, risk.Batch{
			ID: "batch_1",
			Results: []risk.BatchResult{
				{Address: walletA, Assessment: sampleAssessment(walletA, 82)},
				{Address: walletB, Error: "Blockchain data is temporarily unavailable"},
			},
			Succeeded: 1,
			Failed:    1,
		})
	}))
	defer cleanup()

	result, err := h.HandleBatchAssess(context.Background(), makeRequest(map[string]any{
		"addresses": []any{strings.ToUpper(walletA[2:]), walletB},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, "Batch batch_1: 1 succeeded, 1 failed")
	assert.Contains(t, text, "82.0  VERY_HIGH")
	assert.Contains(t, text, "ERROR: Blockchain data is temporarily unavailable")
}

func TestHandleBatchAssess_CommaSeparated(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Len(t, body["addresses"], 2)
		writeJSON(w, http.StatusOK, risk.Batch{ID: "batch_2"})
	}))
	defer cleanup()

	result, err := h.HandleBatchAssess(context.Background(), makeRequest(map[string]any{
		"addresses": walletA + ", " + walletB,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

func TestHandleBatchAssess_Validation(t *testing.T) {
	h := NewHandlers(NewSafeScoreClient(Config{APIURL: "http://127.0.0.1:1"}))

	tooMany := make([]any, risk.MaxBatchSize+1)
	for i := range tooMany {
		tooMany[i] = walletA
	}

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing", nil, "at least one address"},
		{"bad entry", map[string]any{"addresses": []any{walletA, "0xbad"}}, "addresses[1]"},
		{"too many", map[string]any{"addresses": tooMany}, "at most 25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleBatchAssess(context.Background(), makeRequest(tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, resultText(t, result), tt.want)
		})
	}
}

func TestHandleGetProtocolRisk(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/protocols/Uniswap", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("details"))
		writeJSON(w, http.StatusOK, defillama.ProtocolReport{
			Protocol: &defillama.Protocol{
				Name:     "Uniswap",
				Category: "Dexes",
				Chains:   []string{"Ethereum", "Arbitrum"},
				TVL:      4200000000,
			},
			RiskScore: 20,
			RiskLevel: scoring.LevelVeryLow,
		})
	}))
	defer cleanup()

	result, err := h.HandleGetProtocolRisk(context.Background(), makeRequest(map[string]any{"name": " Uniswap "}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	text := resultText(t, result)
	assert.Contains(t, text, "Protocol: Uniswap")
	assert.Contains(t, text, "Category: Dexes")
	assert.Contains(t, text, "TVL: $4200000000")
	assert.Contains(t, text, "Chains: Ethereum, Arbitrum")
	assert.Contains(t, text, "Risk Score: 20.0 / 100 (VERY_LOW)")
}

func TestHandleGetProtocolRisk_NotFound(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "not_found",
			"message": `No DeFiLlama protocol matches "nope"`,
		})
	}))
	defer cleanup()

	result, err := h.HandleGetProtocolRisk(context.Background(), makeRequest(map[string]any{"name": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No DeFiLlama protocol matches")
}

func TestHandleGetProtocolRisk_MissingName(t *testing.T) {
	h := NewHandlers(NewSafeScoreClient(Config{APIURL: "http://127.0.0.1:1"}))

	result, err := h.HandleGetProtocolRisk(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "name is required", resultText(t, result))
}

// ============================================================
// Edge cases: handler never returns Go error
// ============================================================

func TestHandlers_NeverReturnGoError(t *testing.T) {
	// Failures are encoded in result.IsError, not in the Go error.
	h := NewHandlers(NewSafeScoreClient(Config{APIURL: "http://127.0.0.1:1"}))
	ctx := context.Background()
	addr := map[string]any{"address": walletA}

	tests := []struct {
		name string
		fn   func() (*mcp.CallToolResult, error)
	}{
		{"AssessWallet", func() (*mcp.CallToolResult, error) { return h.HandleAssessWallet(ctx, makeRequest(addr)) }},
		{"GetWalletReport", func() (*mcp.CallToolResult, error) { return h.HandleGetWalletReport(ctx, makeRequest(addr)) }},
		{"GetAssessmentHistory", func() (*mcp.CallToolResult, error) { return h.HandleGetAssessmentHistory(ctx, makeRequest(addr)) }},
		{"BatchAssess", func() (*mcp.CallToolResult, error) {
			return h.HandleBatchAssess(ctx, makeRequest(map[string]any{"addresses": []any{walletA}}))
		}},
		{"GetProtocolRisk", func() (*mcp.CallToolResult, error) {
			return h.HandleGetProtocolRisk(ctx, makeRequest(map[string]any{"name": "aave"}))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tt.fn()
			assert.NoError(t, err, "handler should never return Go error")
			require.NotNil(t, result)
			assert.True(t, result.IsError, "unreachable server should produce isError result")
		})
	}
}

// ============================================================
// Server wiring test
// ============================================================

func TestNewMCPServer_ListsTools(t *testing.T) {
	s := NewMCPServer(Config{APIURL: "http://localhost:8080"}, "test")
	require.NotNil(t, s)

	resp := s.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{
		"assess_wallet_risk",
		"get_wallet_report",
		"get_assessment_history",
		"batch_assess_wallets",
		"get_protocol_risk",
	} {
		assert.Contains(t, string(data), `"`+name+`"`)
	}
}
