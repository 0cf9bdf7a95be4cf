package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/safescore/internal/config"
	"github.com/mbd888/safescore/internal/etherscan"
	"github.com/mbd888/safescore/internal/health"
	"github.com/mbd888/safescore/internal/risk"
	"github.com/mbd888/safescore/internal/scoring"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testWallet = "0x1111111111111111111111111111111111111111"

// stubExplorer returns one old transfer for every wallet
type stubExplorer struct{}

func (stubExplorer) Transactions(context.Context, string) ([]etherscan.Transaction, error) {
	ts := time.Now().Add(-400 * 24 * time.Hour).Unix()
	return []etherscan.Transaction{{
		TimeStamp:     strconv.FormatInt(ts, 10),
		From:          testWallet,
		To:            "0x2222222222222222222222222222222222222222",
		Value:         "1000000000000000000",
		GasUsed:       "21000",
		GasPrice:      "20000000000",
		Input:         "0x",
		IsError:       "0",
		ReceiptStatus: "1",
	}}, nil
}

func (stubExplorer) Balances(context.Context, string) (scoring.BalanceData, error) {
	return scoring.BalanceData{ETHBalance: 1.5}, nil
}

type stubProtocols struct{}

func (stubProtocols) ContractMap(context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (stubProtocols) AnalyzeInteractions(context.Context, []string) scoring.ProtocolAnalysis {
	return scoring.NoProtocolInteractions()
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:      "0",
		Env:       "development",
		LogLevel:  "error",
		LogFormat: "text",
		CacheTTL:  time.Minute,
		BatchRate: 1000,
		Scoring:   scoring.DefaultConfig(),
	}
}

// newTestServer creates a server with stubbed upstreams
func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	opts = append([]Option{
		WithVersion("test"),
		WithShutdownDelay(0),
		WithFetchers(risk.Fetchers{Transactions: stubExplorer{}, Protocols: stubProtocols{}}),
	}, opts...)
	s, err := New(testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s
}

func serve(s *Server, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func failing(msg string) health.PingFunc {
	return health.PingFunc(func(context.Context) error { return errors.New(msg) })
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*Server)
		wantCode   int
		wantStatus string
	}{
		{"all good", func(*Server) {}, http.StatusOK, "healthy"},
		{"optional upstream down", func(s *Server) {
			s.health.RegisterOptional("defillama", health.FromPinger("defillama", failing("502 bad gateway")))
		}, http.StatusOK, "degraded"},
		{"database down", func(s *Server) {
			s.health.Register("database", health.FromPinger("database", failing("connection refused")))
		}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			tt.setup(s)

			w := serve(s, http.MethodGet, "/health", "")
			assert.Equal(t, tt.wantCode, w.Code)

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, "test", resp.Version)
		})
	}
}

func TestProbes(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/health/ready", "").Code,
		"not ready before Run")

	s.ready.Store(true)
	assert.Equal(t, http.StatusOK, serve(s, http.MethodGet, "/health/ready", "").Code)

	s.healthy.Store(false)
	assert.Equal(t, http.StatusServiceUnavailable, serve(s, http.MethodGet, "/health/live", "").Code)
}

// ---------------------------------------------------------------------------
// Route and middleware tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := make(map[string]bool)
	for _, r := range s.router.Routes() {
		routes[r.Method+":"+r.Path] = true
	}
	for _, want := range []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"GET:/api",
		"GET:/v1/wallets/:address/risk",
		"GET:/v1/wallets/:address/report",
		"GET:/v1/wallets/:address/assessments",
		"GET:/v1/wallets/:address/assessments/latest",
		"POST:/v1/wallets/batch",
		"POST:/v1/score",
		"GET:/v1/realtime/stats",
	} {
		assert.True(t, routes[want], "route %s not registered", want)
	}
	// Injected fetchers mean no DeFiLlama client to serve lookups
	assert.False(t, routes["GET:/v1/protocols/:name"])
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	s.router.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get("X-Request-ID"))

	w = serve(s, http.MethodGet, "/api", "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(serve(s, http.MethodGet, "/api", "").Body.Bytes(), &resp))
	assert.Equal(t, "SafeScore", resp["name"])
	assert.Equal(t, "memory", resp["storage"])
	assert.Equal(t, false, resp["llmEnabled"])
	assert.Len(t, resp["endpoints"], len(endpoints))
}

func TestInvalidAddressRejected(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, http.MethodGet, "/v1/wallets/0x123/risk", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_address")

	assert.Equal(t, http.StatusNotFound, serve(s, http.MethodGet, "/v1/nonexistent", "").Code)
}

func TestAllowedOrigins(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, []string{"*"}, s.allowedOrigins(), "development default")

	s.cfg.Env = "production"
	assert.Empty(t, s.allowedOrigins())

	s.cfg.CORSOrigins = []string{"https://dash.safescore.io"}
	assert.Equal(t, []string{"https://dash.safescore.io"}, s.allowedOrigins())
}

func TestMaskDSN(t *testing.T) {
	masked := maskDSN("postgres://safescore:hunter2@db:5432/safescore")
	assert.NotContains(t, masked, "hunter2")
	assert.Contains(t, masked, "@db:5432/safescore")
	assert.Equal(t, "***", maskDSN("postgres://%zz"))
}

// ---------------------------------------------------------------------------
// Assessment flow
// ---------------------------------------------------------------------------

func TestAssessWallet_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	w := serve(s, http.MethodGet, "/v1/wallets/"+strings.ToUpper(testWallet[2:])+"/risk", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var wa risk.WalletAssessment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &wa))
	assert.Equal(t, testWallet, wa.Address)
	require.NotNil(t, wa.Assessment)
	assert.Nil(t, wa.Assessment.DetailedAnalysis.LLM, "rule-only assessment")

	w = serve(s, http.MethodGet, "/v1/wallets/"+testWallet+"/assessments/latest", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRealtimeReceivesAssessments(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.realtimeHub.Run(ctx)

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	require.Eventually(t, func() bool { return s.realtimeHub.Stats()["connectedClients"].(int) == 1 },
		time.Second, 10*time.Millisecond)

	body := `{"addresses":["` + testWallet + `"]}`
	resp, err := http.Post(srv.URL+"/v1/wallets/batch", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	seen := map[string]bool{}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for !(seen["wallet_assessed"] && seen["batch_completed"]) {
		var ev struct {
			Type string `json:"type"`
		}
		require.NoError(t, conn.ReadJSON(&ev), "seen so far: %v", seen)
		seen[ev.Type] = true
	}
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, s.ready.Load, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, s.ready.Load())
}

func TestRun_ListenFailure(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Port = "-1"

	err := s.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
