package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mbd888/safescore/internal/defillama"
	"github.com/mbd888/safescore/internal/idgen"
	"github.com/mbd888/safescore/internal/retry"
	"github.com/mbd888/safescore/internal/risk"
)

const (
	maxResponseBytes = 8 << 20
	readAttempts     = 3
	readBackoff      = 200 * time.Millisecond
)

// Config holds the configuration for connecting to a SafeScore API.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token for deployments behind a gateway
}

// APIError is a non-2xx answer from the SafeScore API.
type APIError struct {
	Status  int
	Code    string // machine-readable "error" field, when present
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// SafeScoreClient calls the SafeScore REST API and decodes its answers
// into the service's own types.
type SafeScoreClient struct {
	base       string
	apiKey     string
	httpClient *http.Client
}

// NewSafeScoreClient creates a new API client. Batches are paced
// server-side, so the timeout is generous.
func NewSafeScoreClient(cfg Config) *SafeScoreClient {
	return &SafeScoreClient{
		base:       strings.TrimRight(cfg.APIURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// HistoryResponse is the body of the assessment history endpoint.
type HistoryResponse struct {
	Address     string                   `json:"address"`
	Assessments []*risk.WalletAssessment `json:"assessments"`
	NextCursor  string                   `json:"nextCursor"`
	HasMore     bool                     `json:"hasMore"`
}

// AssessWallet scores a wallet, bypassing the cache when refresh is set.
func (c *SafeScoreClient) AssessWallet(ctx context.Context, address string, refresh bool) (*risk.WalletAssessment, error) {
	q := url.Values{}
	if refresh {
		q.Set("refresh", "true")
	}
	var out risk.WalletAssessment
	if err := c.get(ctx, walletPath(address, "risk"), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReport runs a fresh assessment and returns it with the data behind it.
func (c *SafeScoreClient) GetReport(ctx context.Context, address string) (*risk.ComprehensiveReport, error) {
	var out risk.ComprehensiveReport
	if err := c.get(ctx, walletPath(address, "report"), nil, &out); err != nil {
		return nil, err
	}
	if out.WalletAssessment == nil {
		return nil, errors.New("report did not include an assessment")
	}
	return &out, nil
}

// GetHistory lists stored assessments for a wallet, newest first.
func (c *SafeScoreClient) GetHistory(ctx context.Context, address string, limit int) (*HistoryResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out HistoryResponse
	if err := c.get(ctx, walletPath(address, "assessments"), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// BatchAssess scores several wallets in one paced run. It is not retried:
// a repeated batch would store every assessment twice.
func (c *SafeScoreClient) BatchAssess(ctx context.Context, addresses []string) (*risk.Batch, error) {
	var out risk.Batch
	err := c.do(ctx, http.MethodPost, "/v1/wallets/batch", nil, risk.BatchRequest{Addresses: addresses}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProtocol rates a DeFi protocol by name.
func (c *SafeScoreClient) GetProtocol(ctx context.Context, name string, details bool) (*defillama.ProtocolReport, error) {
	q := url.Values{"details": {strconv.FormatBool(details)}}
	var out defillama.ProtocolReport
	if err := c.get(ctx, "/v1/protocols/"+url.PathEscape(name), q, &out); err != nil {
		return nil, err
	}
	if out.Protocol == nil {
		return nil, errors.New("protocol report was empty")
	}
	return &out, nil
}

func walletPath(address, leaf string) string {
	return "/v1/wallets/" + url.PathEscape(address) + "/" + leaf
}

// get retries transport failures and temporary API errors.
func (c *SafeScoreClient) get(ctx context.Context, path string, q url.Values, out any) error {
	return retry.Do(ctx, readAttempts, readBackoff, func() error {
		err := c.do(ctx, http.MethodGet, path, q, nil, out)
		var apiErr *APIError
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return retry.Permanent(err)
		case errors.As(err, &apiErr) && !apiErr.Temporary():
			return retry.Permanent(err)
		}
		return err
	})
}

func (c *SafeScoreClient) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	target := c.base + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", idgen.WithPrefix("mcp_"))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var body struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &body) == nil && body.Message != "" {
			apiErr.Code, apiErr.Message = body.Error, body.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
