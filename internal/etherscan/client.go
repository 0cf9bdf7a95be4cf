// Package etherscan reads account history from the Etherscan API and
// aggregates it into scoring inputs.
package etherscan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/safescore/internal/metrics"
	"github.com/mbd888/safescore/internal/retry"
	"github.com/mbd888/safescore/internal/traces"
)

var (
	ErrNoAPIKey       = errors.New("etherscan: API key required")
	ErrNoTransactions = errors.New("etherscan: no transactions found")
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

const (
	DefaultBaseURL = "https://api.etherscan.io/api"

	// PageSize is the number of rows requested per list call.
	PageSize = 200

	defaultTimeout  = 15 * time.Second
	maxAttempts     = 3
	baseRetryDelay  = 500 * time.Millisecond
	maxResponseSize = 8 << 20
	serviceName     = "etherscan"
)

// Client talks to the Etherscan account module.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Etherscan-compatible API.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default 15s-timeout HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates an Etherscan client.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Transactions returns up to PageSize normal transactions, newest first.
// An account without history yields ErrNoTransactions.
func (c *Client) Transactions(ctx context.Context, address string) ([]Transaction, error) {
	params := url.Values{
		"action":     {"txlist"},
		"address":    {address},
		"startblock": {"0"},
		"endblock":   {"99999999"},
		"page":       {"1"},
		"offset":     {fmt.Sprint(PageSize)},
		"sort":       {"desc"},
	}
	var txs []Transaction
	if err := c.list(ctx, params, &txs); err != nil {
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNoTransactions
	}
	return txs, nil
}

// TokenTransfers returns up to PageSize ERC-20 transfers, newest first.
// An account without transfers yields an empty slice.
func (c *Client) TokenTransfers(ctx context.Context, address string) ([]TokenTransfer, error) {
	params := url.Values{
		"action":  {"tokentx"},
		"address": {address},
		"page":    {"1"},
		"offset":  {fmt.Sprint(PageSize)},
		"sort":    {"desc"},
	}
	var transfers []TokenTransfer
	if err := c.list(ctx, params, &transfers); err != nil {
		if errors.Is(err, ErrNoTransactions) {
			return []TokenTransfer{}, nil
		}
		return nil, err
	}
	return transfers, nil
}

// Balance returns the latest ETH balance.
func (c *Client) Balance(ctx context.Context, address string) (float64, error) {
	params := url.Values{
		"action":  {"balance"},
		"address": {address},
		"tag":     {"latest"},
	}
	env, err := c.call(ctx, params)
	if err != nil {
		return 0, err
	}
	var wei string
	if err := json.Unmarshal(env.Result, &wei); err != nil {
		return 0, fmt.Errorf("failed to decode balance: %w", err)
	}
	d, err := decimal.NewFromString(wei)
	if err != nil {
		return 0, fmt.Errorf("failed to parse balance %q: %w", wei, err)
	}
	return d.Shift(-18).InexactFloat64(), nil
}

// Ping checks reachability and the API key with a zero-address balance lookup.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Balance(ctx, zeroAddress)
	return err
}

// list decodes a list endpoint. "No transactions found" maps to
// ErrNoTransactions.
func (c *Client) list(ctx context.Context, params url.Values, out any) error {
	env, err := c.call(ctx, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", params.Get("action"), err)
	}
	return nil
}

// call performs one logical request with retries and returns an OK envelope.
func (c *Client) call(ctx context.Context, params url.Values) (*envelope, error) {
	ctx, span := traces.StartSpan(ctx, "etherscan."+params.Get("action"),
		traces.Upstream(serviceName), traces.WalletAddress(params.Get("address")))
	defer span.End()

	params.Set("module", "account")
	params.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()

	var env *envelope
	err := retry.DoNotify(ctx, maxAttempts, baseRetryDelay, func() error {
		start := time.Now()
		e, err := c.do(ctx, endpoint)
		metrics.ObserveUpstream(serviceName, start, err)
		if err != nil {
			var apiErr *APIError
			if errors.Is(err, ErrNoTransactions) || (errors.As(err, &apiErr) && !apiErr.Temporary()) {
				return retry.Permanent(err)
			}
			return err
		}
		env = e
		return nil
	}, func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("etherscan request failed, retrying",
			"action", params.Get("action"), "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		if !errors.Is(err, ErrNoTransactions) {
			traces.Fail(span, err)
		}
		return nil, err
	}
	return env, nil
}

func (c *Client) do(ctx context.Context, endpoint string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Status == "1" {
		return &env, nil
	}

	if strings.HasPrefix(strings.ToLower(env.Message), "no transactions found") {
		return nil, ErrNoTransactions
	}
	msg := env.Message
	var detail string
	if json.Unmarshal(env.Result, &detail) == nil && detail != "" {
		msg = msg + ": " + detail
	}
	return nil, &APIError{Message: msg}
}

func isRateLimitMessage(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "rate limit")
}
