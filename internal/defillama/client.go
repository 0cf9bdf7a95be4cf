// Package defillama looks up DeFi protocol metadata on DeFiLlama and
// turns protocol names into scoring inputs.
package defillama

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
	"sync"
	"time"

	"github.com/mbd888/safescore/internal/metrics"
	"github.com/mbd888/safescore/internal/retry"
	"github.com/mbd888/safescore/internal/traces"
)

var ErrProtocolNotFound = errors.New("defillama: protocol not found")

const (
	DefaultBaseURL  = "https://api.llama.fi"
	DefaultCacheTTL = time.Hour

	defaultTimeout  = 15 * time.Second
	maxAttempts     = 3
	baseRetryDelay  = 500 * time.Millisecond
	maxResponseSize = 64 << 20
	serviceName     = "defillama"
	userAgent       = "SafeScore/1.0"
)

// Protocol is one entry of the /protocols listing.
type Protocol struct {
	Name     string   `json:"name"`
	Slug     string   `json:"slug"`
	Address  string   `json:"address"`
	Category string   `json:"category"`
	Chains   []string `json:"chains"`
	TVL      float64  `json:"tvl"`
}

// TVLPoint is one day of a protocol's TVL history.
type TVLPoint struct {
	Date              int64   `json:"date"`
	TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
}

// ProtocolDetails is the /protocol/{slug} payload, trimmed to what SafeScore reads.
type ProtocolDetails struct {
	Name             string             `json:"name"`
	Category         string             `json:"category"`
	Chains           []string           `json:"chains"`
	CurrentChainTVLs map[string]float64 `json:"currentChainTvls"`
	TVL              []TVLPoint         `json:"tvl"`
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("defillama: HTTP %d on %s", e.StatusCode, e.Path)
}

// Client reads the DeFiLlama public API. The protocol listing is cached
// for the configured TTL and the last good copy is served when a
// refresh fails.
type Client struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	logger  *slog.Logger

	mu        sync.RWMutex
	protocols []Protocol
	fetchedAt time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCacheTTL sets how long the protocol listing is reused.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.ttl = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a DeFiLlama client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		ttl:     DefaultCacheTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Protocols returns the full protocol listing.
func (c *Client) Protocols(ctx context.Context) ([]Protocol, error) {
	c.mu.RLock()
	cached, fetchedAt := c.protocols, c.fetchedAt
	c.mu.RUnlock()

	if cached != nil && time.Since(fetchedAt) < c.ttl {
		return cached, nil
	}

	var fresh []Protocol
	if err := c.get(ctx, "/protocols", &fresh); err != nil {
		if cached != nil {
			c.logger.Warn("protocol refresh failed, serving stale list",
				"age", time.Since(fetchedAt).Round(time.Second), "error", err)
			return cached, nil
		}
		return nil, fmt.Errorf("failed to fetch protocols: %w", err)
	}
	if fresh == nil {
		fresh = []Protocol{}
	}

	c.mu.Lock()
	c.protocols = fresh
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return fresh, nil
}

// FindProtocol matches name case-insensitively, exact names first and
// then substrings, in listing order.
func (c *Client) FindProtocol(ctx context.Context, name string) (*Protocol, error) {
	protocols, err := c.Protocols(ctx)
	if err != nil {
		return nil, err
	}
	if p := matchProtocol(protocols, name); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrProtocolNotFound, name)
}

func matchProtocol(protocols []Protocol, name string) *Protocol {
	want := strings.ToLower(name)
	for i := range protocols {
		if strings.ToLower(protocols[i].Name) == want {
			p := protocols[i]
			return &p
		}
	}
	for i := range protocols {
		if strings.Contains(strings.ToLower(protocols[i].Name), want) {
			p := protocols[i]
			return &p
		}
	}
	return nil
}

// ProtocolDetails fetches TVL history and per-chain TVL for slug.
func (c *Client) ProtocolDetails(ctx context.Context, slug string) (*ProtocolDetails, error) {
	var d ProtocolDetails
	if err := c.get(ctx, "/protocol/"+url.PathEscape(slug), &d); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrProtocolNotFound, slug)
		}
		return nil, fmt.Errorf("failed to fetch protocol %s: %w", slug, err)
	}
	return &d, nil
}

// ContractMap maps lowercase 0x contract addresses to protocol names.
func (c *Client) ContractMap(ctx context.Context) (map[string]string, error) {
	protocols, err := c.Protocols(ctx)
	if err != nil {
		return nil, err
	}
	return contractMap(protocols), nil
}

func contractMap(protocols []Protocol) map[string]string {
	m := make(map[string]string)
	for _, p := range protocols {
		if !strings.HasPrefix(p.Address, "0x") {
			continue
		}
		name := p.Name
		if name == "" {
			name = "Unknown"
		}
		m[strings.ToLower(p.Address)] = name
	}
	return m
}

// Ping checks that the API answers, without touching the cache.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/protocols", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return &APIError{StatusCode: resp.StatusCode, Path: "/protocols"}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	ctx, span := traces.StartSpan(ctx, "defillama.get", traces.Upstream(serviceName))
	defer span.End()

	err := retry.DoNotify(ctx, maxAttempts, baseRetryDelay, func() error {
		start := time.Now()
		err := c.fetch(ctx, path, out)
		metrics.ObserveUpstream(serviceName, start, err)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error, wait time.Duration) {
		c.logger.Warn("defillama request failed, retrying",
			"path", path, "attempt", attempt, "wait", wait, "error", err)
	})
	traces.Fail(span, err)
	return err
}

func (c *Client) fetch(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Path: path}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
