// Package geckoterminal is a read-only client for the GeckoTerminal public
// API.
package geckoterminal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// SourceName identifies candidates produced by this client.
const SourceName = "geckoterminal"

// networks maps chain names to GeckoTerminal network ids. Unlisted chains
// are passed through unchanged.
var networks = map[string]string{
	"ethereum":  "eth",
	"bsc":       "bsc",
	"polygon":   "polygon_pos",
	"avalanche": "avax",
}

// NetworkID returns the GeckoTerminal id for chain.
func NetworkID(chain string) string {
	chain = strings.ToLower(chain)
	if id, ok := networks[chain]; ok {
		return id
	}
	return chain
}

// Client is the GeckoTerminal REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    domain.RateLimiter
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter makes every request wait for a slot on l.
func WithRateLimiter(l domain.RateLimiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a client for baseURL, e.g.
// "https://api.geckoterminal.com/api/v2".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements discovery.PoolProvider.
func (c *Client) Name() string { return SourceName }

// TrendingPools returns the network's trending pools, which is where the
// top gainers surface.
func (c *Client) TrendingPools(ctx context.Context, chain string) ([]domain.TokenCandidate, error) {
	return c.pools(ctx, chain, "trending_pools")
}

// NewPools returns the most recently created pools on chain.
func (c *Client) NewPools(ctx context.Context, chain string) ([]domain.TokenCandidate, error) {
	return c.pools(ctx, chain, "new_pools")
}

func (c *Client) pools(ctx context.Context, chain, kind string) ([]domain.TokenCandidate, error) {
	params := url.Values{}
	params.Set("include", "base_token")
	path := fmt.Sprintf("/networks/%s/%s?%s", url.PathEscape(NetworkID(chain)), kind, params.Encode())

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("geckoterminal: get %s on %s: %w", kind, chain, err)
	}
	var list APIPoolList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("geckoterminal: decode %s: %w", kind, err)
	}
	return list.ToDomainCandidates(strings.ToLower(chain), c.now().UTC()), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "provider:"+SourceName); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w: %w", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 256 {
			msg = msg[:256]
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstreamUnavailable, resp.StatusCode, msg)
		default:
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
		}
	}
	return body, nil
}
