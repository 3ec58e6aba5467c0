// Package dexscreener is a read-only client for the DexScreener public API.
package dexscreener

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
const SourceName = "dexscreener"

// maxTokensPerRequest is the address batch limit of /tokens/v1.
const maxTokensPerRequest = 30

// Client is the DexScreener REST client.
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

// NewClient creates a client for baseURL, e.g. "https://api.dexscreener.com".
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

// Name implements discovery.BoostProvider.
func (c *Client) Name() string { return SourceName }

// BoostedTokens resolves the latest boosted tokens into market snapshots,
// keeping the most liquid pair per token.
func (c *Client) BoostedTokens(ctx context.Context) ([]domain.TokenCandidate, error) {
	body, err := c.doGet(ctx, "/token-boosts/latest/v1")
	if err != nil {
		return nil, fmt.Errorf("dexscreener: get boosts: %w", err)
	}
	var boosts []APIBoost
	if err := json.Unmarshal(body, &boosts); err != nil {
		return nil, fmt.Errorf("dexscreener: decode boosts: %w", err)
	}

	byChain := make(map[string][]string)
	seen := make(map[string]struct{})
	for _, b := range boosts {
		if b.ChainID == "" || b.TokenAddress == "" {
			continue
		}
		key := b.ChainID + ":" + strings.ToLower(b.TokenAddress)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		byChain[b.ChainID] = append(byChain[b.ChainID], b.TokenAddress)
	}

	var out []domain.TokenCandidate
	for chain, addrs := range byChain {
		for start := 0; start < len(addrs); start += maxTokensPerRequest {
			end := min(start+maxTokensPerRequest, len(addrs))
			pairs, err := c.tokens(ctx, chain, addrs[start:end])
			if err != nil {
				return out, err
			}
			out = append(out, bestPerToken(pairs, c.now().UTC())...)
		}
	}
	return out, nil
}

// TokenPairs returns one candidate per pair trading address. When chain is
// empty every chain is searched.
func (c *Client) TokenPairs(ctx context.Context, chain, address string) ([]domain.TokenCandidate, error) {
	var pairs []APIPair
	if chain == "" {
		body, err := c.doGet(ctx, "/latest/dex/tokens/"+url.PathEscape(address))
		if err != nil {
			return nil, fmt.Errorf("dexscreener: get token %s: %w", address, err)
		}
		var res APISearchResult
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("dexscreener: decode token %s: %w", address, err)
		}
		pairs = res.Pairs
	} else {
		body, err := c.doGet(ctx, fmt.Sprintf("/token-pairs/v1/%s/%s", url.PathEscape(chain), url.PathEscape(address)))
		if err != nil {
			return nil, fmt.Errorf("dexscreener: get token pairs %s/%s: %w", chain, address, err)
		}
		if err := json.Unmarshal(body, &pairs); err != nil {
			return nil, fmt.Errorf("dexscreener: decode token pairs: %w", err)
		}
	}

	now := c.now().UTC()
	out := make([]domain.TokenCandidate, 0, len(pairs))
	for _, p := range pairs {
		if !strings.EqualFold(p.BaseToken.Address, address) {
			continue
		}
		out = append(out, p.ToDomainCandidate(now))
	}
	return out, nil
}

func (c *Client) tokens(ctx context.Context, chain string, addrs []string) ([]APIPair, error) {
	escaped := make([]string, len(addrs))
	for i, a := range addrs {
		escaped[i] = url.PathEscape(a)
	}
	body, err := c.doGet(ctx, fmt.Sprintf("/tokens/v1/%s/%s", url.PathEscape(chain), strings.Join(escaped, ",")))
	if err != nil {
		return nil, fmt.Errorf("dexscreener: get tokens on %s: %w", chain, err)
	}
	var pairs []APIPair
	if err := json.Unmarshal(body, &pairs); err != nil {
		return nil, fmt.Errorf("dexscreener: decode tokens: %w", err)
	}
	return pairs, nil
}

// bestPerToken keeps the most liquid pair for each base token.
func bestPerToken(pairs []APIPair, now time.Time) []domain.TokenCandidate {
	idx := make(map[string]int)
	var out []domain.TokenCandidate
	for _, p := range pairs {
		cand := p.ToDomainCandidate(now)
		key := cand.Chain + ":" + strings.ToLower(cand.Address)
		if i, ok := idx[key]; ok {
			if cand.Liquidity > out[i].Liquidity {
				out[i] = cand
			}
			continue
		}
		idx[key] = len(out)
		out = append(out, cand)
	}
	return out
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
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstreamUnavailable, statusCode, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
