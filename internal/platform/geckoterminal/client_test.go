package geckoterminal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gniumg-source/clawfi-g-sub001/internal/discovery"
	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

var _ discovery.PoolProvider = (*Client)(nil)

const trendingBody = `{
  "data": [
    {
      "id": "eth_0xpool1",
      "type": "pool",
      "attributes": {
        "name": "PEPE / WETH",
        "address": "0xpool1",
        "base_token_price_usd": "0.0000123",
        "fdv_usd": "5000000",
        "market_cap_usd": null,
        "pool_created_at": "2026-03-01T10:00:00Z",
        "reserve_in_usd": "250000.5",
        "price_change_percentage": {"h1": "12.5", "h6": "20", "h24": "48"},
        "transactions": {"h24": {"buys": 900, "sells": 300, "buyers": 420, "sellers": 150}},
        "volume_usd": {"h24": "1200000"}
      },
      "relationships": {"base_token": {"data": {"id": "eth_0xPEPE", "type": "token"}}}
    },
    {
      "id": "eth_0xpool2",
      "type": "pool",
      "attributes": {"name": "ORPHAN / WETH", "address": "0xpool2", "reserve_in_usd": "10"},
      "relationships": {"base_token": {"data": {"id": "eth_0xORPHAN", "type": "token"}}}
    }
  ],
  "included": [
    {"id": "eth_0xPEPE", "type": "token", "attributes": {"address": "0xPEPE", "name": "Pepe", "symbol": "PEPE"}}
  ]
}`

func TestTrendingPools(t *testing.T) {
	var gotPath, gotInclude string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotInclude = r.URL.Query().Get("include")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(trendingBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	cands, err := c.TrendingPools(context.Background(), "ethereum")
	require.NoError(t, err)

	assert.Equal(t, "/networks/eth/trending_pools", gotPath)
	assert.Equal(t, "base_token", gotInclude)
	require.Len(t, cands, 2)

	p := cands[0]
	assert.Equal(t, "ethereum", p.Chain)
	assert.Equal(t, "0xPEPE", p.Address)
	assert.Equal(t, "PEPE", p.Symbol)
	assert.Equal(t, SourceName, p.Source)
	assert.InDelta(t, 250000.5, p.Liquidity, 1e-6)
	assert.InDelta(t, 1_200_000, p.Volume24h, 1e-6)
	assert.InDelta(t, 12.5, p.PriceChange1h, 1e-9)
	assert.Equal(t, int64(420), p.UniqueBuyers24h)
	assert.Equal(t, int64(150), p.UniqueSellers24h)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), p.PairCreatedAt)

	orphan := cands[1]
	assert.Equal(t, "0xORPHAN", orphan.Address, "address falls back to the relationship id")
	assert.Equal(t, "ORPHAN", orphan.Symbol)
}

func TestNewPoolsPassesThroughUnknownNetworks(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	cands, err := NewClient(srv.URL).NewPools(context.Background(), "solana")
	require.NoError(t, err)
	assert.Empty(t, cands)
	assert.Equal(t, "/networks/solana/new_pools", gotPath)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadGateway, domain.ErrUpstreamUnavailable},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := NewClient(srv.URL).TrendingPools(context.Background(), "base")
		srv.Close()
		assert.ErrorIs(t, err, tc.want)
	}
}
