package dexscreener

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// flexFloat unmarshals from a JSON number or numeric string. DexScreener
// sends priceUsd as a string and most other figures as numbers.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// APIBoost is one entry of the token boost feeds.
type APIBoost struct {
	URL          string  `json:"url"`
	ChainID      string  `json:"chainId"`
	TokenAddress string  `json:"tokenAddress"`
	Amount       float64 `json:"amount"`
	TotalAmount  float64 `json:"totalAmount"`
}

// APIToken is a token reference inside a pair.
type APIToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// APITxnCount is a buy/sell count for one window.
type APITxnCount struct {
	Buys  int64 `json:"buys"`
	Sells int64 `json:"sells"`
}

// APIPair is a DEX pair as returned by the pairs and tokens endpoints.
type APIPair struct {
	ChainID     string    `json:"chainId"`
	DexID       string    `json:"dexId"`
	URL         string    `json:"url"`
	PairAddress string    `json:"pairAddress"`
	BaseToken   APIToken  `json:"baseToken"`
	QuoteToken  APIToken  `json:"quoteToken"`
	PriceUSD    flexFloat `json:"priceUsd"`
	Txns        struct {
		H1  APITxnCount `json:"h1"`
		H24 APITxnCount `json:"h24"`
	} `json:"txns"`
	Volume struct {
		H1  flexFloat `json:"h1"`
		H24 flexFloat `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H1  flexFloat `json:"h1"`
		H6  flexFloat `json:"h6"`
		H24 flexFloat `json:"h24"`
	} `json:"priceChange"`
	Liquidity struct {
		USD flexFloat `json:"usd"`
	} `json:"liquidity"`
	FDV           flexFloat `json:"fdv"`
	PairCreatedAt int64     `json:"pairCreatedAt"`
}

// APISearchResult wraps the legacy /latest/dex endpoints.
type APISearchResult struct {
	SchemaVersion string    `json:"schemaVersion"`
	Pairs         []APIPair `json:"pairs"`
}

// ToDomainCandidate converts a pair into a candidate for its base token.
// DexScreener does not report unique wallets, so those counts stay zero.
func (p APIPair) ToDomainCandidate(now time.Time) domain.TokenCandidate {
	c := domain.TokenCandidate{
		Chain:          strings.ToLower(p.ChainID),
		Address:        p.BaseToken.Address,
		Symbol:         p.BaseToken.Symbol,
		Name:           p.BaseToken.Name,
		PairAddress:    p.PairAddress,
		Source:         SourceName,
		PriceUSD:       float64(p.PriceUSD),
		PriceChange1h:  float64(p.PriceChange.H1),
		PriceChange6h:  float64(p.PriceChange.H6),
		PriceChange24h: float64(p.PriceChange.H24),
		Volume24h:      float64(p.Volume.H24),
		Liquidity:      float64(p.Liquidity.USD),
		FDV:            float64(p.FDV),
		Buys24h:        p.Txns.H24.Buys,
		Sells24h:       p.Txns.H24.Sells,
		DiscoveredAt:   now,
		LastUpdated:    now,
	}
	if p.PairCreatedAt > 0 {
		c.PairCreatedAt = time.UnixMilli(p.PairCreatedAt).UTC()
	}
	return c
}
