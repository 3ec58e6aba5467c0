package geckoterminal

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// numString accepts the numeric strings GeckoTerminal uses for most figures
// as well as plain numbers and null.
type numString float64

func (n *numString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*n = numString(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*n = numString(f)
	return nil
}

// APITxnWindow holds trade counts for one window.
type APITxnWindow struct {
	Buys    int64 `json:"buys"`
	Sells   int64 `json:"sells"`
	Buyers  int64 `json:"buyers"`
	Sellers int64 `json:"sellers"`
}

// APIPoolAttributes are the attributes of a pool resource.
type APIPoolAttributes struct {
	Name              string    `json:"name"`
	Address           string    `json:"address"`
	BaseTokenPriceUSD numString `json:"base_token_price_usd"`
	FDVUSD            numString `json:"fdv_usd"`
	MarketCapUSD      numString `json:"market_cap_usd"`
	PoolCreatedAt     string    `json:"pool_created_at"`
	ReserveInUSD      numString `json:"reserve_in_usd"`
	PriceChange       struct {
		H1  numString `json:"h1"`
		H6  numString `json:"h6"`
		H24 numString `json:"h24"`
	} `json:"price_change_percentage"`
	Transactions struct {
		H1  APITxnWindow `json:"h1"`
		H24 APITxnWindow `json:"h24"`
	} `json:"transactions"`
	VolumeUSD struct {
		H1  numString `json:"h1"`
		H24 numString `json:"h24"`
	} `json:"volume_usd"`
}

// APIRef is a JSON:API relationship reference.
type APIRef struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// APIPool is a pool resource.
type APIPool struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Attributes    APIPoolAttributes `json:"attributes"`
	Relationships struct {
		BaseToken struct {
			Data APIRef `json:"data"`
		} `json:"base_token"`
	} `json:"relationships"`
}

// APIIncluded is a sideloaded resource; only tokens are requested.
type APIIncluded struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"attributes"`
}

// APIPoolList is the envelope of the pool list endpoints.
type APIPoolList struct {
	Data     []APIPool     `json:"data"`
	Included []APIIncluded `json:"included"`
}

// ToDomainCandidates joins pools with their sideloaded base tokens. Pools
// whose base token cannot be resolved are skipped.
func (l APIPoolList) ToDomainCandidates(chain string, now time.Time) []domain.TokenCandidate {
	tokens := make(map[string]APIIncluded, len(l.Included))
	for _, inc := range l.Included {
		if inc.Type == "token" {
			tokens[inc.ID] = inc
		}
	}

	out := make([]domain.TokenCandidate, 0, len(l.Data))
	for _, p := range l.Data {
		ref := p.Relationships.BaseToken.Data
		tok, ok := tokens[ref.ID]
		address := tok.Attributes.Address
		if !ok {
			// Ids look like "<network>_<address>".
			_, addr, found := strings.Cut(ref.ID, "_")
			if !found {
				continue
			}
			address = addr
		}
		if address == "" {
			continue
		}

		a := p.Attributes
		c := domain.TokenCandidate{
			Chain:            chain,
			Address:          address,
			Symbol:           tok.Attributes.Symbol,
			Name:             tok.Attributes.Name,
			PairAddress:      a.Address,
			Source:           SourceName,
			PriceUSD:         float64(a.BaseTokenPriceUSD),
			PriceChange1h:    float64(a.PriceChange.H1),
			PriceChange6h:    float64(a.PriceChange.H6),
			PriceChange24h:   float64(a.PriceChange.H24),
			Volume24h:        float64(a.VolumeUSD.H24),
			Liquidity:        float64(a.ReserveInUSD),
			FDV:              float64(a.FDVUSD),
			Buys24h:          a.Transactions.H24.Buys,
			Sells24h:         a.Transactions.H24.Sells,
			UniqueBuyers24h:  a.Transactions.H24.Buyers,
			UniqueSellers24h: a.Transactions.H24.Sellers,
			DiscoveredAt:     now,
			LastUpdated:      now,
		}
		if c.Symbol == "" {
			c.Symbol, _, _ = strings.Cut(a.Name, " /")
		}
		if t, err := time.Parse(time.RFC3339, a.PoolCreatedAt); err == nil {
			c.PairCreatedAt = t.UTC()
		}
		out = append(out, c)
	}
	return out
}
