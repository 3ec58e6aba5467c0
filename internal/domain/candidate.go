package domain

import "time"

// FlagSeverity grades a descriptive flag on a candidate.
type FlagSeverity string

const (
	FlagInfo    FlagSeverity = "info"
	FlagWarning FlagSeverity = "warning"
	FlagHard    FlagSeverity = "hard"
)

// Flag is a severity-tagged observation about a candidate.
type Flag struct {
	Code     string       `json:"code"`
	Severity FlagSeverity `json:"severity"`
	Message  string       `json:"message"`
}

// Scores holds the four sub-scores and the composite, each in [0,100].
// Composite is always derived from the other four.
type Scores struct {
	Momentum   int `json:"momentum"`
	Liquidity  int `json:"liquidity"`
	Risk       int `json:"risk"`
	Confidence int `json:"confidence"`
	Composite  int `json:"composite"`
}

// TokenCandidate is a normalized market snapshot of a tradable token.
type TokenCandidate struct {
	Chain            string    `json:"chain"`
	Address          string    `json:"address"`
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name"`
	PairAddress      string    `json:"pairAddress,omitempty"`
	Source           string    `json:"source"`
	PriceUSD         float64   `json:"priceUsd"`
	PriceChange1h    float64   `json:"priceChange1h"`
	PriceChange6h    float64   `json:"priceChange6h"`
	PriceChange24h   float64   `json:"priceChange24h"`
	Volume24h        float64   `json:"volume24h"`
	Liquidity        float64   `json:"liquidity"`
	FDV              float64   `json:"fdv"`
	Buys24h          int64     `json:"buys24h"`
	Sells24h         int64     `json:"sells24h"`
	UniqueBuyers24h  int64     `json:"uniqueBuyers24h"`
	UniqueSellers24h int64     `json:"uniqueSellers24h"`
	PairCreatedAt    time.Time `json:"pairCreatedAt,omitempty"`
	Scores           Scores    `json:"scores"`
	Flags            []Flag    `json:"flags,omitempty"`
	DiscoveredAt     time.Time `json:"discoveredAt"`
	LastUpdated      time.Time `json:"lastUpdated"`
}

// TotalTxns is buys plus sells over 24h.
func (c TokenCandidate) TotalTxns() int64 { return c.Buys24h + c.Sells24h }

// DiscoveryCondition is one pass/fail check produced per evaluation.
type DiscoveryCondition struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
	Evidence  string  `json:"evidence"`
}

// Evaluation is the result of running a candidate through the discovery gate.
type Evaluation struct {
	Candidate        TokenCandidate       `json:"candidate"`
	Conditions       []DiscoveryCondition `json:"conditions"`
	ConditionsPassed int                  `json:"conditionsPassed"`
	Qualifies        bool                 `json:"qualifies"`
	EvaluatedAt      time.Time            `json:"evaluatedAt"`
}
