package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// SignalSeverity ranks how urgently a signal should be looked at.
type SignalSeverity string

const (
	SeverityLow      SignalSeverity = "low"
	SeverityMedium   SignalSeverity = "medium"
	SeverityHigh     SignalSeverity = "high"
	SeverityCritical SignalSeverity = "critical"
)

// Rank orders severities so callers can apply "at least" filters.
func (s SignalSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether s is one of the known severities.
func (s SignalSeverity) Valid() bool { return s.Rank() > 0 }

// ParseSeverity converts a case-insensitive string into a SignalSeverity.
func ParseSeverity(v string) (SignalSeverity, bool) {
	s := SignalSeverity(strings.ToLower(strings.TrimSpace(v)))
	return s, s.Valid()
}

// SignalType identifies the detector (or rule) that produced a signal.
type SignalType string

const (
	SignalTypeMoltDetected       SignalType = "MoltDetected"
	SignalTypeDiscoveryCandidate SignalType = "DiscoveryCandidate"
)

// Signal is a persisted, evidence-backed alert. Everything except the three
// acknowledgment fields is immutable after creation.
type Signal struct {
	ID                string          `json:"id"`
	Timestamp         time.Time       `json:"ts"`
	Severity          SignalSeverity  `json:"severity"`
	Type              SignalType      `json:"signalType"`
	Title             string          `json:"title"`
	Summary           string          `json:"summary"`
	Token             string          `json:"token,omitempty"`
	TokenSymbol       string          `json:"tokenSymbol,omitempty"`
	Chain             string          `json:"chain,omitempty"`
	Wallet            string          `json:"wallet,omitempty"`
	StrategyID        string          `json:"strategyId"`
	Evidence          json.RawMessage `json:"evidence,omitempty"`
	RecommendedAction string          `json:"recommendedAction,omitempty"`
	Acknowledged      bool            `json:"acknowledged"`
	AcknowledgedAt    *time.Time      `json:"acknowledgedAt,omitempty"`
	AcknowledgedBy    string          `json:"acknowledgedBy,omitempty"`
	Metadata          map[string]any  `json:"meta,omitempty"`
}

// CreateSignal is the payload detectors hand to the signal service. The
// service assigns ID and Timestamp.
type CreateSignal struct {
	Severity          SignalSeverity
	Type              SignalType
	Title             string
	Summary           string
	Token             string
	TokenSymbol       string
	Chain             string
	Wallet            string
	StrategyID        string
	Evidence          json.RawMessage
	RecommendedAction string
	Metadata          map[string]any
}

// SignalFilter is a conjunctive filter over stored signals. Zero values mean
// "no constraint".
type SignalFilter struct {
	Severity     SignalSeverity
	StrategyID   string
	Chain        string
	Token        string
	Wallet       string
	Acknowledged *bool
	Since        *time.Time
	Until        *time.Time
}

// Matches reports whether sig satisfies every set constraint. Token and
// wallet comparisons are case-insensitive.
func (f SignalFilter) Matches(sig Signal) bool {
	if f.Severity != "" && sig.Severity != f.Severity {
		return false
	}
	if f.StrategyID != "" && sig.StrategyID != f.StrategyID {
		return false
	}
	if f.Chain != "" && !strings.EqualFold(sig.Chain, f.Chain) {
		return false
	}
	if f.Token != "" && !strings.EqualFold(sig.Token, f.Token) {
		return false
	}
	if f.Wallet != "" && !strings.EqualFold(sig.Wallet, f.Wallet) {
		return false
	}
	if f.Acknowledged != nil && sig.Acknowledged != *f.Acknowledged {
		return false
	}
	if f.Since != nil && sig.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && sig.Timestamp.After(*f.Until) {
		return false
	}
	return true
}

// SignalPage is one page of a filtered signal listing.
type SignalPage struct {
	Data       []Signal `json:"data"`
	Page       int      `json:"page"`
	Limit      int      `json:"limit"`
	Total      int64    `json:"total"`
	TotalPages int      `json:"totalPages"`
}

// MoltEvidence is the structured evidence attached to MoltDetected signals.
type MoltEvidence struct {
	Wallet           string `json:"wallet"`
	Chain            string `json:"chain"`
	FromToken        string `json:"fromToken"`
	FromTokenSymbol  string `json:"fromTokenSymbol,omitempty"`
	ToToken          string `json:"toToken"`
	PercentSold      int64  `json:"percentSold"`
	TimeDeltaMinutes int64  `json:"timeDeltaMinutes"`
	SellTxHash       string `json:"sellTxHash"`
	BuyTxHash        string `json:"buyTxHash"`
	SoldAmountUSD    string `json:"soldAmountUsd,omitempty"`
	BoughtAmountUSD  string `json:"boughtAmountUsd,omitempty"`
}

// DiscoveryEvidence is attached to DiscoveryCandidate signals.
type DiscoveryEvidence struct {
	Scores           Scores               `json:"scores"`
	Conditions       []DiscoveryCondition `json:"conditions"`
	ConditionsPassed int                  `json:"conditionsPassed"`
	Flags            []Flag               `json:"flags,omitempty"`
	Volume24h        float64              `json:"volume24h"`
	Liquidity        float64              `json:"liquidity"`
	PriceChange1h    float64              `json:"priceChange1h"`
}
