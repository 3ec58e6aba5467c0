package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// WalletPosition tracks a wallet's holding of one token on one chain. The
// baseline is only moved by an explicit re-snapshot, never by ordinary buys.
type WalletPosition struct {
	Chain          string
	Wallet         string
	Token          string
	TokenSymbol    string
	BaselineAmount *big.Int
	BaselineUSD    decimal.Decimal
	CurrentAmount  *big.Int
	CurrentUSD     decimal.Decimal
	LastBuyAt      *time.Time
	LastBuyTx      string
	LastSellAt     *time.Time
	LastSellTx     string
	UpdatedAt      time.Time
}

// Clone returns a deep copy so callers can mutate amounts safely.
func (p WalletPosition) Clone() WalletPosition {
	out := p
	if p.BaselineAmount != nil {
		out.BaselineAmount = new(big.Int).Set(p.BaselineAmount)
	}
	if p.CurrentAmount != nil {
		out.CurrentAmount = new(big.Int).Set(p.CurrentAmount)
	}
	if p.LastBuyAt != nil {
		t := *p.LastBuyAt
		out.LastBuyAt = &t
	}
	if p.LastSellAt != nil {
		t := *p.LastSellAt
		out.LastSellAt = &t
	}
	return out
}

// PendingSell is a threshold-clearing sell waiting for a rotation buy.
type PendingSell struct {
	Wallet      string           `json:"wallet"`
	Chain       string           `json:"chain"`
	Token       string           `json:"token"`
	TokenSymbol string           `json:"tokenSymbol,omitempty"`
	SoldAt      time.Time        `json:"soldAt"`
	TxHash      string           `json:"txHash"`
	PercentSold int64            `json:"percentSold"`
	Amount      *big.Int         `json:"amount"`
	AmountUSD   *decimal.Decimal `json:"amountUsd,omitempty"`
}
