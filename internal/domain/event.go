package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// EventKind names the variant carried by an Event.
type EventKind string

const (
	EventTransfer  EventKind = "transfer"
	EventSwap      EventKind = "swap"
	EventBridgeOut EventKind = "bridge_out"
	EventBridgeIn  EventKind = "bridge_in"
)

// SwapDirection is the wallet's side of a swap.
type SwapDirection string

const (
	SwapBuy  SwapDirection = "buy"
	SwapSell SwapDirection = "sell"
)

// EventPayload is implemented by every on-chain event variant. Consumers
// type-switch on it instead of probing optional fields.
type EventPayload interface {
	Kind() EventKind
}

// Transfer is a plain token movement between two addresses.
type Transfer struct {
	From   string
	To     string
	Token  string
	Amount *big.Int
}

// Swap is a DEX trade from the wallet's point of view.
type Swap struct {
	Direction   SwapDirection
	Token       string
	TokenSymbol string
	Amount      *big.Int
	AmountUSD   *decimal.Decimal
}

// BridgeOut moves value off Chain towards DestChain.
type BridgeOut struct {
	Token       string
	TokenSymbol string
	Amount      *big.Int
	AmountUSD   *decimal.Decimal
	DestChain   string
}

// BridgeIn is the arrival side of a bridge on Chain.
type BridgeIn struct {
	Token       string
	Amount      *big.Int
	AmountUSD   *decimal.Decimal
	SourceChain string
}

func (Transfer) Kind() EventKind  { return EventTransfer }
func (Swap) Kind() EventKind      { return EventSwap }
func (BridgeOut) Kind() EventKind { return EventBridgeOut }
func (BridgeIn) Kind() EventKind  { return EventBridgeIn }

// Event is one normalized on-chain event, resolved at ingestion time.
type Event struct {
	ID        string
	Timestamp time.Time
	Chain     string
	Wallet    string
	TxHash    string
	Payload   EventPayload
}

// Kind returns the payload variant, or "" for an empty event.
func (e Event) Kind() EventKind {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Kind()
}
