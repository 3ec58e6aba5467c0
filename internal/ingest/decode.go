// Package ingest turns inbound on-chain event messages into domain events
// and feeds them to the molt detector with per-wallet ordering.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// rawEvent is the wire shape published by the on-chain collectors.
type rawEvent struct {
	ID       string          `json:"id"`
	TS       json.RawMessage `json:"ts"`
	Type     string          `json:"type"`
	Chain    string          `json:"chain"`
	Wallet   string          `json:"wallet"`
	TxHash   string          `json:"txHash"`
	TokenIn  string          `json:"tokenIn"`
	TokenOut string          `json:"tokenOut"`
	Meta     rawMeta         `json:"meta"`
}

type rawMeta struct {
	Direction   string     `json:"direction"`
	Token       string     `json:"token"`
	Symbol      string     `json:"symbol"`
	Amount      flexString `json:"amount"`
	AmountUSD   flexString `json:"amountUsd"`
	DestChain   string     `json:"destChain"`
	SourceChain string     `json:"sourceChain"`
	From        string     `json:"from"`
	To          string     `json:"to"`
	TxHash      string     `json:"txHash"`
}

// flexString accepts a JSON string or number and keeps its literal text so
// large integers survive without float rounding.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	*f = flexString(data)
	return nil
}

// Decode parses one inbound message. Malformed or incomplete messages return
// an error wrapping domain.ErrValidation.
func Decode(data []byte) (domain.Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Event{}, invalid("malformed json: %v", err)
	}

	chain := strings.ToLower(strings.TrimSpace(raw.Chain))
	if chain == "" {
		return domain.Event{}, invalid("missing chain")
	}
	ts, err := parseTimestamp(raw.TS)
	if err != nil {
		return domain.Event{}, err
	}

	ev := domain.Event{
		ID:        raw.ID,
		Timestamp: ts,
		Chain:     chain,
		TxHash:    raw.TxHash,
	}
	if ev.TxHash == "" {
		ev.TxHash = raw.Meta.TxHash
	}
	if raw.Wallet != "" {
		if ev.Wallet, err = NormalizeAddress(chain, raw.Wallet); err != nil {
			return domain.Event{}, err
		}
	}

	kind := domain.EventKind(strings.ToLower(raw.Type))
	if kind != domain.EventTransfer && ev.Wallet == "" {
		return domain.Event{}, invalid("%s event without wallet", kind)
	}

	switch kind {
	case domain.EventSwap:
		dir := domain.SwapDirection(strings.ToLower(raw.Meta.Direction))
		token := raw.Meta.Token
		switch dir {
		case domain.SwapBuy:
			token = firstNonEmpty(token, raw.TokenOut)
		case domain.SwapSell:
			token = firstNonEmpty(token, raw.TokenIn)
		default:
			return domain.Event{}, invalid("swap direction %q", raw.Meta.Direction)
		}
		s := domain.Swap{Direction: dir, TokenSymbol: raw.Meta.Symbol}
		if s.Token, err = normalizeToken(chain, token); err != nil {
			return domain.Event{}, err
		}
		if s.Amount, err = parseAmount(raw.Meta.Amount); err != nil {
			return domain.Event{}, err
		}
		if s.AmountUSD, err = parseUSD(raw.Meta.AmountUSD); err != nil {
			return domain.Event{}, err
		}
		ev.Payload = s

	case domain.EventBridgeOut:
		b := domain.BridgeOut{TokenSymbol: raw.Meta.Symbol, DestChain: strings.ToLower(raw.Meta.DestChain)}
		if b.DestChain == "" {
			return domain.Event{}, invalid("bridge_out without destChain")
		}
		if b.Token, err = normalizeToken(chain, firstNonEmpty(raw.Meta.Token, raw.TokenIn)); err != nil {
			return domain.Event{}, err
		}
		if b.Amount, err = parseAmount(raw.Meta.Amount); err != nil {
			return domain.Event{}, err
		}
		if b.AmountUSD, err = parseUSD(raw.Meta.AmountUSD); err != nil {
			return domain.Event{}, err
		}
		ev.Payload = b

	case domain.EventBridgeIn:
		b := domain.BridgeIn{SourceChain: strings.ToLower(raw.Meta.SourceChain)}
		if tok := firstNonEmpty(raw.Meta.Token, raw.TokenOut); tok != "" {
			if b.Token, err = normalizeToken(chain, tok); err != nil {
				return domain.Event{}, err
			}
		}
		if raw.Meta.Amount != "" {
			if b.Amount, err = parseAmount(raw.Meta.Amount); err != nil {
				return domain.Event{}, err
			}
		}
		if b.AmountUSD, err = parseUSD(raw.Meta.AmountUSD); err != nil {
			return domain.Event{}, err
		}
		ev.Payload = b

	case domain.EventTransfer:
		tr := domain.Transfer{}
		if tr.Token, err = normalizeToken(chain, firstNonEmpty(raw.Meta.Token, raw.TokenIn, raw.TokenOut)); err != nil {
			return domain.Event{}, err
		}
		if raw.Meta.From != "" {
			if tr.From, err = NormalizeAddress(chain, raw.Meta.From); err != nil {
				return domain.Event{}, err
			}
		}
		if raw.Meta.To != "" {
			if tr.To, err = NormalizeAddress(chain, raw.Meta.To); err != nil {
				return domain.Event{}, err
			}
		}
		if tr.Amount, err = parseAmount(raw.Meta.Amount); err != nil {
			return domain.Event{}, err
		}
		ev.Payload = tr

	default:
		return domain.Event{}, invalid("unknown event type %q", raw.Type)
	}
	return ev, nil
}

// NormalizeAddress validates addr for chain. EVM addresses are lower-cased;
// Solana addresses are base58 and case-sensitive.
func NormalizeAddress(chain, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if strings.EqualFold(chain, "solana") {
		b, err := base58.Decode(addr)
		if err != nil || len(b) != 32 {
			return "", invalid("invalid solana address %q", addr)
		}
		return addr, nil
	}
	if !common.IsHexAddress(addr) {
		return "", invalid("invalid address %q on %s", addr, chain)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

func normalizeToken(chain, token string) (string, error) {
	if token == "" {
		return "", invalid("missing token")
	}
	return NormalizeAddress(chain, token)
}

func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, invalid("missing ts")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, invalid("ts: %v", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, invalid("ts: %v", err)
		}
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, invalid("ts: %v", err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// parseAmount reads an integer amount in base units; it must be positive.
func parseAmount(v flexString) (*big.Int, error) {
	if v == "" {
		return nil, invalid("missing amount")
	}
	n, ok := new(big.Int).SetString(string(v), 10)
	if !ok || n.Sign() <= 0 {
		return nil, invalid("invalid amount %q", string(v))
	}
	return n, nil
}

func parseUSD(v flexString) (*decimal.Decimal, error) {
	if v == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(string(v))
	if err != nil || d.IsNegative() {
		return nil, invalid("invalid amountUsd %q", string(v))
	}
	return &d, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("ingest: %s: %w", fmt.Sprintf(format, args...), domain.ErrValidation)
}
