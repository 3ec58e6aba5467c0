package molt

import (
	"context"
	"log/slog"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// BridgeToken is the synthetic destination token for value bridged to chain.
func BridgeToken(chain string) string {
	return "bridge:" + chain
}

// HandleEvent routes one normalized on-chain event through the state
// machine. Transfers carry no trade side and are ignored.
func (d *Detector) HandleEvent(ctx context.Context, ev domain.Event) error {
	if ev.Wallet == "" {
		return nil
	}
	at := d.eventTime(ev.Timestamp)

	switch p := ev.Payload.(type) {
	case domain.Swap:
		t := Trade{
			Chain:       ev.Chain,
			Wallet:      ev.Wallet,
			Token:       p.Token,
			TokenSymbol: p.TokenSymbol,
			Amount:      p.Amount,
			AmountUSD:   p.AmountUSD,
			TxHash:      ev.TxHash,
			At:          at,
		}
		if p.Direction == domain.SwapBuy {
			return d.OnBuy(ctx, t)
		}
		return d.OnSell(ctx, t)

	case domain.BridgeOut:
		// Bridging out is both the exit and the rotation.
		if _, err := d.recordSell(ctx, Trade{
			Chain:       ev.Chain,
			Wallet:      ev.Wallet,
			Token:       p.Token,
			TokenSymbol: p.TokenSymbol,
			Amount:      p.Amount,
			AmountUSD:   p.AmountUSD,
			TxHash:      ev.TxHash,
			At:          at,
		}); err != nil {
			return err
		}
		_, err := d.checkRotation(ctx, rotation{
			wallet:    ev.Wallet,
			toToken:   BridgeToken(p.DestChain),
			buyTx:     ev.TxHash,
			at:        at,
			boughtUSD: p.AmountUSD,
		})
		return err

	case domain.BridgeIn:
		_, err := d.checkRotation(ctx, rotation{
			wallet:    ev.Wallet,
			toToken:   BridgeToken(ev.Chain),
			buyTx:     ev.TxHash,
			at:        at,
			boughtUSD: p.AmountUSD,
		})
		return err

	case domain.Transfer:
		return nil

	default:
		d.logger.Debug("unhandled event payload", slog.String("event_id", ev.ID), slog.String("kind", string(ev.Kind())))
		return nil
	}
}
