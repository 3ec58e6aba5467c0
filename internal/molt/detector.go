// Package molt detects wallets that dump most of a position and rotate into
// another asset (or off-chain via a bridge) within a short window.
package molt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// StrategyID tags every signal this package emits.
const StrategyID = "molt"

// Config holds the detector thresholds.
type Config struct {
	ThresholdPercent int64
	MinPositionUSD   decimal.Decimal
	RotationWindow   time.Duration
	Cooldown         time.Duration
}

// DefaultConfig returns a 50% threshold, $1000 floor, 60 minute window and
// 30 minute cooldown.
func DefaultConfig() Config {
	return Config{
		ThresholdPercent: 50,
		MinPositionUSD:   decimal.NewFromInt(1000),
		RotationWindow:   60 * time.Minute,
		Cooldown:         30 * time.Minute,
	}
}

// SignalSink receives detected rotations.
type SignalSink interface {
	Create(ctx context.Context, in domain.CreateSignal) (domain.Signal, error)
}

// Trade is one buy or sell observed for a wallet.
type Trade struct {
	Chain       string
	Wallet      string
	Token       string
	TokenSymbol string
	Amount      *big.Int
	AmountUSD   *decimal.Decimal
	TxHash      string
	At          time.Time
}

// rotation is the buy (or bridge) side that may complete a pending sell.
type rotation struct {
	wallet    string
	toToken   string
	toSymbol  string
	buyTx     string
	at        time.Time
	boughtUSD *decimal.Decimal
}

// Detector is the per-wallet state machine
// idle -> pendingSell(token) -> {rotationCompleted | expired}.
// It does no internal parallelism; callers deliver each wallet's events in
// non-decreasing timestamp order.
type Detector struct {
	cfg       Config
	positions domain.WalletPositionStore
	pending   domain.PendingSellStore
	cooldowns domain.CooldownStore
	signals   SignalSink
	now       func() time.Time
	logger    *slog.Logger
}

// New creates a Detector.
func New(
	cfg Config,
	positions domain.WalletPositionStore,
	pending domain.PendingSellStore,
	cooldowns domain.CooldownStore,
	signals SignalSink,
	logger *slog.Logger,
) *Detector {
	return &Detector{
		cfg:       cfg,
		positions: positions,
		pending:   pending,
		cooldowns: cooldowns,
		signals:   signals,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "molt_detector")),
	}
}

// WithClock overrides the clock used for events without a timestamp and for
// cleanup.
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

func (d *Detector) eventTime(t time.Time) time.Time {
	if t.IsZero() {
		return d.now().UTC()
	}
	return t.UTC()
}

// PercentSold returns floor(sold*100/baseline) using exact integer
// arithmetic. It returns 0 when baseline is not positive.
func PercentSold(sold, baseline *big.Int) int64 {
	if sold == nil || baseline == nil || baseline.Sign() <= 0 || sold.Sign() <= 0 {
		return 0
	}
	pct := new(big.Int).Mul(sold, big.NewInt(100))
	pct.Quo(pct, baseline)
	if !pct.IsInt64() {
		return int64(^uint64(0) >> 1)
	}
	return pct.Int64()
}

// OnBuy records a buy and checks whether it completes a rotation. The first
// buy of a (chain, wallet, token) sets both baseline and current; later buys
// only grow current.
func (d *Detector) OnBuy(ctx context.Context, t Trade) error {
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		d.logger.Debug("ignoring buy without amount", slog.String("wallet", t.Wallet), slog.String("tx", t.TxHash))
		return nil
	}
	at := d.eventTime(t.At)

	pos, err := d.positions.Get(ctx, t.Chain, t.Wallet, t.Token)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		pos = domain.WalletPosition{
			Chain:          t.Chain,
			Wallet:         t.Wallet,
			Token:          t.Token,
			TokenSymbol:    t.TokenSymbol,
			BaselineAmount: new(big.Int).Set(t.Amount),
			CurrentAmount:  new(big.Int).Set(t.Amount),
		}
		if t.AmountUSD != nil {
			pos.BaselineUSD = *t.AmountUSD
			pos.CurrentUSD = *t.AmountUSD
		}
	case err != nil:
		return fmt.Errorf("molt: load position %s/%s: %w", t.Wallet, t.Token, err)
	default:
		if pos.CurrentAmount == nil {
			pos.CurrentAmount = new(big.Int)
		}
		pos.CurrentAmount.Add(pos.CurrentAmount, t.Amount)
		if t.AmountUSD != nil {
			pos.CurrentUSD = pos.CurrentUSD.Add(*t.AmountUSD)
		}
		if pos.TokenSymbol == "" {
			pos.TokenSymbol = t.TokenSymbol
		}
	}
	pos.LastBuyAt = &at
	pos.LastBuyTx = t.TxHash

	if err := d.positions.Upsert(ctx, pos); err != nil {
		return fmt.Errorf("molt: persist position %s/%s: %w: %w", t.Wallet, t.Token, domain.ErrPersistence, err)
	}

	_, err = d.checkRotation(ctx, rotation{
		wallet:    t.Wallet,
		toToken:   t.Token,
		toSymbol:  t.TokenSymbol,
		buyTx:     t.TxHash,
		at:        at,
		boughtUSD: t.AmountUSD,
	})
	return err
}

// OnSell handles a sell of a tracked position. Sells below the USD floor or
// the percent threshold are ignored; otherwise the position is decremented, a
// pending sell is recorded and a rotation buy already processed at or after
// the sell instant is checked.
func (d *Detector) OnSell(ctx context.Context, t Trade) error {
	_, err := d.recordSell(ctx, t)
	return err
}

// recordSell reports whether a pending sell was created.
func (d *Detector) recordSell(ctx context.Context, t Trade) (bool, error) {
	if t.Amount == nil || t.Amount.Sign() <= 0 {
		d.logger.Debug("ignoring sell without amount", slog.String("wallet", t.Wallet), slog.String("tx", t.TxHash))
		return false, nil
	}
	at := d.eventTime(t.At)

	pos, err := d.positions.Get(ctx, t.Chain, t.Wallet, t.Token)
	if errors.Is(err, domain.ErrNotFound) {
		// No baseline, no decision.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("molt: load position %s/%s: %w", t.Wallet, t.Token, err)
	}

	value := pos.BaselineUSD
	if value.IsZero() {
		value = pos.CurrentUSD
	}
	if value.LessThan(d.cfg.MinPositionUSD) {
		return false, nil
	}
	pct := PercentSold(t.Amount, pos.BaselineAmount)
	if pct < d.cfg.ThresholdPercent {
		return false, nil
	}

	prevCurrent := pos.CurrentAmount
	if prevCurrent == nil {
		prevCurrent = new(big.Int)
	}
	next := new(big.Int).Sub(prevCurrent, t.Amount)
	if next.Sign() < 0 {
		next.SetInt64(0)
	}
	if prevCurrent.Sign() > 0 {
		ratio := decimal.NewFromBigInt(next, 0).Div(decimal.NewFromBigInt(prevCurrent, 0))
		pos.CurrentUSD = pos.CurrentUSD.Mul(ratio).Round(8)
	}
	pos.CurrentAmount = next
	pos.LastSellAt = &at
	pos.LastSellTx = t.TxHash
	if pos.TokenSymbol == "" {
		pos.TokenSymbol = t.TokenSymbol
	}

	if err := d.positions.Upsert(ctx, pos); err != nil {
		return false, fmt.Errorf("molt: persist position %s/%s: %w: %w", t.Wallet, t.Token, domain.ErrPersistence, err)
	}

	ps := domain.PendingSell{
		Wallet:      t.Wallet,
		Chain:       t.Chain,
		Token:       t.Token,
		TokenSymbol: pos.TokenSymbol,
		SoldAt:      at,
		TxHash:      t.TxHash,
		PercentSold: pct,
		Amount:      new(big.Int).Set(t.Amount),
		AmountUSD:   t.AmountUSD,
	}
	if err := d.pending.Put(ctx, ps, d.cfg.RotationWindow); err != nil {
		return false, fmt.Errorf("molt: record pending sell %s/%s: %w", t.Wallet, t.Token, err)
	}
	d.logger.Info("pending sell recorded",
		slog.String("wallet", t.Wallet),
		slog.String("token", t.Token),
		slog.Int64("percent_sold", pct),
	)

	if err := d.checkQueuedBuy(ctx, ps); err != nil {
		return true, err
	}
	return true, nil
}

// checkQueuedBuy completes a rotation against a buy of another token that
// was processed before this sell but carries a timestamp no earlier than it,
// e.g. a single swap split into a buy event followed by a sell event.
func (d *Detector) checkQueuedBuy(ctx context.Context, ps domain.PendingSell) error {
	positions, err := d.positions.ListByWallet(ctx, ps.Wallet)
	if err != nil {
		return fmt.Errorf("molt: list positions %s: %w", ps.Wallet, err)
	}

	var best *domain.WalletPosition
	for i := range positions {
		p := &positions[i]
		if p.Token == ps.Token || p.LastBuyAt == nil || p.LastBuyAt.Before(ps.SoldAt) {
			continue
		}
		if best == nil || p.LastBuyAt.After(*best.LastBuyAt) {
			best = p
		}
	}
	if best == nil {
		return nil
	}

	_, err = d.checkRotation(ctx, rotation{
		wallet:   ps.Wallet,
		toToken:  best.Token,
		toSymbol: best.TokenSymbol,
		buyTx:    best.LastBuyTx,
		at:       *best.LastBuyAt,
	})
	return err
}

// checkRotation matches the wallet's pending sells against a new token.
// Expired entries are dropped whatever the outcome. At most one signal is
// emitted per call since the first one starts the wallet's cooldown.
func (d *Detector) checkRotation(ctx context.Context, r rotation) (bool, error) {
	pendings, err := d.pending.List(ctx, r.wallet)
	if err != nil {
		return false, fmt.Errorf("molt: list pending sells %s: %w", r.wallet, err)
	}

	emitted := false
	for _, ps := range pendings {
		elapsed := r.at.Sub(ps.SoldAt)
		if elapsed > d.cfg.RotationWindow {
			if _, err := d.pending.Delete(ctx, r.wallet, ps.Token); err != nil {
				return emitted, fmt.Errorf("molt: drop expired pending sell %s/%s: %w", r.wallet, ps.Token, err)
			}
			d.logger.Debug("pending sell expired", slog.String("wallet", r.wallet), slog.String("token", ps.Token))
			continue
		}
		if elapsed < 0 || ps.Token == r.toToken || emitted {
			continue
		}

		won, err := d.cooldowns.Acquire(ctx, cooldownKey(r.wallet), r.at, d.cfg.Cooldown)
		if err != nil {
			return emitted, fmt.Errorf("molt: cooldown %s: %w", r.wallet, err)
		}
		if !won {
			d.logger.Info("rotation suppressed by cooldown",
				slog.String("wallet", r.wallet),
				slog.String("from", ps.Token),
				slog.String("to", r.toToken),
			)
			continue
		}

		// Claim the sell; another instance may have consumed it already.
		claimed, err := d.pending.Delete(ctx, r.wallet, ps.Token)
		if err != nil || !claimed {
			d.releaseCooldown(ctx, r.wallet)
			if err != nil {
				return emitted, fmt.Errorf("molt: claim pending sell %s/%s: %w", r.wallet, ps.Token, err)
			}
			continue
		}

		if err := d.emit(ctx, ps, r, elapsed); err != nil {
			d.releaseCooldown(ctx, r.wallet)
			if perr := d.pending.Put(ctx, ps, d.cfg.RotationWindow); perr != nil {
				d.logger.Error("restore pending sell failed",
					slog.String("wallet", r.wallet), slog.String("error", perr.Error()))
			}
			return emitted, err
		}
		emitted = true
	}
	return emitted, nil
}

func (d *Detector) releaseCooldown(ctx context.Context, wallet string) {
	if err := d.cooldowns.Release(ctx, cooldownKey(wallet)); err != nil {
		d.logger.Warn("release cooldown failed", slog.String("wallet", wallet), slog.String("error", err.Error()))
	}
}

func cooldownKey(wallet string) string {
	return "molt:" + wallet
}

func (d *Detector) emit(ctx context.Context, ps domain.PendingSell, r rotation, elapsed time.Duration) error {
	ev := domain.MoltEvidence{
		Wallet:           r.wallet,
		Chain:            ps.Chain,
		FromToken:        ps.Token,
		FromTokenSymbol:  ps.TokenSymbol,
		ToToken:          r.toToken,
		PercentSold:      ps.PercentSold,
		TimeDeltaMinutes: int64(elapsed / time.Minute),
		SellTxHash:       ps.TxHash,
		BuyTxHash:        r.buyTx,
	}
	if ps.AmountUSD != nil {
		ev.SoldAmountUSD = ps.AmountUSD.StringFixed(2)
	}
	if r.boughtUSD != nil {
		ev.BoughtAmountUSD = r.boughtUSD.StringFixed(2)
	}
	evidence, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("molt: marshal evidence: %w", err)
	}

	from := label(ps.TokenSymbol, ps.Token)
	to := label(r.toSymbol, r.toToken)
	sig, err := d.signals.Create(ctx, domain.CreateSignal{
		Severity:          domain.SeverityHigh,
		Type:              domain.SignalTypeMoltDetected,
		Title:             fmt.Sprintf("Molt: %s rotated out of %s", shorten(r.wallet), from),
		Summary:           fmt.Sprintf("Wallet %s sold %d%% of its %s position and moved into %s %d minutes later.", r.wallet, ps.PercentSold, from, to, ev.TimeDeltaMinutes),
		Token:             ps.Token,
		TokenSymbol:       ps.TokenSymbol,
		Chain:             ps.Chain,
		Wallet:            r.wallet,
		StrategyID:        StrategyID,
		Evidence:          evidence,
		RecommendedAction: fmt.Sprintf("Review exposure to %s; a large holder has exited into %s.", from, to),
		Metadata: map[string]any{
			"toToken": r.toToken,
		},
	})
	if err != nil {
		return fmt.Errorf("molt: create signal: %w", err)
	}

	d.logger.Info("molt detected",
		slog.String("signal_id", sig.ID),
		slog.String("wallet", r.wallet),
		slog.String("from", ps.Token),
		slog.String("to", r.toToken),
		slog.Int64("percent_sold", ps.PercentSold),
		slog.Int64("minutes", ev.TimeDeltaMinutes),
	)
	return nil
}

func label(symbol, token string) string {
	if symbol != "" {
		return symbol
	}
	return shorten(token)
}

func shorten(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}

// Cleanup drops pending sells older than the rotation window.
func (d *Detector) Cleanup(ctx context.Context) (int, error) {
	cutoff := d.now().UTC().Add(-d.cfg.RotationWindow)
	n, err := d.pending.Sweep(ctx, cutoff)
	if err != nil {
		return n, fmt.Errorf("molt: cleanup: %w", err)
	}
	if n > 0 {
		d.logger.Info("expired pending sells removed", slog.Int("count", n))
	}
	return n, nil
}

// RunCleanup calls Cleanup every interval until ctx is cancelled.
func (d *Detector) RunCleanup(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 5 * time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := d.Cleanup(ctx); err != nil {
				d.logger.Error("pending sell cleanup failed", slog.String("error", err.Error()))
			}
		}
	}
}

// ResnapshotBaselines moves every baseline of wallet (or of all wallets when
// empty) to the current holding. This is the only way a baseline changes
// after the first buy.
func (d *Detector) ResnapshotBaselines(ctx context.Context, wallet string) (int64, error) {
	n, err := d.positions.ResetBaselines(ctx, wallet)
	if err != nil {
		return 0, fmt.Errorf("molt: resnapshot baselines: %w", err)
	}
	d.logger.Info("baselines re-snapshotted", slog.String("wallet", wallet), slog.Int64("positions", n))
	return n, nil
}
