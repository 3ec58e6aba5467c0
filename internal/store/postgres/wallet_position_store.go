package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// WalletPositionStore implements domain.WalletPositionStore using PostgreSQL.
// Keys are stored as given; ingestion normalizes EVM addresses to lower case
// and leaves case-sensitive Solana addresses alone. Token amounts live in NUMERIC(78,0) columns and travel as decimal text so
// no precision is lost on 256-bit balances.
type WalletPositionStore struct {
	pool *pgxpool.Pool
}

// NewWalletPositionStore creates a new WalletPositionStore backed by the
// given connection pool.
func NewWalletPositionStore(pool *pgxpool.Pool) *WalletPositionStore {
	return &WalletPositionStore{pool: pool}
}

const walletPositionSelectCols = `chain, wallet, token, token_symbol,
	baseline_amount::text, baseline_usd::text, current_amount::text, current_usd::text,
	last_buy_at, last_buy_tx, last_sell_at, last_sell_tx, updated_at`

func scanWalletPositionRow(row pgx.Row) (domain.WalletPosition, error) {
	var p domain.WalletPosition
	var baseAmt, baseUSD, curAmt, curUSD string

	err := row.Scan(
		&p.Chain, &p.Wallet, &p.Token, &p.TokenSymbol,
		&baseAmt, &baseUSD, &curAmt, &curUSD,
		&p.LastBuyAt, &p.LastBuyTx, &p.LastSellAt, &p.LastSellTx, &p.UpdatedAt,
	)
	if err != nil {
		return domain.WalletPosition{}, err
	}

	if p.BaselineAmount, err = parseAmount(baseAmt); err != nil {
		return domain.WalletPosition{}, err
	}
	if p.CurrentAmount, err = parseAmount(curAmt); err != nil {
		return domain.WalletPosition{}, err
	}
	if p.BaselineUSD, err = decimal.NewFromString(baseUSD); err != nil {
		return domain.WalletPosition{}, fmt.Errorf("parse baseline_usd %q: %w", baseUSD, err)
	}
	if p.CurrentUSD, err = decimal.NewFromString(curUSD); err != nil {
		return domain.WalletPosition{}, fmt.Errorf("parse current_usd %q: %w", curUSD, err)
	}
	return p, nil
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse amount %q", s)
	}
	return n, nil
}

func amountText(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

// Get returns domain.ErrNotFound when the wallet has never been seen holding
// the token.
func (s *WalletPositionStore) Get(ctx context.Context, chain, wallet, token string) (domain.WalletPosition, error) {
	query := `SELECT ` + walletPositionSelectCols + ` FROM wallet_positions
		WHERE chain = $1 AND wallet = $2 AND token = $3`

	p, err := scanWalletPositionRow(s.pool.QueryRow(ctx, query, chain, wallet, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WalletPosition{}, domain.ErrNotFound
		}
		return domain.WalletPosition{}, fmt.Errorf("postgres: get wallet position %s/%s: %w", wallet, token, err)
	}
	return p, nil
}

// Upsert writes every column of pos, inserting the row if needed.
func (s *WalletPositionStore) Upsert(ctx context.Context, pos domain.WalletPosition) error {
	const query = `
		INSERT INTO wallet_positions (
			chain, wallet, token, token_symbol,
			baseline_amount, baseline_usd, current_amount, current_usd,
			last_buy_at, last_buy_tx, last_sell_at, last_sell_tx, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::text::numeric, $6::text::numeric, $7::text::numeric, $8::text::numeric,
			$9, $10, $11, $12, NOW()
		)
		ON CONFLICT (chain, wallet, token) DO UPDATE SET
			token_symbol    = EXCLUDED.token_symbol,
			baseline_amount = EXCLUDED.baseline_amount,
			baseline_usd    = EXCLUDED.baseline_usd,
			current_amount  = EXCLUDED.current_amount,
			current_usd     = EXCLUDED.current_usd,
			last_buy_at     = EXCLUDED.last_buy_at,
			last_buy_tx     = EXCLUDED.last_buy_tx,
			last_sell_at    = EXCLUDED.last_sell_at,
			last_sell_tx    = EXCLUDED.last_sell_tx,
			updated_at      = NOW()`

	_, err := s.pool.Exec(ctx, query,
		pos.Chain, pos.Wallet, pos.Token, pos.TokenSymbol,
		amountText(pos.BaselineAmount), pos.BaselineUSD.String(), amountText(pos.CurrentAmount), pos.CurrentUSD.String(),
		pos.LastBuyAt, pos.LastBuyTx, pos.LastSellAt, pos.LastSellTx,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert wallet position %s/%s: %w", pos.Wallet, pos.Token, err)
	}
	return nil
}

// ListByWallet returns every position held by wallet across chains.
func (s *WalletPositionStore) ListByWallet(ctx context.Context, wallet string) ([]domain.WalletPosition, error) {
	query := `SELECT ` + walletPositionSelectCols + ` FROM wallet_positions
		WHERE wallet = $1 ORDER BY chain, token`

	rows, err := s.pool.Query(ctx, query, wallet)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallet positions %s: %w", wallet, err)
	}
	defer rows.Close()

	var out []domain.WalletPosition
	for rows.Next() {
		p, err := scanWalletPositionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wallet position: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list wallet positions rows: %w", err)
	}
	return out, nil
}

// ResetBaselines copies current amounts into the baseline columns for one
// wallet, or for all wallets when wallet is empty.
func (s *WalletPositionStore) ResetBaselines(ctx context.Context, wallet string) (int64, error) {
	query := `UPDATE wallet_positions SET
			baseline_amount = current_amount,
			baseline_usd    = current_usd,
			updated_at      = NOW()`
	args := []any{}
	if wallet != "" {
		query += ` WHERE wallet = $1`
		args = append(args, wallet)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("postgres: reset baselines: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.WalletPositionStore = (*WalletPositionStore)(nil)
