package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a new SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalSelectCols = `id::text, ts, severity, signal_type, title, summary,
	token, token_symbol, chain, wallet, strategy_id, evidence::text,
	recommended_action, acknowledged, acknowledged_at, acknowledged_by, meta`

func scanSignalRow(row pgx.Row) (domain.Signal, error) {
	var s domain.Signal
	var severity, sigType string
	var evidence *string
	var meta []byte

	err := row.Scan(
		&s.ID, &s.Timestamp, &severity, &sigType, &s.Title, &s.Summary,
		&s.Token, &s.TokenSymbol, &s.Chain, &s.Wallet, &s.StrategyID, &evidence,
		&s.RecommendedAction, &s.Acknowledged, &s.AcknowledgedAt, &s.AcknowledgedBy, &meta,
	)
	if err != nil {
		return domain.Signal{}, err
	}
	s.Severity = domain.SignalSeverity(severity)
	s.Type = domain.SignalType(sigType)
	s.Timestamp = s.Timestamp.UTC()
	if evidence != nil {
		s.Evidence = json.RawMessage(*evidence)
	}
	if meta != nil {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return domain.Signal{}, fmt.Errorf("unmarshal meta: %w", err)
		}
	}
	return s, nil
}

func scanSignalRows(rows pgx.Rows) ([]domain.Signal, error) {
	var out []domain.Signal
	for rows.Next() {
		s, err := scanSignalRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Insert persists a new signal. Evidence is stored as JSON text so it reads
// back byte-for-byte.
func (s *SignalStore) Insert(ctx context.Context, sig domain.Signal) error {
	var evidence *string
	if len(sig.Evidence) > 0 {
		v := string(sig.Evidence)
		evidence = &v
	}
	var meta []byte
	if sig.Metadata != nil {
		var err error
		if meta, err = json.Marshal(sig.Metadata); err != nil {
			return fmt.Errorf("postgres: marshal signal meta %s: %w", sig.ID, err)
		}
	}

	const query = `
		INSERT INTO signals (
			id, ts, severity, signal_type, title, summary,
			token, token_symbol, chain, wallet, strategy_id, evidence,
			recommended_action, acknowledged, acknowledged_at, acknowledged_by, meta
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12::json,
			$13, $14, $15, $16, $17
		)`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, sig.Timestamp, string(sig.Severity), string(sig.Type), sig.Title, sig.Summary,
		sig.Token, sig.TokenSymbol, sig.Chain, sig.Wallet, sig.StrategyID, evidence,
		sig.RecommendedAction, sig.Acknowledged, sig.AcknowledgedAt, sig.AcknowledgedBy, meta,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

const signalByIDQuery = `SELECT ` + signalSelectCols + ` FROM signals WHERE id = $1`

// GetByID returns domain.ErrNotFound for unknown or malformed ids.
func (s *SignalStore) GetByID(ctx context.Context, id string) (domain.Signal, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.Signal{}, domain.ErrNotFound
	}
	sig, err := scanSignalRow(s.pool.QueryRow(ctx, signalByIDQuery, uid.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Signal{}, domain.ErrNotFound
		}
		return domain.Signal{}, fmt.Errorf("postgres: get signal %s: %w", id, err)
	}
	return sig, nil
}

// signalWhere renders the conjunctive filter as a WHERE clause.
func signalWhere(f domain.SignalFilter) (string, []any) {
	where := ` WHERE 1=1`
	args := []any{}
	argIdx := 1

	add := func(cond string, v any) {
		where += fmt.Sprintf(" AND "+cond, argIdx)
		args = append(args, v)
		argIdx++
	}

	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.StrategyID != "" {
		add("strategy_id = $%d", f.StrategyID)
	}
	if f.Chain != "" {
		add("lower(chain) = lower($%d)", f.Chain)
	}
	if f.Token != "" {
		add("lower(token) = lower($%d)", f.Token)
	}
	if f.Wallet != "" {
		add("lower(wallet) = lower($%d)", f.Wallet)
	}
	if f.Acknowledged != nil {
		add("acknowledged = $%d", *f.Acknowledged)
	}
	if f.Since != nil {
		add("ts >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("ts <= $%d", *f.Until)
	}
	return where, args
}

// List returns one page of matching signals, newest first, plus the total
// match count.
func (s *SignalStore) List(ctx context.Context, f domain.SignalFilter, opts domain.ListOpts) ([]domain.Signal, int64, error) {
	if opts.Offset < 0 || opts.Limit < 0 {
		return nil, 0, fmt.Errorf("postgres: list signals: %w: negative limit or offset", domain.ErrValidation)
	}
	where, args := signalWhere(f)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM signals`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: count signals: %w", err)
	}

	query := `SELECT ` + signalSelectCols + ` FROM signals` + where + ` ORDER BY ts DESC, id`
	argIdx := len(args) + 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: list signals: %w", err)
	}
	defer rows.Close()

	out, err := scanSignalRows(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: scan signals: %w", err)
	}
	return out, total, nil
}

// Acknowledge sets the acknowledgment fields, overwriting any previous
// acknowledgment, and returns the updated row.
func (s *SignalStore) Acknowledge(ctx context.Context, id, by string, at time.Time) (domain.Signal, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.Signal{}, domain.ErrNotFound
	}
	query := `
		UPDATE signals SET
			acknowledged    = TRUE,
			acknowledged_at = $2,
			acknowledged_by = $3
		WHERE id = $1
		RETURNING ` + signalSelectCols

	sig, err := scanSignalRow(s.pool.QueryRow(ctx, query, uid.String(), at, by))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Signal{}, domain.ErrNotFound
		}
		return domain.Signal{}, fmt.Errorf("postgres: acknowledge signal %s: %w", id, err)
	}
	return sig, nil
}

// ListAcknowledgedBefore returns acknowledged signals older than before,
// oldest first.
func (s *SignalStore) ListAcknowledgedBefore(ctx context.Context, before time.Time) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM signals
		WHERE acknowledged AND ts < $1 ORDER BY ts ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list acknowledged signals: %w", err)
	}
	defer rows.Close()

	out, err := scanSignalRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan acknowledged signals: %w", err)
	}
	return out, nil
}

// DeleteAcknowledgedBefore removes acknowledged signals older than before. It is called
// by the archiver once the rows are safely in object storage.
func (s *SignalStore) DeleteAcknowledgedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE acknowledged AND ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.SignalStore = (*SignalStore)(nil)
