package clickhouse

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// EvaluationRecorder implements domain.EvaluationRecorder. Every evaluation,
// qualifying or not, becomes one row.
type EvaluationRecorder struct {
	conn  *Conn
	table string
}

// NewEvaluationRecorder creates a recorder writing to table.
func NewEvaluationRecorder(conn *Conn, table string) (*EvaluationRecorder, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("clickhouse: invalid table name %q", table)
	}
	return &EvaluationRecorder{conn: conn, table: table}, nil
}

// Compile-time interface check.
var _ domain.EvaluationRecorder = (*EvaluationRecorder)(nil)

// EnsureTable creates the evaluations table if it does not exist.
func (r *EvaluationRecorder) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			evaluated_at      DateTime64(3, 'UTC'),
			chain             LowCardinality(String),
			address           String,
			symbol            String,
			source            LowCardinality(String),
			volume_24h        Float64,
			liquidity         Float64,
			fdv               Float64,
			price_change_1h   Float64,
			buys_24h          UInt64,
			sells_24h         UInt64,
			momentum          UInt8,
			liquidity_score   UInt8,
			risk              UInt8,
			confidence        UInt8,
			composite         UInt8,
			conditions_passed UInt8,
			qualifies         Bool,
			passed            Array(String),
			flags             Array(String)
		) ENGINE = MergeTree
		ORDER BY (chain, address, evaluated_at)`, r.table)

	if err := r.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("clickhouse: create table %s: %w", r.table, err)
	}
	return nil
}

// Record appends evals in a single batch.
func (r *EvaluationRecorder) Record(ctx context.Context, evals []domain.Evaluation) error {
	if len(evals) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, "INSERT INTO "+r.table)
	if err != nil {
		return fmt.Errorf("clickhouse: prepare batch: %w", err)
	}

	for _, ev := range evals {
		c := ev.Candidate
		var passed []string
		for _, cond := range ev.Conditions {
			if cond.Passed {
				passed = append(passed, cond.Name)
			}
		}
		flags := make([]string, 0, len(c.Flags))
		for _, f := range c.Flags {
			flags = append(flags, f.Code)
		}

		err = batch.Append(
			ev.EvaluatedAt, c.Chain, c.Address, c.Symbol, c.Source,
			c.Volume24h, c.Liquidity, c.FDV, c.PriceChange1h,
			uint64(max(c.Buys24h, 0)), uint64(max(c.Sells24h, 0)),
			uint8(c.Scores.Momentum), uint8(c.Scores.Liquidity), uint8(c.Scores.Risk),
			uint8(c.Scores.Confidence), uint8(c.Scores.Composite),
			uint8(ev.ConditionsPassed), ev.Qualifies,
			nonNil(passed), flags,
		)
		if err != nil {
			return fmt.Errorf("clickhouse: append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("clickhouse: send batch: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
