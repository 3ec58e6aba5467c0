package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SignalStore persists signals. Rows are immutable apart from the
// acknowledgment fields.
type SignalStore interface {
	Insert(ctx context.Context, sig Signal) error
	GetByID(ctx context.Context, id string) (Signal, error)
	// List returns the matching page ordered by timestamp descending together
	// with the total number of matches.
	List(ctx context.Context, filter SignalFilter, opts ListOpts) ([]Signal, int64, error)
	Acknowledge(ctx context.Context, id, by string, at time.Time) (Signal, error)
	// ListAcknowledgedBefore and DeleteAcknowledgedBefore feed the archiver.
	ListAcknowledgedBefore(ctx context.Context, before time.Time) ([]Signal, error)
	DeleteAcknowledgedBefore(ctx context.Context, before time.Time) (int64, error)
}

// WalletPositionStore persists positions keyed by (chain, wallet, token).
type WalletPositionStore interface {
	Get(ctx context.Context, chain, wallet, token string) (WalletPosition, error)
	Upsert(ctx context.Context, pos WalletPosition) error
	ListByWallet(ctx context.Context, wallet string) ([]WalletPosition, error)
	// ResetBaselines copies current amounts into the baseline for every
	// position of wallet, or for all positions when wallet is empty.
	ResetBaselines(ctx context.Context, wallet string) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// Audit event names.
const (
	AuditSignalCreated      = "signal.created"
	AuditSignalAcknowledged = "signal.acknowledged"
	AuditArchiveSignals     = "archive.signals"
)

// AuditFilter narrows an audit listing. EventPrefix "signal." matches every
// signal event.
type AuditFilter struct {
	ListOpts
	EventPrefix string
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// EvaluationRecorder receives every discovery evaluation for offline analysis.
type EvaluationRecorder interface {
	Record(ctx context.Context, evals []Evaluation) error
}
