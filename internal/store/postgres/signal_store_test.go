package postgres

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

func newSignal(ts time.Time, sev domain.SignalSeverity, chain, token string) domain.Signal {
	return domain.Signal{
		ID:         uuid.NewString(),
		Timestamp:  ts,
		Severity:   sev,
		Type:       domain.SignalTypeMoltDetected,
		Title:      "t",
		Summary:    "s",
		Token:      token,
		Chain:      chain,
		Wallet:     "0xw",
		StrategyID: "molt",
	}
}

func TestSignalStoreEvidenceRoundTrip(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSignalStore(pool)
	ctx := context.Background()

	// Whitespace and key order must survive untouched.
	evidence := json.RawMessage(`{"wallet":"0xw",  "percentSold":70,"a":{"z":1,"b":[1, 2]}}`)
	sig := newSignal(time.Now().UTC().Truncate(time.Microsecond), domain.SeverityHigh, "base", "0xA")
	sig.Evidence = evidence
	sig.Metadata = map[string]any{"source": "test"}
	require.NoError(t, store.Insert(ctx, sig))

	got, err := store.GetByID(ctx, sig.ID)
	require.NoError(t, err)
	assert.Equal(t, string(evidence), string(got.Evidence))
	assert.Equal(t, "test", got.Metadata["source"])
	assert.True(t, sig.Timestamp.Equal(got.Timestamp))
	assert.False(t, got.Acknowledged)
}

func TestSignalStoreGetByIDMatchesUUIDColumn(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSignalStore(pool)
	ctx := context.Background()

	sig := newSignal(time.Now().UTC().Truncate(time.Microsecond), domain.SeverityLow, "base", "0xA")
	require.NoError(t, store.Insert(ctx, sig))

	got, err := store.GetByID(ctx, strings.ToUpper(sig.ID))
	require.NoError(t, err)
	assert.Equal(t, sig.ID, got.ID)

	for _, id := range []string{"", "not-a-uuid", sig.ID + "0", uuid.NewString()} {
		_, err := store.GetByID(ctx, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, "id %q", id)
	}

	// With sequential scans disabled the lookup must still resolve through
	// the primary key index.
	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer conn.Release()
	_, err = conn.Exec(ctx, `SET enable_seqscan = off`)
	require.NoError(t, err)
	defer conn.Exec(ctx, `RESET enable_seqscan`)

	rows, err := conn.Query(ctx, `EXPLAIN `+signalByIDQuery, sig.ID)
	require.NoError(t, err)
	plan, err := pgx.CollectRows(rows, pgx.RowTo[string])
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(plan, "\n"), "Seq Scan")
}

func TestSignalStoreListRejectsNegativePaging(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSignalStore(pool)

	_, _, err := store.List(context.Background(), domain.SignalFilter{}, domain.ListOpts{Offset: -1})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestSignalStoreListFilterAndPaging(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSignalStore(pool)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		require.NoError(t, store.Insert(ctx, newSignal(base.Add(time.Duration(i)*time.Minute), domain.SeverityHigh, "base", "0xA")))
	}
	require.NoError(t, store.Insert(ctx, newSignal(base, domain.SeverityLow, "base", "0xA")))
	require.NoError(t, store.Insert(ctx, newSignal(base, domain.SeverityHigh, "ethereum", "0xA")))

	f := domain.SignalFilter{Severity: domain.SeverityHigh, Chain: "BASE"}
	page1, total, err := store.List(ctx, f, domain.ListOpts{Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)
	require.Len(t, page1, 20)
	for i := 1; i < len(page1); i++ {
		assert.False(t, page1[i].Timestamp.After(page1[i-1].Timestamp))
	}

	page2, _, err := store.List(ctx, f, domain.ListOpts{Limit: 20, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, page2, 5)

	byToken, n, err := store.List(ctx, domain.SignalFilter{Token: "0xa"}, domain.ListOpts{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(27), n)
	assert.Len(t, byToken, 27)
}

func TestSignalStoreAcknowledge(t *testing.T) {
	pool := setupTestDB(t)
	store := NewSignalStore(pool)
	ctx := context.Background()

	_, err := store.Acknowledge(ctx, uuid.NewString(), "u1", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.Acknowledge(ctx, "not-a-uuid", "u1", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	sig := newSignal(time.Now().UTC(), domain.SeverityHigh, "base", "0xA")
	require.NoError(t, store.Insert(ctx, sig))

	at := time.Now().UTC().Truncate(time.Microsecond)
	got, err := store.Acknowledge(ctx, sig.ID, "u1", at)
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)
	assert.Equal(t, "u1", got.AcknowledgedBy)

	got, err = store.Acknowledge(ctx, sig.ID, "u2", at.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "u2", got.AcknowledgedBy)

	old, err := store.ListAcknowledgedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, old, 1)

	n, err := store.DeleteAcknowledgedBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
