package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// SignalArchiveStore is the slice of the signal store the archiver needs.
type SignalArchiveStore interface {
	ListAcknowledgedBefore(ctx context.Context, before time.Time) ([]domain.Signal, error)
	DeleteAcknowledgedBefore(ctx context.Context, before time.Time) (int64, error)
}

// ObjectReader fetches an existing archive object. Get must return an error
// wrapping domain.ErrNotFound when the object does not exist.
type ObjectReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}

// SignalArchiver moves acknowledged signals into monthly JSONL objects and
// then removes them from the primary store.
type SignalArchiver struct {
	writer domain.BlobWriter
	reader ObjectReader
	store  SignalArchiveStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewSignalArchiver wires the archiver. reader may be nil, in which case
// every run overwrites the month objects it touches.
func NewSignalArchiver(
	writer domain.BlobWriter,
	reader ObjectReader,
	store SignalArchiveStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *SignalArchiver {
	return &SignalArchiver{
		writer: writer,
		reader: reader,
		store:  store,
		audit:  audit,
		logger: logger.With(slog.String("component", "signal-archiver")),
	}
}

var _ domain.Archiver = (*SignalArchiver)(nil)

// ArchiveSignals uploads every acknowledged signal created before the cutoff,
// grouped by the month of its timestamp, and deletes the rows only after all
// uploads succeed. Signals already present in a month object are not written
// twice, so a run that failed between upload and delete can be repeated.
func (a *SignalArchiver) ArchiveSignals(ctx context.Context, before time.Time) (int64, error) {
	sigs, err := a.store.ListAcknowledgedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals query: %w", err)
	}
	if len(sigs) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]domain.Signal)
	for _, sig := range sigs {
		path := archivePath("signals", sig.Timestamp.UTC())
		byMonth[path] = append(byMonth[path], sig)
	}
	paths := make([]string, 0, len(byMonth))
	for p := range byMonth {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := a.appendMonth(ctx, path, byMonth[path]); err != nil {
			return 0, err
		}
	}

	deleted, err := a.store.DeleteAcknowledgedBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive signals delete: %w", err)
	}

	count := int64(len(sigs))
	a.logger.InfoContext(ctx, "signals archived",
		slog.Int64("count", count),
		slog.Int64("deleted", deleted),
		slog.Int("objects", len(paths)),
	)
	if err := a.audit.Log(ctx, domain.AuditArchiveSignals, map[string]any{
		"paths":   paths,
		"count":   count,
		"deleted": deleted,
		"before":  before.UTC().Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive signals audit log: %w", err)
	}
	return count, nil
}

func (a *SignalArchiver) appendMonth(ctx context.Context, path string, sigs []domain.Signal) error {
	existing, seen, err := a.loadExisting(ctx, path)
	if err != nil {
		return err
	}

	fresh := sigs[:0:0]
	for _, sig := range sigs {
		if _, dup := seen[sig.ID]; !dup {
			fresh = append(fresh, sig)
		}
	}
	if len(fresh) == 0 {
		return nil
	}

	buf, err := marshalJSONL(fresh)
	if err != nil {
		return fmt.Errorf("s3blob: archive signals marshal: %w", err)
	}
	body := append(existing, buf...)
	if err := a.writer.Put(ctx, path, bytes.NewReader(body), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive signals upload %s: %w", path, err)
	}
	return nil
}

// loadExisting returns the current object body and the signal ids it holds.
func (a *SignalArchiver) loadExisting(ctx context.Context, path string) ([]byte, map[string]struct{}, error) {
	seen := make(map[string]struct{})
	if a.reader == nil {
		return nil, seen, nil
	}
	rc, err := a.reader.Get(ctx, path)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, seen, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: archive signals read %s: %w", path, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("s3blob: archive signals read %s: %w", path, err)
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var row struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(sc.Bytes(), &row) == nil && row.ID != "" {
			seen[row.ID] = struct{}{}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("s3blob: archive signals scan %s: %w", path, err)
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	return data, seen, nil
}

// archivePath builds "archive/<kind>/<YYYY-MM>.jsonl".
func archivePath(kind string, at time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, at.Format("2006-01"))
}

func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
