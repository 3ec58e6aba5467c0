package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// Archiver moves acknowledged signals older than the retention window into
// cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver archives acknowledged signals older than retentionDays.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff is the creation time before which acknowledged signals are archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().AddDate(0, 0, -a.retentionDays)
}

// Run performs one archive pass.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.Cutoff()
	a.logger.Info("starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blobArchiver.ArchiveSignals(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving signals before %v: %w", cutoff, err)
	}
	a.logger.Info("archive run complete", slog.Int64("signals_archived", n))
	return nil
}

// Job adapts the archiver for the orchestrator.
func (a *Archiver) Job(cron string) Job {
	return Job{Name: "archive-signals", Cron: cron, Run: a.Run}
}
