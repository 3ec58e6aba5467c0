package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gniumg-source/clawfi-g-sub001/internal/cache/memory"
	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

func TestScheduleNext(t *testing.T) {
	base := time.Date(2026, 3, 14, 10, 17, 30, 0, time.UTC) // Saturday

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, 3, 14, 10, 18, 0, 0, time.UTC)},
		{"*/15 * * * *", time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 3, 15, 3, 0, 0, 0, time.UTC)},
		{"0 3 1 * *", time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)},
		{"0 9-17/4 * * 1-5", time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)},
		{"20,40 10 * * *", time.Date(2026, 3, 14, 10, 20, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			s, err := ParseSchedule(tt.expr)
			require.NoError(t, err)
			got, err := s.Next(base)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseScheduleRejectsBadInput(t *testing.T) {
	for _, expr := range []string{"", "* * * *", "60 * * * *", "* 24 * * *", "*/0 * * * *", "5-1 * * * *", "a * * * *"} {
		_, err := ParseSchedule(expr)
		assert.Error(t, err, expr)
	}
}

func TestScheduleNoMatch(t *testing.T) {
	s, err := ParseSchedule("0 0 31 2 *")
	require.NoError(t, err)
	_, err = s.Next(time.Now())
	assert.Error(t, err)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	locks := memory.NewLockManager()
	unlock, err := locks.Acquire(ctx, "job:sweep", time.Minute)
	require.NoError(t, err)

	runs := 0
	job := Job{Name: "sweep", Cron: "* * * * *", Run: func(context.Context) error { runs++; return nil }}
	o := NewOrchestrator(locks, time.Minute, slog.Default(), job)

	require.NoError(t, o.RunOnce(ctx, job))
	assert.Zero(t, runs)

	unlock()
	require.NoError(t, o.RunOnce(ctx, job))
	assert.Equal(t, 1, runs)

	// The lock is released after the run.
	require.NoError(t, o.RunOnce(ctx, job))
	assert.Equal(t, 2, runs)
}

func TestRunOnceWrapsJobError(t *testing.T) {
	boom := errors.New("boom")
	job := Job{Name: "fail", Cron: "* * * * *", Run: func(context.Context) error { return boom }}
	o := NewOrchestrator(nil, 0, slog.Default(), job)
	err := o.RunOnce(context.Background(), job)
	assert.ErrorIs(t, err, boom)
}

func TestRunRejectsInvalidCron(t *testing.T) {
	o := NewOrchestrator(nil, 0, slog.Default(), Job{Name: "bad", Cron: "nope", Run: func(context.Context) error { return nil }})
	assert.Error(t, o.Run(context.Background()))
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(nil, 0, slog.Default(), Job{Name: "idle", Cron: "0 0 1 1 *", Run: func(context.Context) error { return nil }})
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

type fakeBlobArchiver struct {
	before time.Time
	n      int64
	err    error
}

func (f *fakeBlobArchiver) ArchiveSignals(_ context.Context, before time.Time) (int64, error) {
	f.before = before
	return f.n, f.err
}

func TestArchiverUsesRetentionCutoff(t *testing.T) {
	fake := &fakeBlobArchiver{n: 4}
	a := NewArchiver(fake, 90, slog.Default())
	a.now = func() time.Time { return time.Date(2026, 6, 30, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, a.Run(context.Background()))
	assert.Equal(t, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC), fake.before)

	fake.err = errors.New("s3 down")
	assert.Error(t, a.Run(context.Background()))

	job := a.Job("0 3 * * *")
	assert.Equal(t, "archive-signals", job.Name)
}

func TestRunNamed(t *testing.T) {
	runs := 0
	o := NewOrchestrator(nil, 0, slog.Default(), Job{Name: "sweep", Cron: "* * * * *", Run: func(context.Context) error { runs++; return nil }})
	assert.True(t, o.HasJob("sweep"))
	assert.False(t, o.HasJob("other"))
	require.NoError(t, o.RunNamed(context.Background(), "sweep"))
	assert.Equal(t, 1, runs)
	assert.ErrorIs(t, o.RunNamed(context.Background(), "other"), domain.ErrNotFound)
}
