package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gniumg-source/clawfi-g-sub001/internal/domain"
)

// Job is a periodic maintenance task.
type Job struct {
	Name string
	// Cron is a five-field expression; see Schedule.
	Cron string
	Run  func(ctx context.Context) error
}

// Orchestrator runs every registered job on its schedule. When a
// LockManager is configured each run takes the lock "job:<name>" first, so
// replicas sharing a Redis do not run the same job twice.
type Orchestrator struct {
	jobs    []Job
	locks   domain.LockManager
	lockTTL time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator. locks may be nil.
func NewOrchestrator(locks domain.LockManager, lockTTL time.Duration, logger *slog.Logger, jobs ...Job) *Orchestrator {
	if lockTTL <= 0 {
		lockTTL = 10 * time.Minute
	}
	return &Orchestrator{
		jobs:    jobs,
		locks:   locks,
		lockTTL: lockTTL,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "orchestrator")),
	}
}

// Run validates every schedule and then blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	schedules := make([]Schedule, len(o.jobs))
	for i, job := range o.jobs {
		s, err := ParseSchedule(job.Cron)
		if err != nil {
			return fmt.Errorf("pipeline: job %s: %w", job.Name, err)
		}
		schedules[i] = s
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, job := range o.jobs {
		g.Go(func() error {
			o.loop(ctx, job, schedules[i])
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) loop(ctx context.Context, job Job, sched Schedule) {
	log := o.logger.With(slog.String("job", job.Name))
	log.Info("job scheduled", slog.String("cron", job.Cron))

	for {
		next, err := sched.Next(o.now())
		if err != nil {
			log.Error("job has no next run", slog.String("error", err.Error()))
			return
		}
		wait := time.Until(next)
		log.Debug("waiting for next run", slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if err := o.RunOnce(ctx, job); err != nil {
				log.Error("job run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce executes job immediately under its lock. A lock held elsewhere
// skips the run without error.
func (o *Orchestrator) RunOnce(ctx context.Context, job Job) error {
	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, "job:"+job.Name, o.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			o.logger.Info("job skipped, lock held elsewhere",
				slog.String("job", job.Name), slog.String("holder", o.holder(ctx, job.Name)))
			return nil
		}
		if err != nil {
			return fmt.Errorf("pipeline: lock %s: %w", job.Name, err)
		}
		defer unlock()
	}

	start := o.now()
	if err := job.Run(ctx); err != nil {
		return fmt.Errorf("pipeline: %s: %w", job.Name, err)
	}
	o.logger.Info("job finished", slog.String("job", job.Name), slog.Duration("took", o.now().Sub(start)))
	return nil
}

// HasJob reports whether a job called name is registered.
func (o *Orchestrator) HasJob(name string) bool {
	_, ok := o.find(name)
	return ok
}

// RunNamed runs the registered job called name once.
func (o *Orchestrator) RunNamed(ctx context.Context, name string) error {
	job, ok := o.find(name)
	if !ok {
		return fmt.Errorf("pipeline: job %s: %w", name, domain.ErrNotFound)
	}
	return o.RunOnce(ctx, job)
}

func (o *Orchestrator) find(name string) (Job, bool) {
	for _, j := range o.jobs {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

// holderLookup is implemented by lock managers that can name the current owner.
type holderLookup interface {
	Holder(ctx context.Context, key string) (string, error)
}

func (o *Orchestrator) holder(ctx context.Context, name string) string {
	h, ok := o.locks.(holderLookup)
	if !ok {
		return "unknown"
	}
	owner, err := h.Holder(ctx, "job:"+name)
	if err != nil || owner == "" {
		return "unknown"
	}
	return owner
}
