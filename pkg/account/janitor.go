package account

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPurgeSchedule runs the reset token purge every quarter hour.
const DefaultPurgeSchedule = "@every 15m"

// jobTimeout bounds a single janitor run.
const jobTimeout = time.Minute

// Janitor runs periodic maintenance jobs on a cron schedule.
type Janitor struct {
	cron *cron.Cron
}

// NewJanitor returns an idle Janitor. Jobs that are still running when
// their next tick arrives are skipped.
func NewJanitor() *Janitor {
	return &Janitor{
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Schedule registers fn under name. Errors from fn are logged.
func (j *Janitor) Schedule(spec, name string, fn func(ctx context.Context) error) error {
	_, err := j.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			slog.Warn("janitor job failed", "job", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling %s (%q): %w", name, spec, err)
	}
	return nil
}

// SchedulePurge registers the reset token purge of svc.
func (j *Janitor) SchedulePurge(spec string, svc *Service) error {
	if spec == "" {
		spec = DefaultPurgeSchedule
	}
	return j.Schedule(spec, "reset_token_purge", func(ctx context.Context) error {
		_, err := svc.PurgeExpired(ctx)
		return err
	})
}

// Len returns the number of scheduled jobs.
func (j *Janitor) Len() int { return len(j.cron.Entries()) }

// Start runs the scheduler in its own goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the scheduler and waits for running jobs until ctx is done.
func (j *Janitor) Stop(ctx context.Context) {
	select {
	case <-j.cron.Stop().Done():
	case <-ctx.Done():
	}
}
