package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/creditpool/internal/domain"
)

// Archiver moves run records past the retention window to cold storage on
// a cron schedule.
type Archiver struct {
	runs          domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(runs domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		runs:          runs,
		retentionDays: retentionDays,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run archives every run created before now minus the retention window.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	cutoff := a.now().AddDate(0, 0, -a.retentionDays)
	n, err := a.runs.ArchiveRuns(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archiving runs before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("runs_archived", n),
	)
	return n, nil
}

// RunCron runs the archiver whenever cronExpr fires until ctx is cancelled.
// A failed run is logged and retried at the next trigger.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))
	for {
		next, err := nextCronTime(cronExpr, a.now())
		if err != nil {
			return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
