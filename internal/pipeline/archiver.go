package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

const archiveLockKey = "archive:order_flow"

// Archiver exports detections older than the retention window to cold
// storage. Runs are serialized across replicas with a distributed lock.
type Archiver struct {
	blob          domain.Archiver
	locks         domain.LockManager
	retentionDays int
	lockTTL       time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an Archiver. locks may be nil for single-replica use.
func NewArchiver(blob domain.Archiver, locks domain.LockManager, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &Archiver{
		blob:          blob,
		locks:         locks,
		retentionDays: retentionDays,
		lockTTL:       30 * time.Minute,
		logger:        logger.With(slog.String("component", "archiver")),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Run executes a single archive pass and returns the number of rows moved.
// A pass already running elsewhere is skipped without error.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, a.lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive run skipped, lock held elsewhere")
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("archiver: acquire lock: %w", err)
		}
		defer unlock()
	}

	cutoff := a.now().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	n, err := a.blob.ArchiveDetections(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archiving detections before %v: %w", cutoff, err)
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int64("detections_archived", n))
	return n, nil
}

// RunCron runs the archiver on a cron schedule until ctx is cancelled.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.next(a.now())
		if err != nil {
			return err
		}
		wait := time.Until(next)
		a.logger.Debug("archiver waiting for next cron trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
