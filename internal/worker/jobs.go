package worker

import (
	"context"

	"go.uber.org/zap"
)

// Job names, also used as lock keys and metric labels
const (
	JobReconcile   = "reconcile-payments"
	JobExpire      = "expire-listings"
	JobRenewalBump = "renewal-bump"
)

// ListingJobs are the time-driven listing transitions
type ListingJobs interface {
	ExpireSweep(ctx context.Context, limit int) (int, error)
	ReleaseRenewalBumps(ctx context.Context, limit int) (int, error)
}

// Schedules holds the cron expression of each job
type Schedules struct {
	Reconcile   string
	Expire      string
	RenewalBump string
	BatchSize   int
}

// RegisterJobs schedules the reconciliation, expiry and renewal bump jobs
func RegisterJobs(s *Scheduler, sweeper *ReconciliationSweeper, listings ListingJobs, sched Schedules) error {
	err := s.Register(JobReconcile, sched.Reconcile, func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx)
		return err
	})
	if err != nil {
		return err
	}

	err = s.Register(JobExpire, sched.Expire, func(ctx context.Context) error {
		n, err := listings.ExpireSweep(ctx, sched.BatchSize)
		if n > 0 {
			s.logger.Info("Expired listings", zap.Int("count", n))
		}
		return err
	})
	if err != nil {
		return err
	}

	return s.Register(JobRenewalBump, sched.RenewalBump, func(ctx context.Context) error {
		n, err := listings.ReleaseRenewalBumps(ctx, sched.BatchSize)
		if n > 0 {
			s.logger.Info("Released renewal bumps", zap.Int("count", n))
		}
		return err
	})
}
