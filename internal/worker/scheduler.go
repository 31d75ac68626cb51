package worker

import (
	"context"
	"fmt"
	"time"

	"listing-service/internal/util"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Locker is a distributed mutex, so only one replica runs a job at a time
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// JobFunc is one scheduled unit of work
type JobFunc func(ctx context.Context) error

// Scheduler runs periodic jobs on cron schedules
type Scheduler struct {
	cron    *cron.Cron
	locker  Locker
	lockTTL time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *zap.Logger
}

// NewScheduler creates a scheduler whose jobs hold a lock for at most lockTTL
func NewScheduler(locker Locker, lockTTL time.Duration) *Scheduler {
	logger := util.GetLogger()
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:    cron.New(cron.WithChain(cron.Recover(cronLogger))),
		locker:  locker,
		lockTTL: lockTTL,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Register adds a named job. Invalid schedules are returned as errors.
func (s *Scheduler) Register(name, schedule string, job JobFunc) error {
	if _, err := s.cron.AddFunc(schedule, func() { s.Run(s.ctx, name, job) }); err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", name, err)
	}
	s.logger.Info("Scheduled job", zap.String("job", name), zap.String("schedule", schedule))
	return nil
}

// Run executes job once if the job lock can be taken. It reports whether
// the job ran.
func (s *Scheduler) Run(ctx context.Context, name string, job JobFunc) bool {
	key := "scheduler:" + name
	token, err := s.locker.AcquireLock(ctx, key, s.lockTTL)
	if err != nil {
		s.logger.Warn("Failed to acquire job lock", zap.String("job", name), zap.Error(err))
		util.SweeperRunsTotal.WithLabelValues(name, "lock_error").Inc()
		return false
	}
	if token == "" {
		util.SweeperRunsTotal.WithLabelValues(name, "skipped").Inc()
		return false
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.Background(), key, token); err != nil {
			s.logger.Warn("Failed to release job lock", zap.String("job", name), zap.Error(err))
		}
	}()

	jctx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()

	start := time.Now()
	if err := job(jctx); err != nil {
		s.logger.Error("Scheduled job failed", zap.String("job", name), zap.Error(err))
		util.SweeperRunsTotal.WithLabelValues(name, "error").Inc()
		return true
	}
	s.logger.Debug("Scheduled job finished", zap.String("job", name), zap.Duration("took", time.Since(start)))
	util.SweeperRunsTotal.WithLabelValues(name, "ok").Inc()
	return true
}

// Start starts the cron loop
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and cancels running jobs. The returned context is
// done once they have returned.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}
