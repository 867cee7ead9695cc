package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"inventory-engine/internal/core"
)

const sweepLockName = "reservation-sweep"

type Sweeper interface {
	ExpireSweep(ctx context.Context) (core.SweepResult, error)
}

// Locker keeps the sweep on one instance when several run against the same
// database. Implemented by cache.Locker.
type Locker interface {
	AcquireLock(ctx context.Context, name, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
}

type SweepObserver interface {
	ObserveSweep(res core.SweepResult, err error)
}

type Config struct {
	Interval time.Duration
	LockTTL  time.Duration
	Timeout  time.Duration
}

// SweepJob runs the reservation expiry sweep on a fixed interval.
type SweepJob struct {
	sweeper  Sweeper
	locker   Locker
	observer SweepObserver
	log      *zap.Logger
	cfg      Config
	s        *gocron.Scheduler
}

// NewSweepJob wires the job. locker and observer may be nil.
func NewSweepJob(sweeper Sweeper, locker Locker, observer SweepObserver, log *zap.Logger, cfg Config) *SweepJob {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.LockTTL
	}
	return &SweepJob{
		sweeper:  sweeper,
		locker:   locker,
		observer: observer,
		log:      log,
		cfg:      cfg,
		s:        gocron.NewScheduler(time.UTC),
	}
}

func (j *SweepJob) Start() error {
	if _, err := j.s.Every(j.cfg.Interval).SingletonMode().Do(j.tick); err != nil {
		return fmt.Errorf("schedule reservation sweep: %w", err)
	}
	j.s.StartAsync()
	j.log.Info("reservation sweep scheduled", zap.Duration("interval", j.cfg.Interval))
	return nil
}

func (j *SweepJob) Stop() {
	j.s.Stop()
}

func (j *SweepJob) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), j.cfg.Timeout)
	defer cancel()
	_, _, _ = j.RunOnce(ctx)
}

// RunOnce performs a single sweep. ran is false when another instance holds
// the lock.
func (j *SweepJob) RunOnce(ctx context.Context) (res core.SweepResult, ran bool, err error) {
	if j.locker != nil {
		token := uuid.NewString()
		ok, lockErr := j.locker.AcquireLock(ctx, sweepLockName, token, j.cfg.LockTTL)
		if lockErr != nil {
			j.log.Warn("sweep lock unavailable, skipping run", zap.Error(lockErr))
			return res, false, lockErr
		}
		if !ok {
			j.log.Debug("sweep already running elsewhere")
			return res, false, nil
		}
		defer func() {
			if relErr := j.locker.ReleaseLock(context.WithoutCancel(ctx), sweepLockName, token); relErr != nil {
				j.log.Warn("failed to release sweep lock", zap.Error(relErr))
			}
		}()
	}

	res, err = j.sweeper.ExpireSweep(ctx)
	if j.observer != nil {
		j.observer.ObserveSweep(res, err)
	}
	if err != nil {
		j.log.Error("reservation sweep failed", zap.Error(err))
	}
	return res, true, err
}
