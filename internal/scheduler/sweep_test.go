package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"inventory-engine/internal/core"
)

type fakeSweeper struct {
	calls int
	res   core.SweepResult
	err   error
}

func (f *fakeSweeper) ExpireSweep(context.Context) (core.SweepResult, error) {
	f.calls++
	return f.res, f.err
}

type fakeLocker struct {
	held     bool
	failWith error
	released []string
}

func (f *fakeLocker) AcquireLock(_ context.Context, _, _ string, _ time.Duration) (bool, error) {
	if f.failWith != nil {
		return false, f.failWith
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, name, _ string) error {
	f.held = false
	f.released = append(f.released, name)
	return nil
}

type fakeObserver struct {
	seen []core.SweepResult
}

func (f *fakeObserver) ObserveSweep(res core.SweepResult, _ error) { f.seen = append(f.seen, res) }

func TestRunOnce_TakesAndReleasesLock(t *testing.T) {
	sw := &fakeSweeper{res: core.SweepResult{Scanned: 3, Expired: 2, Skipped: 1}}
	lk := &fakeLocker{}
	obs := &fakeObserver{}
	job := NewSweepJob(sw, lk, obs, zap.NewNop(), Config{Interval: time.Minute})

	res, ran, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 2, res.Expired)
	assert.Equal(t, []string{sweepLockName}, lk.released)
	assert.False(t, lk.held)
	require.Len(t, obs.seen, 1)
}

func TestRunOnce_SkipsWhenLockHeld(t *testing.T) {
	sw := &fakeSweeper{}
	job := NewSweepJob(sw, &fakeLocker{held: true}, nil, zap.NewNop(), Config{})

	_, ran, err := job.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)
	assert.Zero(t, sw.calls)
}

func TestRunOnce_LockError(t *testing.T) {
	sw := &fakeSweeper{}
	job := NewSweepJob(sw, &fakeLocker{failWith: errors.New("redis down")}, nil, zap.NewNop(), Config{})

	_, ran, err := job.RunOnce(context.Background())
	assert.Error(t, err)
	assert.False(t, ran)
	assert.Zero(t, sw.calls)
}

func TestRunOnce_WithoutLocker(t *testing.T) {
	sw := &fakeSweeper{err: errors.New("boom")}
	obs := &fakeObserver{}
	job := NewSweepJob(sw, nil, obs, zap.NewNop(), Config{})

	_, ran, err := job.RunOnce(context.Background())
	assert.Error(t, err)
	assert.True(t, ran)
	assert.Equal(t, 1, sw.calls)
	assert.Len(t, obs.seen, 1)
}

func TestNewSweepJob_Defaults(t *testing.T) {
	job := NewSweepJob(&fakeSweeper{}, nil, nil, zap.NewNop(), Config{})
	assert.Equal(t, 5*time.Minute, job.cfg.Interval)
	assert.Equal(t, 5*time.Minute, job.cfg.LockTTL)
	assert.Equal(t, 5*time.Minute, job.cfg.Timeout)
}
