// Package scheduler runs reconciliation cycles on a fixed cadence or on demand,
// never more than one at a time.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"pricewatch/internal/job"
)

var (
	ErrRunning = errors.New("a cycle is already running")
	ErrLocked  = errors.New("cycle lock is held by another replica")
)

type Runner interface {
	Run(ctx context.Context) (job.Report, error)
}

// Locker guards cycles across replicas. ok=false means another holder owns it.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, ok bool, err error)
}

type logger interface {
	Debugf(format string, v ...any)
	Infof(format string, v ...any)
	Warnf(format string, v ...any)
	Errorf(format string, v ...any)
}

type Result struct {
	Report job.Report `json:"report"`
	Err    error      `json:"-"`
}

type Scheduler struct {
	Runner Runner
	// Locker is optional.
	Locker       Locker
	Interval     time.Duration
	CycleTimeout time.Duration
	Logger       logger

	trigger chan struct{}
	running atomic.Bool

	mu   sync.RWMutex
	last *Result
}

func New(runner Runner, locker Locker, interval time.Duration, cycleTimeout time.Duration, l logger) *Scheduler {
	return &Scheduler{
		Runner:       runner,
		Locker:       locker,
		Interval:     interval,
		CycleTimeout: cycleTimeout,
		Logger:       l,
		trigger:      make(chan struct{}, 1),
	}
}

// Run blocks until ctx is done. A zero Interval disables the ticker and leaves
// only Trigger.
func (s *Scheduler) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if s.Interval > 0 {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	s.Logger.Infof("Run: Scheduler started, interval: %v", s.Interval)

	for {
		select {
		case <-ctx.Done():
			s.Logger.Infof("Run: Scheduler stopped, err: %v", ctx.Err())
			return ctx.Err()
		case <-tick:
		case <-s.trigger:
			s.Logger.Debugf("Run: Cycle triggered manually")
		}
		_, err := s.RunOnce(ctx)
		if err != nil && !errors.Is(err, ErrLocked) && !errors.Is(err, ErrRunning) {
			s.Logger.Errorf("Run: Cycle failed, err: %v", err)
		}
	}
}

// Trigger queues a cycle. It returns false if one is running or already queued.
func (s *Scheduler) Trigger() bool {
	if s.running.Load() {
		return false
	}
	select {
	case s.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) RunOnce(ctx context.Context) (job.Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return job.Report{}, ErrRunning
	}
	defer s.running.Store(false)

	if s.Locker != nil {
		unlock, ok, err := s.Locker.TryLock(ctx)
		if err != nil {
			return job.Report{}, errors.Wrap(err, "error acquiring cycle lock")
		}
		if !ok {
			s.Logger.Infof("RunOnce: Skipping cycle, lock is held by another replica")
			return job.Report{}, ErrLocked
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				s.Logger.Warnf("RunOnce: Error releasing cycle lock, err: %v", err)
			}
		}()
	}

	cycleCtx := ctx
	if s.CycleTimeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, s.CycleTimeout)
		defer cancel()
	}

	rep, err := s.Runner.Run(cycleCtx)
	s.mu.Lock()
	s.last = &Result{Report: rep, Err: err}
	s.mu.Unlock()
	return rep, err
}

// LastResult returns the outcome of the most recent cycle that ran.
func (s *Scheduler) LastResult() (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}
