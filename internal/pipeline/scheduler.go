package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Runner is the part of Pipeline the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (Report, error)
	Running() bool
}

// Scheduler runs the pipeline on a fixed interval and on demand. Each run
// starts in its own goroutine so the pipeline's guard, not the scheduler,
// decides whether overlapping triggers are skipped.
type Scheduler struct {
	runner     Runner
	interval   time.Duration
	runOnStart bool
	trigger    chan struct{}
	wg         sync.WaitGroup
}

type SchedulerOption func(*Scheduler)

func WithRunOnStart(v bool) SchedulerOption {
	return func(s *Scheduler) { s.runOnStart = v }
}

func NewScheduler(runner Runner, interval time.Duration, opts ...SchedulerOption) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s := &Scheduler{
		runner:   runner,
		interval: interval,
		trigger:  make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Trigger requests a run as soon as possible. Non-blocking.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Running() bool { return s.runner.Running() }

// Run blocks until ctx is cancelled and all started runs have returned.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("scheduler started", "interval", s.interval.String(), "run_on_start", s.runOnStart)
	if s.runOnStart {
		s.start(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			slog.Info("scheduler stopped")
			return
		case <-s.trigger:
			s.start(ctx)
		case <-ticker.C:
			s.start(ctx)
		}
	}
}

func (s *Scheduler) start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runOnce(ctx)
	}()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	_, err := s.runner.Run(ctx)
	if err == nil || errors.Is(err, ErrRunInProgress) {
		return
	}
	if ctx.Err() != nil {
		slog.Warn("scheduler: run interrupted by shutdown", "error", err)
		return
	}
	slog.Error("scheduler: pipeline run", "error", err)
}
