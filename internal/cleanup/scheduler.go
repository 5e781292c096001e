package cleanup

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/aatumaykin/ecardcut/internal/logger"
	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// intervalSchedule fires a fixed duration after the previous run finished.
// Unlike cron.Every it keeps sub-second precision.
type intervalSchedule time.Duration

func (i intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// ParseSchedule parses a cron expression (seconds field optional) or a
// descriptor such as "@every 5m" or "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}
	return sched, nil
}

// Start runs a sweep immediately and then every interval until Stop.
// Calling Start while the loop is running does nothing.
func (s *Sweeper) Start(interval time.Duration) error {
	if interval <= 0 {
		return &ConfigError{Field: "interval", Message: "must be greater than zero"}
	}
	return s.StartSchedule(intervalSchedule(interval))
}

// StartSchedule is Start with an arbitrary schedule.
func (s *Sweeper) StartSchedule(sched cron.Schedule) error {
	if sched == nil {
		return &ConfigError{Field: "schedule", Message: "schedule is required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("retention sweeper started",
		logger.Field{Key: "retention", Value: s.retention.String()},
		logger.Field{Key: "dirs", Value: len(s.dirs)})

	go s.loop(ctx, sched, s.done)
	return nil
}

// Stop cancels the background loop and waits up to the stop timeout for it
// to exit. It is safe to call when the loop was never started.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Info("retention sweeper stopped")
	case <-timer.C:
		s.logger.Warn("retention sweeper did not stop in time",
			logger.Field{Key: "timeout", Value: s.stopTimeout.String()})
	}
}

// Running reports whether the background loop is active.
func (s *Sweeper) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Sweeper) loop(ctx context.Context, sched cron.Schedule, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		if s.done == done {
			// The loop ended on its own; Stop has not claimed it.
			s.cancel()
			s.running = false
			s.cancel = nil
			s.done = nil
		}
		s.mu.Unlock()
		close(done)
	}()

	s.scheduledSweep(ctx)

	for {
		now := time.Now()
		next := sched.Next(now)
		if next.IsZero() {
			s.logger.Warn("sweep schedule has no further activations")
			return
		}

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.scheduledSweep(ctx)
		}
	}
}

// scheduledSweep runs one loop sweep. A panic is logged and the loop keeps
// its schedule.
func (s *Sweeper) scheduledSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled sweep panicked", fmt.Errorf("%v", r),
				logger.Field{Key: "stack", Value: string(debug.Stack())})
		}
	}()
	s.sweep(ctx, KindScheduled)
}
