package reconciler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

type Runner interface {
	ReconcileAll(ctx context.Context) (Report, error)
}

// Scheduler runs ReconcileAll once at start, then every interval and on Trigger.
// Runs never overlap: a trigger that arrives during a run is queued once.
type Scheduler struct {
	runner   Runner
	interval time.Duration

	triggerCh chan struct{}

	lastFireUnixNano    atomic.Int64
	lastTriggerUnixNano atomic.Int64
}

func NewScheduler(runner Runner, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Scheduler{
		runner:    runner,
		interval:  interval,
		triggerCh: make(chan struct{}, 1),
	}
}

// Trigger asks for an extra run and returns immediately (best-effort, non-blocking).
func (s *Scheduler) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type SchedulerStats struct {
	Interval      string     `json:"interval"`
	LastFireAt    *time.Time `json:"lastFireAt,omitempty"`
	LastTriggerAt *time.Time `json:"lastTriggerAt,omitempty"`
}

func (s *Scheduler) Stats() SchedulerStats {
	st := SchedulerStats{Interval: s.interval.String()}
	if n := s.lastFireUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastFireAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	return st
}

func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.fire(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.fire(ctx)
		case <-s.triggerCh:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	s.lastFireUnixNano.Store(time.Now().UTC().UnixNano())
	if _, err := s.runner.ReconcileAll(ctx); err != nil {
		slog.Error("reconcile all", "error", err.Error())
	}
}
