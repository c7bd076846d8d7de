package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fondarelay/internal/constants"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// scheduleParser accepts standard 5-field expressions and descriptors such
// as "@every 1m" or "@hourly".
var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Sweeper runs one reconcile pass.
type Sweeper interface {
	Sweep(ctx context.Context) (*SweepResult, error)
}

// ParseSchedule validates a sweep schedule expression.
func ParseSchedule(expr string) (cron.Schedule, error) {
	sched, err := scheduleParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", expr, err)
	}
	return sched, nil
}

type Scheduler struct {
	sweeper  Sweeper
	schedule cron.Schedule
	expr     string
	logger   *logrus.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

func NewScheduler(sweeper Sweeper, expr string, logger *logrus.Logger) (*Scheduler, error) {
	if expr == "" {
		expr = constants.DefaultReconcileSchedule
	}
	sched, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scheduler{
		sweeper:  sweeper,
		schedule: sched,
		expr:     expr,
		logger:   logger,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}, nil
}

// Start blocks, running a sweep at every scheduled tick until the context
// is cancelled or Stop is called. Sweeps never overlap: a tick that falls
// inside a running sweep is skipped.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.WithField("schedule", s.expr).Info("Starting reconcile scheduler")

	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Scheduler context cancelled, stopping")
			return
		case <-s.stopCh:
			timer.Stop()
			s.logger.Info("Scheduler stop signal received, stopping")
			return
		case <-timer.C:
			s.RunNow(ctx)
		}
	}
}

// Stop is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

// RunNow performs one sweep immediately.
func (s *Scheduler) RunNow(ctx context.Context) {
	start := s.now()
	result, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Reconcile sweep failed")
		return
	}

	fields := logrus.Fields{LogFieldDuration: s.now().Sub(start).Milliseconds()}
	if result != nil {
		fields[LogFieldRunID] = result.RunID
		fields[LogFieldCount] = result.Tenants
	}
	s.logger.WithFields(fields).Debug("Reconcile sweep finished")
}
