package tablesess

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Scheduler runs Store.ClearExpired on a cron schedule. Runs never overlap:
// a tick that fires while a sweep is still going is skipped.
type Scheduler struct {
	cron  *cron.Cron
	store Store
	log   logrus.FieldLogger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler accepts a standard 5-field cron expression or a descriptor
// such as "@hourly" or "@every 15m".
func NewScheduler(store Store, schedule string, log logrus.FieldLogger) (*Scheduler, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cronLog := cron.PrintfLogger(log)

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		store: store,
		log:   log,
		ctx:   context.Background(),
	}

	if _, err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("%w: sweep schedule %q: %v", ErrInvalidConfig, schedule, err)
	}
	return s, nil
}

// Start begins scheduling. Sweeps run with a context derived from ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
}

// Stop stops scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
}

// RunOnce sweeps immediately, outside the schedule.
func (s *Scheduler) RunOnce(ctx context.Context) (SweepResult, error) {
	return s.store.ClearExpired(ctx)
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	res, err := s.store.ClearExpired(ctx)
	if err != nil {
		s.log.WithError(err).WithField("deleted", res.Deleted).Warn("scheduled sweep failed")
		return
	}
	if res.Deleted > 0 {
		s.log.WithField("deleted", res.Deleted).Info("scheduled sweep removed expired sessions")
	}
}
