package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jask/bankrecon/internal/logging"
)

// Cadences are cron expressions (minute hour dom month dow).
type Cadences struct {
	BusinessHours string
	OffHours      string
	Reconcile     string
}

// Scheduler triggers the Runner's batches on cron cadences. Only one batch
// runs at a time; a trigger that fires while another batch runs is skipped.
type Scheduler struct {
	runner  *Runner
	cron    *cron.Cron
	log     *zap.Logger
	timeout time.Duration

	running sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// New registers the cadences in loc. Empty cadences are not scheduled.
// timeout bounds a single batch; zero means no bound.
func New(runner *Runner, c Cadences, loc *time.Location, timeout time.Duration, logger *zap.Logger) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	log := logging.OrNop(logger)
	s := &Scheduler{
		runner:  runner,
		log:     log,
		timeout: timeout,
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.Recover(cronLogger{log.Sugar()})),
		),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	entries := []struct {
		name, spec string
		job        func(context.Context) (BatchResult, error)
	}{
		{"sync-business-hours", c.BusinessHours, runner.SyncAll},
		{"sync-off-hours", c.OffHours, runner.SyncAll},
		{"reconcile", c.Reconcile, runner.ReconcileAll},
	}
	for _, e := range entries {
		if e.spec == "" {
			continue
		}
		name, job := e.name, e.job
		if _, err := s.cron.AddFunc(e.spec, func() { s.Trigger(name, job) }); err != nil {
			return nil, fmt.Errorf("schedule %s %q: %w", name, e.spec, err)
		}
	}
	return s, nil
}

// Trigger runs job now unless another batch is running. It reports whether
// the job ran.
func (s *Scheduler) Trigger(name string, job func(context.Context) (BatchResult, error)) bool {
	if !s.running.TryLock() {
		s.log.Info("batch skipped, previous still running", zap.String("job", name))
		return false
	}
	defer s.running.Unlock()

	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	started := time.Now()
	res, err := job(ctx)
	if err != nil {
		s.log.Error("batch failed", zap.String("job", name), zap.Error(err))
		return true
	}
	s.log.Info("batch done",
		zap.String("job", name),
		zap.Int("failed", res.Failed),
		zap.Duration("took", time.Since(started)))
	return true
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop prevents new triggers, cancels a running batch and waits for it to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Entries lists the next run time of each scheduled job.
func (s *Scheduler) Entries() []time.Time {
	var out []time.Time
	for _, e := range s.cron.Entries() {
		out = append(out, e.Next)
	}
	return out
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "err", err)...)
}
