// Package schedulersvc runs periodic maintenance jobs.
package schedulersvc

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/darasa/core"
)

// JobFunc is a periodic job; its context is cancelled when the scheduler stops.
type JobFunc func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	logger core.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func New(logger core.Logger) *Scheduler {
	cl := cronLogger{logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules job on `spec`, a cron expression or a descriptor like "@every 5m".
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := job(s.ctx); err != nil {
			s.logger.Error(fmt.Sprintf("scheduler: job %s failed: %v", name, err), err)
			return
		}
		s.logger.Debug(fmt.Sprintf("scheduler: job %s done in %s", name, time.Since(start)))
	})
	return errors.Wrapf(err, "scheduling job %s", name)
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops scheduling jobs, cancels the running ones & waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for jobs")
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	logger core.Logger
}

func fields(keysAndValues []interface{}) map[string]interface{} {
	f := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, fields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s: %v", msg, err), err, fields(keysAndValues))
}
