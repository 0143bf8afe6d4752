// Package scheduler runs the periodic maintenance jobs: the notification
// sweep and the anchoring reconciliation
package scheduler

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Job is a periodic unit of work
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Runs of the same job never overlap.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	timeout time.Duration
}

// New creates a Scheduler; each run gets ctx with the passed timeout
func New(ctx context.Context, timeout time.Duration) *Scheduler {
	logger := cron.PrintfLogger(log.StandardLogger())
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		ctx:     ctx,
		timeout: timeout,
	}
}

// Add schedules job under the passed cron spec, e.g. "@every 30s"
func (s *Scheduler) Add(name, spec string, job Job) error {
	if _, err := s.cron.AddFunc(spec, s.wrap(name, job)); err != nil {
		return errors.Wrapf(err, "invalid schedule %q for %s", spec, name)
	}
	log.WithFields(
		log.Fields{
			"job":      name,
			"schedule": spec,
		},
	).Info("scheduled job")
	return nil
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		ctx := s.ctx
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		start := time.Now()
		if err := job(ctx); err != nil {
			log.WithError(err).WithField("job", name).Error("scheduled job failed")
			return
		}
		log.WithFields(
			log.Fields{
				"job":      name,
				"duration": time.Since(start),
			},
		).Debug("scheduled job finished")
	}
}

// Start runs the scheduler in the background
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
