package resilience

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/contentstore"
	"github.com/defensechain/defensechain/internal/backoff"
	"github.com/defensechain/defensechain/storage/model"
)

// CompletionHook is called after a queued upload succeeded and before the job
// is removed
type CompletionHook func(ctx context.Context, job model.UploadJob, result *contentstore.UploadResult) error

// Worker processes due upload jobs
type Worker struct {
	queue      *Queue
	onComplete CompletionHook
	batchSize  int
	wg         sync.WaitGroup
}

// NewWorker creates a Worker for the passed Queue
func NewWorker(queue *Queue, onComplete CompletionHook) *Worker {
	return &Worker{
		queue:      queue,
		onComplete: onComplete,
		batchSize:  20,
	}
}

// ProcessDue attempts every due job once and returns the number of jobs that
// were uploaded
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	lease := w.queue.policy.Lease
	jobs, err := w.queue.jobs.Due(w.queue.now(), lease, w.batchSize)
	if err != nil {
		return 0, err
	}
	uploaded := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return uploaded, ctx.Err()
		}
		claimed, err := w.queue.jobs.Claim(job, w.queue.now(), lease)
		if err != nil {
			log.WithError(err).WithField("job", job.ID).Error("failed to claim upload job")
			continue
		}
		if !claimed {
			continue
		}
		if w.process(ctx, job) {
			uploaded++
		}
	}
	return uploaded, nil
}

func (w *Worker) process(ctx context.Context, job model.UploadJob) bool {
	logger := log.WithFields(
		log.Fields{
			"job":      job.ID,
			"filename": job.Filename,
			"attempt":  job.AttemptNumber,
		},
	)
	res, err := w.queue.client.Upload(ctx, job.FileBytes, job.Filename)
	if err == nil && w.onComplete != nil {
		err = w.onComplete(ctx, job, res)
	}
	if err == nil {
		if err = w.queue.jobs.Remove(job.ID); err != nil {
			logger.WithError(err).Error("failed to remove completed upload job")
		}
		logger.WithField("address", res.Address).Info("queued upload completed")
		return true
	}

	if job.Exhausted() {
		if ferr := w.queue.jobs.MarkFailed(job.ID, job.AttemptNumber, err.Error()); ferr != nil {
			logger.WithError(ferr).Error("failed to mark upload job as failed")
		}
		logger.WithError(err).Error("queued upload failed permanently")
		return false
	}
	next := w.queue.now().Add(backoff.Exponential(job.InitialDelay(), job.AttemptNumber))
	if rerr := w.queue.jobs.Reschedule(job.ID, job.AttemptNumber+1, next, err.Error()); rerr != nil {
		logger.WithError(rerr).Error("failed to reschedule upload job")
	}
	logger.WithError(err).WithField("next_attempt", next).Warn("queued upload failed, rescheduled")
	return false
}

// Start processes due jobs every interval and whenever the queue is kicked,
// until ctx is canceled
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			case <-w.queue.kick:
			}
			if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Error("failed to process upload jobs")
			}
		}
	}()
}

// Wait blocks until the loop started with Start has returned
func (w *Worker) Wait() {
	w.wg.Wait()
}
