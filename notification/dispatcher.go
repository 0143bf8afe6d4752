package notification

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/internal/backoff"
	"github.com/defensechain/defensechain/storage/model"
)

// DefaultRetryDelay is the delay before the first retry of a failed delivery
const DefaultRetryDelay = time.Minute

// Dispatcher delivers due notifications
type Dispatcher struct {
	store      model.NotificationsStore
	mailer     Mailer
	renderer   *Renderer
	retryDelay time.Duration
	lease      time.Duration
	batchSize  int
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(store model.NotificationsStore, mailer Mailer, retryDelay time.Duration) (*Dispatcher, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}
	return &Dispatcher{
		store:      store,
		mailer:     mailer,
		renderer:   renderer,
		retryDelay: retryDelay,
		lease:      model.DefaultNotificationLease,
		batchSize:  50,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// SweepResult summarizes a Sweep
type SweepResult struct {
	Sent   int `json:"sent"`
	Retry  int `json:"retry"`
	Failed int `json:"failed"`
}

// Sweep delivers all due PENDING and RETRY notifications and takes over
// those whose delivery was interrupted. Delivery failures are recorded on the
// notification and never returned.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	due, err := d.store.Due(d.now(), d.lease, d.batchSize)
	if err != nil {
		return res, err
	}
	for _, n := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		claimed, err := d.store.Claim(n, d.now(), d.lease)
		if err != nil {
			log.WithError(err).WithField("notification", n.ID).Error("failed to claim notification")
			continue
		}
		if !claimed {
			continue
		}
		switch d.deliver(ctx, n) {
		case model.NotificationSent:
			res.Sent++
		case model.NotificationRetry:
			res.Retry++
		case model.NotificationFailed:
			res.Failed++
		}
	}
	return res, nil
}

func (d *Dispatcher) deliver(ctx context.Context, n model.Notification) model.NotificationStatus {
	logger := log.WithFields(
		log.Fields{
			"notification": n.ID,
			"kind":         n.Kind,
			"recipient":    n.Recipient,
		},
	)
	body, err := d.renderer.Render(n)
	if err == nil {
		err = d.mailer.SendEmail(ctx, n.Recipient, n.Subject, body)
	}
	if err == nil {
		if err = d.store.MarkSent(n.ID, d.now()); err != nil {
			logger.WithError(err).Error("failed to mark notification as sent")
		}
		return model.NotificationSent
	}

	retries := n.RetryCount + 1
	status := model.NotificationRetry
	if retries > n.MaxRetries {
		status = model.NotificationFailed
	}
	next := d.now().Add(backoff.Exponential(d.retryDelay, retries))
	if merr := d.store.MarkFailed(n.ID, status, retries, next, err.Error()); merr != nil {
		logger.WithError(merr).Error("failed to record notification failure")
	}
	if status == model.NotificationFailed {
		logger.WithError(err).Error("notification delivery failed permanently")
	} else {
		logger.WithError(err).Warn("notification delivery failed, will retry")
	}
	return status
}
