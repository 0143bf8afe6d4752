package defensechain

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/storage/model"
)

// RetryTask puts a FAILED outbox task back into the queue
func (w *Workflow) RetryTask(_ context.Context, id string) error {
	if err := w.backends.Tasks.Retry(id, w.now()); err != nil {
		return err
	}
	log.WithField("task", id).Info("failed task rescheduled")
	if w.kicker != nil {
		w.kicker.Kick()
	}
	return nil
}

// RetryNotification puts a FAILED notification back into the queue
func (w *Workflow) RetryNotification(_ context.Context, id string) error {
	if err := w.backends.Notifications.Retry(id, w.now()); err != nil {
		return err
	}
	log.WithField("notification", id).Info("failed notification rescheduled")
	return nil
}

// RetryUpload resets a FAILED upload job
func (w *Workflow) RetryUpload(_ context.Context, id string) error {
	return w.uploads.Retry(id)
}

// FailedWork lists everything that ran out of attempts and waits for an operator
type FailedWork struct {
	Uploads       []model.UploadJob    `json:"uploads"`
	Tasks         []model.Task         `json:"tasks"`
	Notifications []model.Notification `json:"notifications"`
}

// Failed returns the FAILED upload jobs, tasks and notifications
func (w *Workflow) Failed(_ context.Context) (*FailedWork, error) {
	uploads, err := w.uploads.Jobs().List(model.UploadJobFailed)
	if err != nil {
		return nil, err
	}
	tasks, err := w.backends.Tasks.List(model.TaskFailed)
	if err != nil {
		return nil, err
	}
	notes, err := w.backends.Notifications.List(model.NotificationFailed)
	if err != nil {
		return nil, err
	}
	return &FailedWork{
		Uploads:       uploads,
		Tasks:         tasks,
		Notifications: notes,
	}, nil
}
