package storage

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// TasksStorage returns a TasksStorage
func (s *Storage) TasksStorage() *TasksStorage {
	return &TasksStorage{db: s.db}
}

// TasksStorage implements model.TasksStore
type TasksStorage struct {
	db *gorm.DB
}

// Enqueue stores new tasks
func (s *TasksStorage) Enqueue(tasks ...model.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return errors.Wrap(s.db.Create(&tasks).Error, "tasks: enqueue failed")
}

// Due returns runnable tasks ordered by their scheduled time. Tasks stuck in
// PROCESSING past their lease are returned as well.
func (s *TasksStorage) Due(now time.Time, lease time.Duration, limit int) ([]model.Task, error) {
	var tasks []model.Task
	err := s.db.Where(
		"(status IN ? AND next_run_at <= ?) OR (status = ? AND (processing_since IS NULL OR processing_since < ?))",
		[]model.TaskStatus{model.TaskPending, model.TaskRetry}, now,
		model.TaskProcessing, now.Add(-lease),
	).Order("next_run_at").Limit(limit).Find(&tasks).Error
	return tasks, errors.Wrap(err, "tasks: list due failed")
}

// Claim moves a task to PROCESSING if it still has the status it was read
// with. A PROCESSING task is only taken over once its lease has expired.
func (s *TasksStorage) Claim(task model.Task, now time.Time, lease time.Duration) (bool, error) {
	q := s.db.Model(&model.Task{}).Where("id = ? AND status = ?", task.ID, task.Status)
	if task.Status == model.TaskProcessing {
		q = q.Where("processing_since IS NULL OR processing_since < ?", now.Add(-lease))
	}
	res := q.Updates(
		map[string]any{
			"status":           model.TaskProcessing,
			"processing_since": now,
		},
	)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "tasks: claim failed")
	}
	return res.RowsAffected == 1, nil
}

// Complete marks a task as DONE
func (s *TasksStorage) Complete(id string) error {
	err := s.db.Model(&model.Task{}).Where("id = ?", id).
		Updates(
			map[string]any{
				"status":           model.TaskDone,
				"last_error":       "",
				"processing_since": nil,
			},
		).Error
	return errors.Wrap(err, "tasks: complete failed")
}

// Fail records a failed attempt
func (s *TasksStorage) Fail(id string, attempts int, final bool, nextRun time.Time, lastError string) error {
	status := model.TaskRetry
	if final {
		status = model.TaskFailed
	}
	err := s.db.Model(&model.Task{}).Where("id = ?", id).
		Updates(
			map[string]any{
				"status":           status,
				"attempts":         attempts,
				"next_run_at":      nextRun,
				"last_error":       lastError,
				"processing_since": nil,
			},
		).Error
	return errors.Wrap(err, "tasks: fail failed")
}

// Get returns a task by id
func (s *TasksStorage) Get(id string) (*model.Task, error) {
	var t model.Task
	if err := s.db.Where("id = ?", id).First(&t).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("task not found: %s", id)
		}
		return nil, errors.Wrap(err, "tasks: get failed")
	}
	return &t, nil
}

// List returns all tasks with the passed status; an empty status lists all tasks
func (s *TasksStorage) List(status model.TaskStatus) ([]model.Task, error) {
	var tasks []model.Task
	q := s.db.Order("created_at")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return tasks, errors.Wrap(q.Find(&tasks).Error, "tasks: list failed")
}

// Retry resets a FAILED task so it runs again with a fresh attempt budget
func (s *TasksStorage) Retry(id string, now time.Time) error {
	res := s.db.Model(&model.Task{}).
		Where("id = ? AND status = ?", id, model.TaskFailed).
		Updates(
			map[string]any{
				"status":      model.TaskPending,
				"attempts":    0,
				"next_run_at": now,
			},
		)
	if res.Error != nil {
		return errors.Wrap(res.Error, "tasks: retry failed")
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(id); err != nil {
			return err
		}
		return model.InvalidStateErrorFmt("task %s has not failed", id)
	}
	return nil
}

// Pending reports whether an unfinished task of kind exists for subject.
// Abandoned PROCESSING tasks are not counted.
func (s *TasksStorage) Pending(kind, subject string, now time.Time, lease time.Duration) (bool, error) {
	var count int64
	err := s.db.Model(&model.Task{}).
		Where("kind = ? AND subject = ?", kind, subject).
		Where(
			"status IN ? OR (status = ? AND processing_since >= ?)",
			[]model.TaskStatus{model.TaskPending, model.TaskRetry},
			model.TaskProcessing, now.Add(-lease),
		).Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "tasks: count pending failed")
	}
	return count > 0, nil
}
