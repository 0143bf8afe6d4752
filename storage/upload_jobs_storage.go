package storage

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// UploadJobsStorage returns an UploadJobsStorage
func (s *Storage) UploadJobsStorage() *UploadJobsStorage {
	return &UploadJobsStorage{db: s.db}
}

// UploadJobsStorage implements model.UploadJobStore in the database
type UploadJobsStorage struct {
	db *gorm.DB
}

// Add stores a new job
func (s *UploadJobsStorage) Add(job model.UploadJob) error {
	return errors.Wrap(s.db.Create(&job).Error, "upload jobs: add failed")
}

// Get returns a job by id
func (s *UploadJobsStorage) Get(id string) (*model.UploadJob, error) {
	var j model.UploadJob
	if err := s.db.Where("id = ?", id).First(&j).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("upload job not found: %s", id)
		}
		return nil, errors.Wrap(err, "upload jobs: get failed")
	}
	return &j, nil
}

// Due returns WAITING jobs whose next attempt is due and ACTIVE jobs whose
// worker stopped renewing them
func (s *UploadJobsStorage) Due(now time.Time, lease time.Duration, limit int) ([]model.UploadJob, error) {
	var jobs []model.UploadJob
	err := s.db.Where(
		"(status = ? AND next_attempt_at <= ?) OR (status = ? AND (processing_since IS NULL OR processing_since < ?))",
		model.UploadJobWaiting, now, model.UploadJobActive, now.Add(-lease),
	).Order("next_attempt_at").Limit(limit).Find(&jobs).Error
	return jobs, errors.Wrap(err, "upload jobs: list due failed")
}

// Claim moves a due job to ACTIVE. An ACTIVE job is only taken over once its
// lease has expired.
func (s *UploadJobsStorage) Claim(job model.UploadJob, now time.Time, lease time.Duration) (bool, error) {
	q := s.db.Model(&model.UploadJob{}).Where("id = ? AND status = ?", job.ID, job.Status)
	if job.Status == model.UploadJobActive {
		q = q.Where("processing_since IS NULL OR processing_since < ?", now.Add(-lease))
	}
	res := q.Updates(
		map[string]any{
			"status":           model.UploadJobActive,
			"processing_since": now,
		},
	)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "upload jobs: claim failed")
	}
	return res.RowsAffected == 1, nil
}

// Reschedule puts a job back to WAITING
func (s *UploadJobsStorage) Reschedule(id string, attempt int, next time.Time, lastError string) error {
	return s.update(id, model.UploadJobWaiting, attempt, &next, lastError)
}

// MarkFailed keeps an exhausted job as FAILED
func (s *UploadJobsStorage) MarkFailed(id string, attempt int, lastError string) error {
	return s.update(id, model.UploadJobFailed, attempt, nil, lastError)
}

func (s *UploadJobsStorage) update(
	id string, status model.UploadJobStatus, attempt int, next *time.Time, lastError string,
) error {
	values := map[string]any{
		"status":           status,
		"attempt_number":   attempt,
		"last_error":       lastError,
		"processing_since": nil,
	}
	if next != nil {
		values["next_attempt_at"] = *next
	}
	res := s.db.Model(&model.UploadJob{}).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return errors.Wrap(res.Error, "upload jobs: update failed")
	}
	if res.RowsAffected == 0 {
		return model.NotFoundErrorFmt("upload job not found: %s", id)
	}
	return nil
}

// Reset puts a FAILED job back to WAITING
func (s *UploadJobsStorage) Reset(id string, now time.Time) error {
	res := s.db.Model(&model.UploadJob{}).
		Where("id = ? AND status = ?", id, model.UploadJobFailed).
		Updates(
			map[string]any{
				"status":          model.UploadJobWaiting,
				"attempt_number":  1,
				"next_attempt_at": now,
			},
		)
	if res.Error != nil {
		return errors.Wrap(res.Error, "upload jobs: reset failed")
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(id); err != nil {
			return err
		}
		return model.InvalidStateErrorFmt("upload job %s has not failed", id)
	}
	return nil
}

// Remove deletes a job
func (s *UploadJobsStorage) Remove(id string) error {
	return errors.Wrap(s.db.Where("id = ?", id).Delete(&model.UploadJob{}).Error, "upload jobs: remove failed")
}

// List returns jobs with the passed status; an empty status lists all jobs
func (s *UploadJobsStorage) List(status model.UploadJobStatus) ([]model.UploadJob, error) {
	var jobs []model.UploadJob
	q := s.db.Order("created_at")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return jobs, errors.Wrap(q.Find(&jobs).Error, "upload jobs: list failed")
}
