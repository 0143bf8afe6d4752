package storage

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// NotificationsStorage returns a NotificationsStorage
func (s *Storage) NotificationsStorage() *NotificationsStorage {
	return &NotificationsStorage{db: s.db}
}

// NotificationsStorage implements model.NotificationsStore
type NotificationsStorage struct {
	db *gorm.DB
}

// Enqueue stores new notifications
func (s *NotificationsStorage) Enqueue(notifications ...model.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return errors.Wrap(s.db.Create(&notifications).Error, "notifications: enqueue failed")
}

// Due returns notifications that should be delivered now, including those
// left in PROCESSING by an interrupted sweep
func (s *NotificationsStorage) Due(now time.Time, lease time.Duration, limit int) ([]model.Notification, error) {
	var out []model.Notification
	err := s.db.Where(
		"(status IN ? AND next_attempt_at <= ?) OR (status = ? AND (processing_since IS NULL OR processing_since < ?))",
		[]model.NotificationStatus{model.NotificationPending, model.NotificationRetry}, now,
		model.NotificationProcessing, now.Add(-lease),
	).Order("next_attempt_at").Limit(limit).Find(&out).Error
	return out, errors.Wrap(err, "notifications: list due failed")
}

// Claim moves a notification to PROCESSING if it still has the status it was
// read with
func (s *NotificationsStorage) Claim(n model.Notification, now time.Time, lease time.Duration) (bool, error) {
	q := s.db.Model(&model.Notification{}).Where("id = ? AND status = ?", n.ID, n.Status)
	if n.Status == model.NotificationProcessing {
		q = q.Where("processing_since IS NULL OR processing_since < ?", now.Add(-lease))
	}
	res := q.Updates(
		map[string]any{
			"status":           model.NotificationProcessing,
			"processing_since": now,
		},
	)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "notifications: claim failed")
	}
	return res.RowsAffected == 1, nil
}

// MarkSent marks a notification as delivered
func (s *NotificationsStorage) MarkSent(id string, at time.Time) error {
	err := s.db.Model(&model.Notification{}).Where("id = ?", id).
		Updates(
			map[string]any{
				"status":           model.NotificationSent,
				"sent_at":          at,
				"last_error":       "",
				"processing_since": nil,
			},
		).Error
	return errors.Wrap(err, "notifications: mark sent failed")
}

// MarkFailed records a failed delivery
func (s *NotificationsStorage) MarkFailed(
	id string, status model.NotificationStatus, retryCount int, nextAttempt time.Time, lastError string,
) error {
	err := s.db.Model(&model.Notification{}).Where("id = ?", id).
		Updates(
			map[string]any{
				"status":           status,
				"retry_count":      retryCount,
				"next_attempt_at":  nextAttempt,
				"last_error":       lastError,
				"processing_since": nil,
			},
		).Error
	return errors.Wrap(err, "notifications: mark failed failed")
}

// Get returns a notification by id
func (s *NotificationsStorage) Get(id string) (*model.Notification, error) {
	var n model.Notification
	if err := s.db.Where("id = ?", id).First(&n).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("notification not found: %s", id)
		}
		return nil, errors.Wrap(err, "notifications: get failed")
	}
	return &n, nil
}

// List returns all notifications with the passed status; an empty status lists all
func (s *NotificationsStorage) List(status model.NotificationStatus) ([]model.Notification, error) {
	var out []model.Notification
	q := s.db.Order("created_at")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return out, errors.Wrap(q.Find(&out).Error, "notifications: list failed")
}

// Retry resets a FAILED notification
func (s *NotificationsStorage) Retry(id string, now time.Time) error {
	res := s.db.Model(&model.Notification{}).
		Where("id = ? AND status = ?", id, model.NotificationFailed).
		Updates(
			map[string]any{
				"status":          model.NotificationPending,
				"retry_count":     0,
				"next_attempt_at": now,
			},
		)
	if res.Error != nil {
		return errors.Wrap(res.Error, "notifications: retry failed")
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(id); err != nil {
			return err
		}
		return model.InvalidStateErrorFmt("notification %s has not failed", id)
	}
	return nil
}
