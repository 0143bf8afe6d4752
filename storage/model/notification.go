package model

import (
	"time"

	"gorm.io/datatypes"
)

// DefaultNotificationMaxRetries is the number of retries a notification gets
// after its first failed delivery
const DefaultNotificationMaxRetries = 3

// NotificationKind names the workflow event a notification is about
type NotificationKind string

// Constants for NotificationKind
const (
	NotifyApprovalRequired    NotificationKind = "approval_required"
	NotifyApprovalRejected    NotificationKind = "approval_rejected"
	NotifyRejectionOverridden NotificationKind = "rejection_overridden"
	NotifyDefenseCanceled     NotificationKind = "defense_canceled"
	NotifyDefenseRescheduled  NotificationKind = "defense_rescheduled"
	NotifyResultAvailable     NotificationKind = "result_available"
)

// Notification is a queued e-mail to a human
type Notification struct {
	ID            string             `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	Kind          NotificationKind   `gorm:"type:varchar(32);index" json:"kind"`
	Recipient     string             `json:"recipient"`
	Subject       string             `json:"subject"`
	Data          datatypes.JSON     `json:"data"`
	Status        NotificationStatus `gorm:"type:varchar(16);index" json:"status"`
	RetryCount    int                `json:"retry_count"`
	MaxRetries    int                `json:"max_retries"`
	NextAttemptAt time.Time          `gorm:"index" json:"next_attempt_at"`
	LastError     string             `gorm:"type:text" json:"last_error,omitempty"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	// ProcessingSince is set while a sweep is delivering the notification
	ProcessingSince *time.Time `gorm:"index" json:"processing_since,omitempty"`
}

// DefaultNotificationLease is how long a claimed notification may stay in
// PROCESSING before a later sweep picks it up again
const DefaultNotificationLease = 5 * time.Minute

// NotificationsStore persists notifications
type NotificationsStore interface {
	Enqueue(notifications ...Notification) error
	// Due returns up to limit PENDING or RETRY notifications whose
	// NextAttemptAt has passed and PROCESSING ones claimed longer than lease
	// ago
	Due(now time.Time, lease time.Duration, limit int) ([]Notification, error)
	// Claim moves a due notification to PROCESSING and starts its lease; it
	// returns false if it was claimed concurrently
	Claim(n Notification, now time.Time, lease time.Duration) (bool, error)
	MarkSent(id string, at time.Time) error
	// MarkFailed records a failed delivery attempt with the resulting status
	MarkFailed(id string, status NotificationStatus, retryCount int, nextAttempt time.Time, lastError string) error
	Get(id string) (*Notification, error)
	List(status NotificationStatus) ([]Notification, error)
	// Retry resets a FAILED notification
	Retry(id string, now time.Time) error
}
