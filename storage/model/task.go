package model

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Task kinds handled by the outbox
const (
	TaskKindAnchorDocument   = "anchor_document"
	TaskKindIssueCertificate = "issue_certificate"
)

// Task is a side effect committed together with the operation that caused
// it and executed later by the outbox dispatcher.
type Task struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Kind        string         `gorm:"type:varchar(64);index" json:"kind"`
	Subject     string         `gorm:"type:varchar(64);index" json:"subject"`
	Payload     datatypes.JSON `json:"payload"`
	Status      TaskStatus     `gorm:"type:varchar(16);index" json:"status"`
	Attempts    int            `json:"attempts"`
	MaxAttempts int            `json:"max_attempts"`
	NextRunAt   time.Time      `gorm:"index" json:"next_run_at"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	// ProcessingSince is set while the task is claimed. A PROCESSING task
	// whose lease expired is due again.
	ProcessingSince *time.Time `gorm:"index" json:"processing_since,omitempty"`
}

// DefaultTaskLease is how long a claimed task may run before another
// dispatcher reclaims it
const DefaultTaskLease = 10 * time.Minute

// NewTask returns a PENDING task with the JSON encoding of payload. Subject
// identifies the record the task works on.
func NewTask(id, kind, subject string, payload any, maxAttempts int, now time.Time) (Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Task{}, err
	}
	return Task{
		ID:          id,
		Kind:        kind,
		Subject:     subject,
		Payload:     data,
		Status:      TaskPending,
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
	}, nil
}

// Decode unmarshals the payload into v
func (t Task) Decode(v any) error {
	return json.Unmarshal(t.Payload, v)
}

// AnchorDocumentPayload is the payload of a TaskKindAnchorDocument task
type AnchorDocumentPayload struct {
	DocumentID string `json:"document_id"`
	// TriggeredBy is the approval whose transition caused the check
	TriggeredBy string `json:"triggered_by,omitempty"`
}

// IssueCertificatePayload is the payload of a TaskKindIssueCertificate task
type IssueCertificatePayload struct {
	UserID     string  `json:"user_id"`
	Email      string  `json:"email"`
	Role       Role    `json:"role"`
	ApprovalID *string `json:"approval_id,omitempty"`
}

// SideEffects are records committed in the same transaction as a workflow write
type SideEffects struct {
	Tasks         []Task
	Notifications []Notification
}

// Add appends the passed side effects
func (s *SideEffects) Add(o SideEffects) {
	s.Tasks = append(s.Tasks, o.Tasks...)
	s.Notifications = append(s.Notifications, o.Notifications...)
}

// Empty reports whether there is nothing to commit
func (s SideEffects) Empty() bool {
	return len(s.Tasks) == 0 && len(s.Notifications) == 0
}

// TasksStore persists outbox tasks
type TasksStore interface {
	Enqueue(tasks ...Task) error
	// Due returns up to limit PENDING or RETRY tasks whose NextRunAt has
	// passed and PROCESSING tasks claimed longer than lease ago
	Due(now time.Time, lease time.Duration, limit int) ([]Task, error)
	// Claim moves a due task to PROCESSING and starts its lease; it returns
	// false if another worker claimed it first
	Claim(task Task, now time.Time, lease time.Duration) (bool, error)
	Complete(id string) error
	// Fail records a failed attempt; the task goes to RETRY at nextRun or to
	// FAILED if it has no attempts left
	Fail(id string, attempts int, final bool, nextRun time.Time, lastError string) error
	Get(id string) (*Task, error)
	List(status TaskStatus) ([]Task, error)
	// Retry resets a FAILED task
	Retry(id string, now time.Time) error
	// Pending reports whether an unfinished task of kind exists for
	// subject. PROCESSING tasks with an expired lease do not count.
	Pending(kind, subject string, now time.Time, lease time.Duration) (bool, error)
}
