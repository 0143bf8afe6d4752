package model

import (
	"time"
)

// Retry policy defaults for deferred uploads
const (
	UploadBackoffExponential  = "exponential"
	DefaultUploadInitialDelay = 10 * time.Second
	DefaultUploadMaxAttempts  = 5
	// DefaultUploadLease is how long a claimed job may stay ACTIVE before
	// another worker takes it over
	DefaultUploadLease = 5 * time.Minute
)

// UploadJob is a file that could not be uploaded to the storage network and
// waits for another attempt. Jobs are removed on success and kept as FAILED
// once their attempts are exhausted.
type UploadJob struct {
	ID             string          `gorm:"primaryKey;type:varchar(36)" json:"id" msgpack:"id"`
	CreatedAt      time.Time       `json:"created_at" msgpack:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" msgpack:"updated_at"`
	FileBytes      []byte          `json:"-" msgpack:"file_bytes"`
	Filename       string          `json:"filename" msgpack:"filename"`
	Size           int             `json:"size" msgpack:"size"`
	AttemptNumber  int             `json:"attempt_number" msgpack:"attempt_number"`
	MaxAttempts    int             `json:"max_attempts" msgpack:"max_attempts"`
	BackoffType    string          `gorm:"type:varchar(16)" json:"backoff_type" msgpack:"backoff_type"`
	InitialDelayMs int64           `json:"initial_delay_ms" msgpack:"initial_delay_ms"`
	NextAttemptAt  time.Time       `gorm:"index" json:"next_attempt_at" msgpack:"next_attempt_at"`
	Status         UploadJobStatus `gorm:"type:varchar(16);index" json:"status" msgpack:"status"`
	LastError      string          `gorm:"type:text" json:"last_error,omitempty" msgpack:"last_error"`
	// DocumentID and Artifact reference the document whose content address
	// is filled in once the upload succeeds
	DocumentID *string      `gorm:"type:varchar(36);index" json:"document_id,omitempty" msgpack:"document_id"`
	Artifact   ArtifactKind `gorm:"type:varchar(16)" json:"artifact,omitempty" msgpack:"artifact"`
	// ProcessingSince is set while the job is ACTIVE
	ProcessingSince *time.Time `gorm:"index" json:"processing_since,omitempty" msgpack:"processing_since"`
}

// InitialDelay returns the delay before the second attempt
func (j UploadJob) InitialDelay() time.Duration {
	return time.Duration(j.InitialDelayMs) * time.Millisecond
}

// Exhausted reports whether the job has no attempts left
func (j UploadJob) Exhausted() bool {
	return j.AttemptNumber >= j.MaxAttempts
}

// UploadJobStore persists deferred uploads
type UploadJobStore interface {
	Add(job UploadJob) error
	Get(id string) (*UploadJob, error)
	// Due returns up to limit WAITING jobs whose NextAttemptAt has passed
	// and ACTIVE jobs claimed longer than lease ago
	Due(now time.Time, lease time.Duration, limit int) ([]UploadJob, error)
	// Claim moves a due job to ACTIVE and starts its lease; it returns false
	// if another worker claimed it first
	Claim(job UploadJob, now time.Time, lease time.Duration) (bool, error)
	// Reschedule puts an ACTIVE job back to WAITING for another attempt
	Reschedule(id string, attempt int, next time.Time, lastError string) error
	// MarkFailed retains an exhausted job for manual inspection
	MarkFailed(id string, attempt int, lastError string) error
	// Reset puts a FAILED job back to WAITING with a fresh attempt budget
	Reset(id string, now time.Time) error
	Remove(id string) error
	List(status UploadJobStatus) ([]UploadJob, error)
}
