package model

import (
	"fmt"
)

// ApprovalStatus is the state of a single required sign-off
type ApprovalStatus string

// Constants for ApprovalStatus
const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
)

// Valid reports whether the status is one of the defined constants.
func (s ApprovalStatus) Valid() bool {
	switch s {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// ParseApprovalStatus converts a string to an ApprovalStatus, returning an error for invalid values.
func ParseApprovalStatus(v string) (ApprovalStatus, error) {
	s := ApprovalStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid approval status: %s", v)
	}
	return s, nil
}

// DocumentStatus is the state of a document version
type DocumentStatus string

// Constants for DocumentStatus
const (
	DocumentPending  DocumentStatus = "PENDING"
	DocumentApproved DocumentStatus = "APPROVED"
	DocumentInactive DocumentStatus = "INACTIVE"
)

// Valid reports whether the status is one of the defined constants.
func (s DocumentStatus) Valid() bool {
	switch s {
	case DocumentPending, DocumentApproved, DocumentInactive:
		return true
	default:
		return false
	}
}

// DefenseStatus is the scheduling state of a defense
type DefenseStatus string

// Constants for DefenseStatus
const (
	DefenseScheduled DefenseStatus = "SCHEDULED"
	DefenseCanceled  DefenseStatus = "CANCELED"
	DefenseCompleted DefenseStatus = "COMPLETED"
)

// DefenseResult is the outcome of a defense
type DefenseResult string

// Constants for DefenseResult
const (
	ResultPending  DefenseResult = "PENDING"
	ResultApproved DefenseResult = "APPROVED"
	ResultFailed   DefenseResult = "FAILED"
)

// Final reports whether the result may be registered on the ledger
func (r DefenseResult) Final() bool {
	return r == ResultApproved || r == ResultFailed
}

// CertificateStatus is the state of an issued certificate
type CertificateStatus string

// Constants for CertificateStatus
const (
	CertificateActive  CertificateStatus = "ACTIVE"
	CertificateRevoked CertificateStatus = "REVOKED"
)

// NotificationStatus is the delivery state of a notification
type NotificationStatus string

// Constants for NotificationStatus
const (
	NotificationPending    NotificationStatus = "PENDING"
	NotificationProcessing NotificationStatus = "PROCESSING"
	NotificationSent       NotificationStatus = "SENT"
	NotificationRetry      NotificationStatus = "RETRY"
	NotificationFailed     NotificationStatus = "FAILED"
)

// ParseNotificationStatus converts a string to a NotificationStatus
func ParseNotificationStatus(v string) (NotificationStatus, error) {
	switch s := NotificationStatus(v); s {
	case NotificationPending, NotificationProcessing, NotificationSent, NotificationRetry, NotificationFailed:
		return s, nil
	}
	return "", fmt.Errorf("invalid notification status: %s", v)
}

// TaskStatus is the state of an outbox task
type TaskStatus string

// Constants for TaskStatus
const (
	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskDone       TaskStatus = "DONE"
	TaskRetry      TaskStatus = "RETRY"
	TaskFailed     TaskStatus = "FAILED"
)

// ParseTaskStatus converts a string to a TaskStatus
func ParseTaskStatus(v string) (TaskStatus, error) {
	switch s := TaskStatus(v); s {
	case TaskPending, TaskProcessing, TaskDone, TaskRetry, TaskFailed:
		return s, nil
	}
	return "", fmt.Errorf("invalid task status: %s", v)
}

// UploadJobStatus is the state of a deferred upload
type UploadJobStatus string

// Constants for UploadJobStatus
const (
	UploadJobWaiting UploadJobStatus = "WAITING"
	UploadJobActive  UploadJobStatus = "ACTIVE"
	UploadJobFailed  UploadJobStatus = "FAILED"
)

// ParseUploadJobStatus converts a string to an UploadJobStatus
func ParseUploadJobStatus(v string) (UploadJobStatus, error) {
	switch s := UploadJobStatus(v); s {
	case UploadJobWaiting, UploadJobActive, UploadJobFailed:
		return s, nil
	}
	return "", fmt.Errorf("invalid upload job status: %s", v)
}
