package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ArtifactKind names one of the official files of a defense
type ArtifactKind string

// Constants for ArtifactKind
const (
	ArtifactMinutes    ArtifactKind = "minutes"
	ArtifactEvaluation ArtifactKind = "evaluation"
)

// Document is one version of the official artifacts of a defense.
// At most one Document per defense is not INACTIVE; ActiveKey carries the
// defense id while the document is PENDING or APPROVED and is NULL once it is
// INACTIVE, so a unique index on it enforces the invariant in the database.
type Document struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	DefenseID string    `gorm:"type:varchar(36);index;uniqueIndex:idx_defense_version" json:"defense_id"`
	Version   int       `gorm:"uniqueIndex:idx_defense_version" json:"version"`

	MinutesHash        string        `gorm:"type:varchar(64)" json:"minutes_hash"`
	MinutesCID         string        `json:"minutes_cid,omitempty"`
	MinutesFilename    string        `json:"minutes_filename,omitempty"`
	EvaluationHash     string        `gorm:"type:varchar(64)" json:"evaluation_hash,omitempty"`
	EvaluationCID      string        `json:"evaluation_cid,omitempty"`
	EvaluationFilename string        `json:"evaluation_filename,omitempty"`
	Grade              float64       `json:"grade"`
	Result             DefenseResult `gorm:"type:varchar(16)" json:"result"`

	Status            DocumentStatus `gorm:"type:varchar(16);index" json:"status"`
	ActiveKey         *string        `gorm:"type:varchar(36);uniqueIndex" json:"-"`
	ChangeReason      string         `gorm:"type:text" json:"change_reason,omitempty"`
	PreviousVersionID *string        `gorm:"type:varchar(36)" json:"previous_version_id,omitempty"`
	CreatedBy         string         `json:"created_by,omitempty"`

	LedgerTxID *string    `gorm:"index" json:"ledger_tx_id,omitempty"`
	AnchoredAt *time.Time `json:"anchored_at,omitempty"`
	// AnchoringAt is set while an anchoring attempt holds the lease
	AnchoringAt *time.Time `json:"-"`
}

// Anchored reports whether the document carries a ledger reference
func (d Document) Anchored() bool {
	return d.LedgerTxID != nil && *d.LedgerTxID != ""
}

// Hash returns the content hash of the passed artifact
func (d Document) Hash(kind ArtifactKind) string {
	if kind == ArtifactEvaluation {
		return d.EvaluationHash
	}
	return d.MinutesHash
}

// CID returns the content address of the passed artifact
func (d Document) CID(kind ArtifactKind) string {
	if kind == ArtifactEvaluation {
		return d.EvaluationCID
	}
	return d.MinutesCID
}

// ContentUploaded reports whether every artifact of the document has a content address
func (d Document) ContentUploaded() bool {
	if d.MinutesCID == "" {
		return false
	}
	return d.EvaluationHash == "" || d.EvaluationCID != ""
}

// SameContent reports whether both documents carry the same artifacts
func (d Document) SameContent(o Document) bool {
	return d.MinutesHash == o.MinutesHash && d.EvaluationHash == o.EvaluationHash
}

// SigningDigest returns the hash the organizations sign for this document
func (d Document) SigningDigest() string {
	if d.EvaluationHash == "" {
		return d.MinutesHash
	}
	sum := sha256.Sum256([]byte(d.MinutesHash + ":" + d.EvaluationHash))
	return hex.EncodeToString(sum[:])
}

// HashContent returns the hex sha256 of data
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DocumentsStore gives access to documents. Every write that touches more
// than one row runs in a single transaction.
type DocumentsStore interface {
	Get(id string) (*Document, error)
	// Active returns the non-INACTIVE document of a defense or nil
	Active(defenseID string) (*Document, error)
	// History returns all versions of a defense, newest first
	History(defenseID string) ([]Document, error)
	// CreateVersion inserts doc together with its approvals. If previous is
	// set, it is switched from APPROVED to INACTIVE in the same transaction.
	CreateVersion(previous *Document, doc Document, approvals []Approval, grade *GradeUpdate, effects SideEffects) error
	// MarkApproved switches a PENDING document to APPROVED; documents in any
	// other state are left untouched
	MarkApproved(id string) error
	// SetArtifactAddress back-fills the content address of an artifact
	SetArtifactAddress(id string, kind ArtifactKind, cid string) error
	// AcquireAnchoringLease marks the document as being anchored; it returns
	// false if it is already anchored or another attempt holds a live lease.
	AcquireAnchoringLease(id string, now time.Time, lease time.Duration) (bool, error)
	// ReleaseAnchoringLease clears the lease after a failed attempt
	ReleaseAnchoringLease(id string) error
	// MarkAnchored stores the ledger reference; it returns false if the
	// document already carries one.
	MarkAnchored(id, txID string, at time.Time, effects SideEffects) (bool, error)
	// Unanchored returns APPROVED documents without a ledger reference
	Unanchored() ([]Document, error)
}

// GradeUpdate carries a defense grade change that is written together with a document
type GradeUpdate struct {
	DefenseID string
	Grade     float64
	Result    DefenseResult
	// Status, if set, also changes the defense status
	Status DefenseStatus
}
