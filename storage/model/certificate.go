package model

import (
	"time"
)

// Certificate binds a user to a signing organization. Certificates are
// revoked, never deleted.
type Certificate struct {
	ID             string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	UserID         string            `gorm:"type:varchar(64);index" json:"user_id"`
	Email          string            `json:"email"`
	Role           Role              `gorm:"type:varchar(16)" json:"role"`
	ApprovalID     *string           `gorm:"type:varchar(36)" json:"approval_id,omitempty"`
	CertificatePEM string            `gorm:"type:text" json:"certificate"`
	PrivateKeyPEM  string            `gorm:"type:text" json:"-"`
	OrganizationID string            `gorm:"type:varchar(64);index" json:"organization_id"`
	EnrollmentID   string            `json:"enrollment_id"`
	SerialNumber   string            `gorm:"uniqueIndex;type:varchar(64)" json:"serial_number"`
	NotBefore      time.Time         `json:"not_before"`
	NotAfter       time.Time         `json:"not_after"`
	Status         CertificateStatus `gorm:"type:varchar(16);index" json:"status"`

	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	RevocationReason string     `json:"revocation_reason,omitempty"`
	RevokedBy        string     `json:"revoked_by,omitempty"`
	RevocationNotes  string     `gorm:"type:text" json:"revocation_notes,omitempty"`
}

// Revocation holds the audit information of a certificate revocation
type Revocation struct {
	Reason    string `validate:"required,oneof=unspecified keyCompromise affiliationChanged superseded cessationOfOperation privilegeWithdrawn"`
	RevokedBy string `validate:"required"`
	Notes     string
	At        time.Time
}

// CertificatesStore persists certificates
type CertificatesStore interface {
	Create(cert Certificate) error
	Get(id string) (*Certificate, error)
	ForUser(userID string) ([]Certificate, error)
	// ActiveFor returns the ACTIVE certificate of a user in an organization or nil
	ActiveFor(userID, organizationID string) (*Certificate, error)
	// Revoke switches an ACTIVE certificate to REVOKED
	Revoke(id string, revocation Revocation) error
}
