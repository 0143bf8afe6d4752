package model

import (
	"strings"
	"time"
)

// Approval is one required sign-off on a document, scoped to a role.
// Approvals are treated as values: the transition methods return an updated
// copy and never modify the receiver.
type Approval struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DocumentID    string         `gorm:"type:varchar(36);uniqueIndex:idx_document_role" json:"document_id"`
	Role          Role           `gorm:"type:varchar(16);uniqueIndex:idx_document_role" json:"role"`
	Status        ApprovalStatus `gorm:"type:varchar(16);index" json:"status"`
	ApproverID    string         `json:"approver_id,omitempty"`
	ApproverEmail string         `json:"approver_email,omitempty"`
	Justification string         `gorm:"type:text" json:"justification,omitempty"`
	ApprovedAt    *time.Time     `json:"approved_at,omitempty"`
	RejectedAt    *time.Time     `json:"rejected_at,omitempty"`
}

// NewApprovals returns one PENDING approval per required role for the passed document
func NewApprovals(documentID string, newID func() string) []Approval {
	roles := RequiredRoles()
	approvals := make([]Approval, len(roles))
	for i, r := range roles {
		approvals[i] = Approval{
			ID:         newID(),
			DocumentID: documentID,
			Role:       r,
			Status:     ApprovalPending,
		}
	}
	return approvals
}

func (a Approval) requireActorRole(actor Actor) error {
	if actor.Role != a.Role {
		return ForbiddenErrorFmt("a %s cannot act on the %s approval", actor.Role, a.Role)
	}
	return nil
}

// Approve returns the approved version of a
func (a Approval) Approve(actor Actor, at time.Time) (Approval, error) {
	if a.Status != ApprovalPending {
		return a, AlreadyProcessedErrorFmt("approval %s is already %s", a.ID, a.Status)
	}
	if err := a.requireActorRole(actor); err != nil {
		return a, err
	}
	a.Status = ApprovalApproved
	a.ApproverID = actor.ID
	a.ApproverEmail = actor.Email
	a.ApprovedAt = &at
	a.RejectedAt = nil
	return a, nil
}

// Reject returns the rejected version of a. Coordinators cannot reject; they
// override invalid rejections instead.
func (a Approval) Reject(actor Actor, justification string, at time.Time) (Approval, error) {
	if a.Status != ApprovalPending {
		return a, AlreadyProcessedErrorFmt("approval %s is already %s", a.ID, a.Status)
	}
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return a, MissingJustificationError("a rejection requires a justification")
	}
	if a.Role == RoleCoordinator {
		return a, ForbiddenError("coordinator approvals cannot be rejected")
	}
	if err := a.requireActorRole(actor); err != nil {
		return a, err
	}
	a.Status = ApprovalRejected
	a.ApproverID = actor.ID
	a.ApproverEmail = actor.Email
	a.Justification = justification
	a.RejectedAt = &at
	a.ApprovedAt = nil
	return a, nil
}

// Override returns a REJECTED approval reset to PENDING. Only coordinators
// may override, and never on their own role.
func (a Approval) Override(actor Actor, reason string) (Approval, error) {
	if a.Status != ApprovalRejected {
		return a, InvalidStateErrorFmt("approval %s is %s, only rejected approvals can be overridden", a.ID, a.Status)
	}
	if actor.Role != RoleCoordinator {
		return a, ForbiddenError("only coordinators can override a rejection")
	}
	if a.Role == RoleCoordinator {
		return a, ForbiddenError("coordinator approvals cannot be overridden")
	}
	if strings.TrimSpace(reason) == "" {
		return a, ValidationError("an override requires a reason")
	}
	a.Status = ApprovalPending
	a.ApproverID = ""
	a.ApproverEmail = ""
	a.Justification = ""
	a.ApprovedAt = nil
	a.RejectedAt = nil
	return a, nil
}

// Consolidate derives the status of a document from the statuses of its
// approvals: REJECTED dominates PENDING, which dominates APPROVED.
func Consolidate(statuses []ApprovalStatus) ApprovalStatus {
	pending := false
	for _, s := range statuses {
		switch s {
		case ApprovalRejected:
			return ApprovalRejected
		case ApprovalPending:
			pending = true
		}
	}
	if pending || len(statuses) == 0 {
		return ApprovalPending
	}
	return ApprovalApproved
}

// ConsolidateApprovals is Consolidate over the statuses of approvals
func ConsolidateApprovals(approvals []Approval) ApprovalStatus {
	statuses := make([]ApprovalStatus, len(approvals))
	for i, a := range approvals {
		statuses[i] = a.Status
	}
	return Consolidate(statuses)
}

// ApprovalEvent is an append-only audit record of an approval transition
type ApprovalEvent struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	ApprovalID string         `gorm:"type:varchar(36);index" json:"approval_id"`
	DocumentID string         `gorm:"type:varchar(36);index" json:"document_id"`
	Timestamp  int64          `gorm:"index" json:"timestamp"`
	Type       string         `gorm:"index" json:"type"`
	Status     ApprovalStatus `gorm:"type:varchar(16)" json:"status"`
	Message    *string        `json:"message,omitempty"`
	Actor      string         `json:"actor"`
}

// Constants for ApprovalEvent.Type
const (
	EventApproved   = "approved"
	EventRejected   = "rejected"
	EventOverridden = "overridden"
)

// ApprovalsStore gives access to approvals
type ApprovalsStore interface {
	Get(id string) (*Approval, error)
	ForDocument(documentID string) ([]Approval, error)
	// Transition writes next if the stored approval still has the status of
	// prev. The event and side effects are committed in the same
	// transaction. If every approval of the document is APPROVED afterwards,
	// the document is switched from PENDING to APPROVED as well.
	Transition(prev, next Approval, event ApprovalEvent, effects SideEffects) error
	Events(approvalID string) ([]ApprovalEvent, error)
}
