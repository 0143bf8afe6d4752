package defensechain

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/notification"
	"github.com/defensechain/defensechain/storage/model"
)

// DocumentOverview is a document together with its approvals and their
// consolidated status
type DocumentOverview struct {
	Document  model.Document       `json:"document"`
	Approvals []model.Approval     `json:"approvals"`
	Status    model.ApprovalStatus `json:"status"`
}

// approvalContext loads an approval and the document it belongs to. Approvals
// of inactive documents can no longer change.
func (w *Workflow) approvalContext(approvalID string) (*model.Approval, *model.Document, error) {
	approval, err := w.backends.Approvals.Get(approvalID)
	if err != nil {
		return nil, nil, err
	}
	doc, err := w.backends.Documents.Get(approval.DocumentID)
	if err != nil {
		return nil, nil, err
	}
	if doc.Status == model.DocumentInactive {
		return nil, nil, model.InvalidStateErrorFmt(
			"document %s version %d has been superseded", doc.ID, doc.Version,
		)
	}
	return approval, doc, nil
}

func (w *Workflow) event(approval model.Approval, eventType string, actor model.Actor, message string) model.ApprovalEvent {
	e := model.ApprovalEvent{
		ApprovalID: approval.ID,
		DocumentID: approval.DocumentID,
		Timestamp:  w.now().UnixNano(),
		Type:       eventType,
		Status:     approval.Status,
		Actor:      actor.ID,
	}
	if message != "" {
		e.Message = &message
	}
	return e
}

// Approve approves the approval with the passed id. Once the last approval of
// a document is approved, the document becomes APPROVED and is anchored on
// the ledger in the background.
func (w *Workflow) Approve(_ context.Context, approvalID string, actor model.Actor) (*model.Approval, error) {
	prev, _, err := w.approvalContext(approvalID)
	if err != nil {
		return nil, err
	}
	next, err := prev.Approve(actor, w.now())
	if err != nil {
		return nil, err
	}
	task, err := w.anchorTask(prev.DocumentID, prev.ID)
	if err != nil {
		return nil, err
	}
	effects := model.SideEffects{Tasks: []model.Task{task}}
	if err = w.backends.Approvals.Transition(
		*prev, next, w.event(next, model.EventApproved, actor, ""), effects,
	); err != nil {
		return nil, err
	}
	log.WithFields(
		log.Fields{
			"approval": next.ID,
			"document": next.DocumentID,
			"role":     next.Role,
			"actor":    actor.ID,
		},
	).Info("approval approved")
	w.kick(effects)
	return &next, nil
}

// Reject rejects the approval with the passed id. The coordinators of the
// defense are notified.
func (w *Workflow) Reject(
	_ context.Context, approvalID string, actor model.Actor, justification string,
) (*model.Approval, error) {
	prev, doc, err := w.approvalContext(approvalID)
	if err != nil {
		return nil, err
	}
	next, err := prev.Reject(actor, justification, w.now())
	if err != nil {
		return nil, err
	}
	defense, err := w.backends.Defenses.Get(doc.DefenseID)
	if err != nil {
		return nil, err
	}
	data := notification.DefenseData(*defense, doc)
	data.Role = next.Role
	data.Actor = actor.Email
	data.Justification = next.Justification
	notes, err := w.notifications.ForParticipants(model.NotifyApprovalRejected, *defense, data, model.RoleCoordinator)
	if err != nil {
		return nil, err
	}
	if err = w.backends.Approvals.Transition(
		*prev, next, w.event(next, model.EventRejected, actor, next.Justification),
		model.SideEffects{Notifications: notes},
	); err != nil {
		return nil, err
	}
	log.WithFields(
		log.Fields{
			"approval": next.ID,
			"document": next.DocumentID,
			"role":     next.Role,
			"actor":    actor.ID,
		},
	).Info("approval rejected")
	return &next, nil
}

// OverrideRejection resets a rejected approval to PENDING on behalf of a
// coordinator. The original approver is asked to review again.
func (w *Workflow) OverrideRejection(
	_ context.Context, approvalID string, actor model.Actor, reason string,
) (*model.Approval, error) {
	prev, doc, err := w.approvalContext(approvalID)
	if err != nil {
		return nil, err
	}
	next, err := prev.Override(actor, reason)
	if err != nil {
		return nil, err
	}
	var effects model.SideEffects
	if prev.ApproverEmail != "" {
		defense, err := w.backends.Defenses.Get(doc.DefenseID)
		if err != nil {
			return nil, err
		}
		data := notification.DefenseData(*defense, doc)
		data.Role = prev.Role
		data.Reason = reason
		if p := defense.Participant(prev.ApproverID); p != nil {
			data.RecipientName = p.Name
		}
		n, err := w.notifications.Build(model.NotifyRejectionOverridden, prev.ApproverEmail, data)
		if err != nil {
			return nil, err
		}
		effects.Notifications = append(effects.Notifications, n)
	}
	if err = w.backends.Approvals.Transition(
		*prev, next, w.event(next, model.EventOverridden, actor, reason), effects,
	); err != nil {
		return nil, err
	}
	log.WithFields(
		log.Fields{
			"approval": next.ID,
			"document": next.DocumentID,
			"role":     next.Role,
			"actor":    actor.ID,
		},
	).Info("rejection overridden")
	return &next, nil
}

// ConsolidatedStatus returns the combined status of all approvals of a document
func (w *Workflow) ConsolidatedStatus(_ context.Context, documentID string) (model.ApprovalStatus, error) {
	if _, err := w.backends.Documents.Get(documentID); err != nil {
		return "", err
	}
	approvals, err := w.backends.Approvals.ForDocument(documentID)
	if err != nil {
		return "", err
	}
	return model.ConsolidateApprovals(approvals), nil
}

// DocumentOverview returns a document with its approvals
func (w *Workflow) DocumentOverview(_ context.Context, documentID string) (*DocumentOverview, error) {
	doc, err := w.backends.Documents.Get(documentID)
	if err != nil {
		return nil, err
	}
	approvals, err := w.backends.Approvals.ForDocument(documentID)
	if err != nil {
		return nil, err
	}
	return &DocumentOverview{
		Document:  *doc,
		Approvals: approvals,
		Status:    model.ConsolidateApprovals(approvals),
	}, nil
}

// ApprovalHistory returns the audit trail of an approval
func (w *Workflow) ApprovalHistory(_ context.Context, approvalID string) ([]model.ApprovalEvent, error) {
	if _, err := w.backends.Approvals.Get(approvalID); err != nil {
		return nil, err
	}
	return w.backends.Approvals.Events(approvalID)
}
