package storage

import (
	"sort"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// ApprovalsStorage returns an ApprovalsStorage
func (s *Storage) ApprovalsStorage() *ApprovalsStorage {
	return &ApprovalsStorage{db: s.db}
}

// ApprovalsStorage implements model.ApprovalsStore
type ApprovalsStorage struct {
	db *gorm.DB
}

// Get returns an approval by id
func (s *ApprovalsStorage) Get(id string) (*model.Approval, error) {
	var a model.Approval
	if err := s.db.Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("approval not found: %s", id)
		}
		return nil, errors.Wrap(err, "approvals: get failed")
	}
	return &a, nil
}

// ForDocument returns the approvals of a document in canonical role order
func (s *ApprovalsStorage) ForDocument(documentID string) ([]model.Approval, error) {
	var approvals []model.Approval
	if err := s.db.Where("document_id = ?", documentID).Find(&approvals).Error; err != nil {
		return nil, errors.Wrap(err, "approvals: list failed")
	}
	rank := make(map[model.Role]int)
	for i, r := range model.RequiredRoles() {
		rank[r] = i
	}
	sort.SliceStable(
		approvals, func(i, j int) bool {
			return rank[approvals[i].Role] < rank[approvals[j].Role]
		},
	)
	return approvals, nil
}

// Transition writes next with a conditional update on the status of prev, so
// of two concurrent transitions on the same approval exactly one succeeds;
// the other gets an AlreadyProcessedError (or an InvalidStateError for
// overrides) and nothing is written.
func (s *ApprovalsStorage) Transition(
	prev, next model.Approval, event model.ApprovalEvent, effects model.SideEffects,
) error {
	return s.db.Transaction(
		func(tx *gorm.DB) error {
			res := tx.Model(&model.Approval{}).
				Where("id = ? AND status = ?", prev.ID, prev.Status).
				Updates(
					map[string]any{
						"status":         next.Status,
						"approver_id":    next.ApproverID,
						"approver_email": next.ApproverEmail,
						"justification":  next.Justification,
						"approved_at":    next.ApprovedAt,
						"rejected_at":    next.RejectedAt,
					},
				)
			if res.Error != nil {
				return errors.Wrap(res.Error, "approvals: transition failed")
			}
			if res.RowsAffected == 0 {
				return s.lostTransition(tx, prev)
			}
			if err := tx.Create(&event).Error; err != nil {
				return errors.Wrap(err, "approvals: write event failed")
			}
			if next.Status == model.ApprovalApproved {
				var open int64
				err := tx.Model(&model.Approval{}).
					Where("document_id = ? AND status <> ?", next.DocumentID, model.ApprovalApproved).
					Count(&open).Error
				if err != nil {
					return errors.Wrap(err, "approvals: count open approvals failed")
				}
				if open == 0 {
					err = tx.Model(&model.Document{}).
						Where("id = ? AND status = ?", next.DocumentID, model.DocumentPending).
						Update("status", model.DocumentApproved).Error
					if err != nil {
						return errors.Wrap(err, "approvals: approve document failed")
					}
				}
			}
			return insertSideEffects(tx, effects)
		},
	)
}

func (*ApprovalsStorage) lostTransition(tx *gorm.DB, prev model.Approval) error {
	var current model.Approval
	if err := tx.Where("id = ?", prev.ID).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.NotFoundErrorFmt("approval not found: %s", prev.ID)
		}
		return errors.Wrap(err, "approvals: reload failed")
	}
	if prev.Status == model.ApprovalRejected {
		return model.InvalidStateErrorFmt("approval %s is %s, only rejected approvals can be overridden", prev.ID, current.Status)
	}
	return model.AlreadyProcessedErrorFmt("approval %s is already %s", prev.ID, current.Status)
}

// Events returns the audit trail of an approval, oldest first
func (s *ApprovalsStorage) Events(approvalID string) ([]model.ApprovalEvent, error) {
	var events []model.ApprovalEvent
	err := s.db.Where("approval_id = ?", approvalID).Order("timestamp ASC, id ASC").Find(&events).Error
	return events, errors.Wrap(err, "approvals: list events failed")
}
