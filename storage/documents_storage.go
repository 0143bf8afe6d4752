package storage

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// DocumentsStorage returns a DocumentsStorage
func (s *Storage) DocumentsStorage() *DocumentsStorage {
	return &DocumentsStorage{db: s.db}
}

// DocumentsStorage implements model.DocumentsStore
type DocumentsStorage struct {
	db *gorm.DB
}

// Get returns a document by id
func (s *DocumentsStorage) Get(id string) (*model.Document, error) {
	var doc model.Document
	if err := s.db.Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("document not found: %s", id)
		}
		return nil, errors.Wrap(err, "documents: get failed")
	}
	return &doc, nil
}

// Active returns the PENDING or APPROVED document of a defense or nil
func (s *DocumentsStorage) Active(defenseID string) (*model.Document, error) {
	var doc model.Document
	err := s.db.Where("defense_id = ? AND status <> ?", defenseID, model.DocumentInactive).
		Order("version DESC").First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "documents: get active failed")
	}
	return &doc, nil
}

// History returns all versions of a defense, newest first
func (s *DocumentsStorage) History(defenseID string) ([]model.Document, error) {
	var docs []model.Document
	if err := s.db.Where("defense_id = ?", defenseID).Order("version DESC").Find(&docs).Error; err != nil {
		return nil, errors.Wrap(err, "documents: history failed")
	}
	return docs, nil
}

// CreateVersion inserts a new document version with its approvals. The
// previous version, if any, is switched from APPROVED to INACTIVE in the same
// transaction; if it is no longer APPROVED nothing is written.
func (s *DocumentsStorage) CreateVersion(
	previous *model.Document, doc model.Document, approvals []model.Approval, grade *model.GradeUpdate,
	effects model.SideEffects,
) error {
	return s.db.Transaction(
		func(tx *gorm.DB) error {
			if previous != nil {
				res := tx.Model(&model.Document{}).
					Where("id = ? AND status = ?", previous.ID, model.DocumentApproved).
					Updates(
						map[string]any{
							"status":     model.DocumentInactive,
							"active_key": nil,
						},
					)
				if res.Error != nil {
					return errors.Wrap(res.Error, "documents: inactivate previous version failed")
				}
				if res.RowsAffected == 0 {
					return model.InvalidStateErrorFmt("document %s is no longer approved", previous.ID)
				}
			}

			key := doc.DefenseID
			doc.ActiveKey = &key
			if err := tx.Create(&doc).Error; err != nil {
				if isUniqueConstraintError(err) {
					return model.InvalidStateErrorFmt("defense %s already has an active document", doc.DefenseID)
				}
				return errors.Wrap(err, "documents: create failed")
			}
			if len(approvals) > 0 {
				if err := tx.Create(&approvals).Error; err != nil {
					return errors.Wrap(err, "documents: create approvals failed")
				}
			}
			if grade != nil {
				values := map[string]any{
					"final_grade": grade.Grade,
					"result":      grade.Result,
				}
				if grade.Status != "" {
					values["status"] = grade.Status
				}
				res := tx.Model(&model.Defense{}).Where("id = ?", grade.DefenseID).Updates(values)
				if res.Error != nil {
					return errors.Wrap(res.Error, "documents: update defense grade failed")
				}
				if res.RowsAffected == 0 {
					return model.NotFoundErrorFmt("defense not found: %s", grade.DefenseID)
				}
			}
			return insertSideEffects(tx, effects)
		},
	)
}

// MarkApproved switches a PENDING document to APPROVED
func (s *DocumentsStorage) MarkApproved(id string) error {
	err := s.db.Model(&model.Document{}).
		Where("id = ? AND status = ?", id, model.DocumentPending).
		Update("status", model.DocumentApproved).Error
	return errors.Wrap(err, "documents: mark approved failed")
}

// SetArtifactAddress back-fills the content address of an artifact
func (s *DocumentsStorage) SetArtifactAddress(id string, kind model.ArtifactKind, cid string) error {
	column := "minutes_cid"
	if kind == model.ArtifactEvaluation {
		column = "evaluation_cid"
	}
	res := s.db.Model(&model.Document{}).Where("id = ?", id).Update(column, cid)
	if res.Error != nil {
		return errors.Wrap(res.Error, "documents: set artifact address failed")
	}
	if res.RowsAffected == 0 {
		// mysql does not count rows that already hold the value
		_, err := s.Get(id)
		return err
	}
	return nil
}

// AcquireAnchoringLease marks an APPROVED, unanchored document as being
// anchored. A lease older than lease is considered abandoned.
func (s *DocumentsStorage) AcquireAnchoringLease(id string, now time.Time, lease time.Duration) (bool, error) {
	res := s.db.Model(&model.Document{}).
		Where("id = ? AND status = ? AND ledger_tx_id IS NULL", id, model.DocumentApproved).
		Where("anchoring_at IS NULL OR anchoring_at < ?", now.Add(-lease)).
		Update("anchoring_at", now)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "documents: acquire anchoring lease failed")
	}
	return res.RowsAffected == 1, nil
}

// ReleaseAnchoringLease clears the anchoring lease
func (s *DocumentsStorage) ReleaseAnchoringLease(id string) error {
	err := s.db.Model(&model.Document{}).
		Where("id = ? AND ledger_tx_id IS NULL", id).
		Update("anchoring_at", nil).Error
	return errors.Wrap(err, "documents: release anchoring lease failed")
}

// MarkAnchored stores the ledger reference unless the document already has
// one. The side effects are only written if the reference was stored.
func (s *DocumentsStorage) MarkAnchored(id, txID string, at time.Time, effects model.SideEffects) (bool, error) {
	var stored bool
	err := s.db.Transaction(
		func(tx *gorm.DB) error {
			res := tx.Model(&model.Document{}).
				Where("id = ? AND ledger_tx_id IS NULL", id).
				Updates(
					map[string]any{
						"ledger_tx_id": txID,
						"anchored_at":  at,
						"anchoring_at": nil,
					},
				)
			if res.Error != nil {
				return errors.Wrap(res.Error, "documents: mark anchored failed")
			}
			if res.RowsAffected == 0 {
				return nil
			}
			stored = true
			return insertSideEffects(tx, effects)
		},
	)
	return stored, err
}

// Unanchored returns APPROVED documents without a ledger reference
func (s *DocumentsStorage) Unanchored() ([]model.Document, error) {
	var docs []model.Document
	err := s.db.Where("status = ? AND ledger_tx_id IS NULL", model.DocumentApproved).
		Order("created_at").Find(&docs).Error
	return docs, errors.Wrap(err, "documents: list unanchored failed")
}
