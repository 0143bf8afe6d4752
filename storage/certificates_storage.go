package storage

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// CertificatesStorage returns a CertificatesStorage
func (s *Storage) CertificatesStorage() *CertificatesStorage {
	return &CertificatesStorage{db: s.db}
}

// CertificatesStorage implements model.CertificatesStore. Rows are never deleted.
type CertificatesStorage struct {
	db *gorm.DB
}

// Create stores a new certificate
func (s *CertificatesStorage) Create(cert model.Certificate) error {
	if err := s.db.Create(&cert).Error; err != nil {
		if isUniqueConstraintError(err) {
			return model.AlreadyExistsErrorFmt("certificate already exists: %s", cert.SerialNumber)
		}
		return errors.Wrap(err, "certificates: create failed")
	}
	return nil
}

// Get returns a certificate by id
func (s *CertificatesStorage) Get(id string) (*model.Certificate, error) {
	var c model.Certificate
	if err := s.db.Where("id = ?", id).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("certificate not found: %s", id)
		}
		return nil, errors.Wrap(err, "certificates: get failed")
	}
	return &c, nil
}

// ForUser returns all certificates of a user, including revoked ones
func (s *CertificatesStorage) ForUser(userID string) ([]model.Certificate, error) {
	var certs []model.Certificate
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&certs).Error
	return certs, errors.Wrap(err, "certificates: list failed")
}

// ActiveFor returns the ACTIVE certificate of a user in an organization or nil
func (s *CertificatesStorage) ActiveFor(userID, organizationID string) (*model.Certificate, error) {
	var c model.Certificate
	err := s.db.Where(
		"user_id = ? AND organization_id = ? AND status = ?", userID, organizationID, model.CertificateActive,
	).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "certificates: get active failed")
	}
	return &c, nil
}

// Revoke switches an ACTIVE certificate to REVOKED and records the audit fields
func (s *CertificatesStorage) Revoke(id string, revocation model.Revocation) error {
	return s.db.Transaction(
		func(tx *gorm.DB) error {
			res := tx.Model(&model.Certificate{}).
				Where("id = ? AND status = ?", id, model.CertificateActive).
				Updates(
					map[string]any{
						"status":            model.CertificateRevoked,
						"revoked_at":        revocation.At,
						"revocation_reason": revocation.Reason,
						"revoked_by":        revocation.RevokedBy,
						"revocation_notes":  revocation.Notes,
					},
				)
			if res.Error != nil {
				return errors.Wrap(res.Error, "certificates: revoke failed")
			}
			if res.RowsAffected > 0 {
				return nil
			}
			var c model.Certificate
			if err := tx.Where("id = ?", id).First(&c).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return model.NotFoundErrorFmt("certificate not found: %s", id)
				}
				return errors.Wrap(err, "certificates: reload failed")
			}
			return model.AlreadyProcessedErrorFmt("certificate %s is already %s", id, c.Status)
		},
	)
}
