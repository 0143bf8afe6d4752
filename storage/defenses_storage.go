package storage

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// DefensesStorage returns a DefensesStorage
func (s *Storage) DefensesStorage() *DefensesStorage {
	return &DefensesStorage{db: s.db}
}

// DefensesStorage implements model.DefensesStore
type DefensesStorage struct {
	db *gorm.DB
}

// Get returns a defense together with its participants
func (s *DefensesStorage) Get(id string) (*model.Defense, error) {
	var d model.Defense
	if err := s.db.Preload("Participants").Where("id = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("defense not found: %s", id)
		}
		return nil, errors.Wrap(err, "defenses: get failed")
	}
	return &d, nil
}

// Create stores a defense and its participants
func (s *DefensesStorage) Create(defense *model.Defense) error {
	if err := s.db.Create(defense).Error; err != nil {
		if isUniqueConstraintError(err) {
			return model.AlreadyExistsErrorFmt("defense already exists: %s", defense.ID)
		}
		return errors.Wrap(err, "defenses: create failed")
	}
	return nil
}
