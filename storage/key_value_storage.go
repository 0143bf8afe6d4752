package storage

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/defensechain/defensechain/storage/model"
)

// KeyValueStorage implements model.KeyValueStore using GORM
type KeyValueStorage struct {
	db *gorm.DB
}

// KeyValue returns a KeyValueStorage
func (s *Storage) KeyValue() *KeyValueStorage {
	return &KeyValueStorage{db: s.db}
}

// Get returns the value of (scope, key) or nil if it is not set
func (s *KeyValueStorage) Get(scope, key string) (datatypes.JSON, error) {
	var kv model.KeyValue
	err := s.db.Where(kvCond(scope, key)).Take(&kv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return kv.Value, nil
}

// GetAs unmarshals the value of (scope, key) into out
func (s *KeyValueStorage) GetAs(scope, key string, out any) (bool, error) {
	raw, err := s.Get(scope, key)
	if err != nil || raw == nil {
		return false, err
	}
	return true, errors.Wrapf(json.Unmarshal(raw, out), "invalid value at %s/%s", scope, key)
}

// Set upserts the value of (scope, key)
func (s *KeyValueStorage) Set(scope, key string, value datatypes.JSON) error {
	kv := model.KeyValue{
		Scope: scope,
		Key:   key,
		Value: value,
	}
	return errors.WithStack(
		s.db.Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "scope"}, {Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			},
		).Create(&kv).Error,
	)
}

// SetAny marshals v and stores it at (scope, key)
func (s *KeyValueStorage) SetAny(scope, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.WithStack(err)
	}
	return s.Set(scope, key, b)
}

// SetIfAbsent inserts v unless (scope, key) exists. The primary key decides
// between concurrent inserts.
func (s *KeyValueStorage) SetIfAbsent(scope, key string, v any) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, errors.WithStack(err)
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(
		&model.KeyValue{
			Scope: scope,
			Key:   key,
			Value: b,
		},
	)
	if res.Error != nil {
		return false, errors.WithStack(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Keys lists the keys in scope that start with prefix. Scopes hold few
// entries, so the prefix is matched here instead of with LIKE.
func (s *KeyValueStorage) Keys(scope, prefix string) ([]string, error) {
	var all []string
	err := s.db.Model(&model.KeyValue{}).
		Where(map[string]any{"scope": scope}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "key"}}).
		Pluck("key", &all).Error
	if err != nil {
		return nil, errors.WithStack(err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Delete removes (scope, key)
func (s *KeyValueStorage) Delete(scope, key string) error {
	return errors.WithStack(
		s.db.Where(kvCond(scope, key)).Delete(&model.KeyValue{}).Error,
	)
}

// kvCond matches one entry. Map conditions get their column names quoted,
// which "key" needs on mysql.
func kvCond(scope, key string) map[string]any {
	return map[string]any{
		"scope": scope,
		"key":   key,
	}
}
