package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// KeyValueScopeSigning holds the organization key material of the
	// database key provider
	KeyValueScopeSigning = "signing"
	// KeyValueKeyOrgPrefix prefixes the key material record of an organization
	KeyValueKeyOrgPrefix = "org:"
)

// KeyValue is a scoped JSON setting. Values are stored as JSON (JSONB where
// the database supports it, TEXT on SQLite).
type KeyValue struct {
	Scope     string         `gorm:"primaryKey;size:64" json:"scope"`
	Key       string         `gorm:"primaryKey;size:191" json:"key"`
	Value     datatypes.JSON `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// KeyValueStore gives access to scoped JSON settings
type KeyValueStore interface {
	// Get retrieves the value for a (scope, key). Returns (nil, nil) if not found.
	Get(scope, key string) (datatypes.JSON, error)
	// GetAs unmarshals the value into out; it returns false if not found
	GetAs(scope, key string, out any) (bool, error)
	// Set stores or replaces the value for a (scope, key)
	Set(scope, key string, value datatypes.JSON) error
	// SetAny marshals v and stores it
	SetAny(scope, key string, v any) error
	// SetIfAbsent stores v only if (scope, key) has no value yet and reports
	// whether it did. Concurrent callers agree on a single winner.
	SetIfAbsent(scope, key string, v any) (bool, error)
	// Keys lists the keys of scope starting with prefix, sorted
	Keys(scope, prefix string) ([]string, error)
	// Delete removes the entry for a (scope, key). No error if missing.
	Delete(scope, key string) error
}
