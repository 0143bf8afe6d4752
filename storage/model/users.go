package model

import (
	"strings"
	"time"
)

// OperatorRole is the permission level of an ops API operator. Each role
// includes the permissions of the ones before it.
type OperatorRole string

const (
	// OperatorViewer may read health, failed work and document views
	OperatorViewer OperatorRole = "viewer"
	// OperatorOperator may additionally retry work and trigger anchoring
	OperatorOperator OperatorRole = "operator"
	// OperatorAdmin may additionally manage operator accounts
	OperatorAdmin OperatorRole = "admin"
)

func (r OperatorRole) rank() int {
	switch r {
	case OperatorViewer:
		return 1
	case OperatorOperator:
		return 2
	case OperatorAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is a known operator role
func (r OperatorRole) Valid() bool {
	return r.rank() > 0
}

// Allows reports whether r grants the permissions of required
func (r OperatorRole) Allows(required OperatorRole) bool {
	return r.Valid() && r.rank() >= required.rank()
}

// ParseOperatorRole parses a role name case-insensitively
func ParseOperatorRole(s string) (OperatorRole, error) {
	r := OperatorRole(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ValidationErrorFmt("unknown operator role '%s'", s)
	}
	return r, nil
}

// User is an operator of the ops API.
// When no users exist, the ops API is open; when one or more users exist,
// only authenticated users may access it.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Username string `gorm:"uniqueIndex;size:128" json:"username"`
	// PasswordHash stores a PHC-formatted argon2id hash of the user's password
	PasswordHash string       `json:"-"`
	DisplayName  string       `json:"display_name"`
	Role         OperatorRole `gorm:"size:16;default:admin" json:"role"`
	Disabled     bool         `json:"disabled"`
	LastLoginAt  *time.Time   `json:"last_login_at,omitempty"`
}

// NewUser describes an operator to create
type NewUser struct {
	Username    string
	Password    string
	DisplayName string
	// Role defaults to OperatorAdmin
	Role OperatorRole
}

// UserUpdate lists the fields to change; nil fields are left untouched
type UserUpdate struct {
	DisplayName *string
	Password    *string
	Role        *OperatorRole
	Disabled    *bool
}

// UsersStore manages ops API operators. Implementations refuse changes that
// would leave no enabled admin while other operators exist.
type UsersStore interface {
	Count() (int64, error)
	// List returns all users without password hashes
	List() ([]User, error)
	Get(username string) (*User, error)
	// Create creates a user; the implementation must hash the password
	Create(u NewUser) (*User, error)
	Update(username string, update UserUpdate) (*User, error)
	Delete(username string) error
	// Authenticate checks a username/password combo, records the login and
	// returns the user
	Authenticate(username, password string) (*User, error)
}
