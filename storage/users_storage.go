package storage

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// UsersStorage returns a UsersStorage
func (s *Storage) UsersStorage() *UsersStorage {
	return &UsersStorage{
		db:     s.db,
		hasher: s.hasher,
	}
}

// UsersStorage implements model.UsersStore using GORM
type UsersStorage struct {
	db     *gorm.DB
	hasher passwordHasher
}

func findUser(tx *gorm.DB, username string) (*model.User, error) {
	var u model.User
	if err := tx.Where("username = ?", username).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.NotFoundErrorFmt("user not found: %s", username)
		}
		return nil, errors.WithStack(err)
	}
	return &u, nil
}

// Count returns the number of users present in the store
func (s *UsersStorage) Count() (int64, error) {
	var count int64
	err := s.db.Model(&model.User{}).Count(&count).Error
	return count, errors.WithStack(err)
}

// List returns all users ordered by username
func (s *UsersStorage) List() ([]model.User, error) {
	var users []model.User
	if err := s.db.Order("username").Find(&users).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// Get returns a user by username
func (s *UsersStorage) Get(username string) (*model.User, error) {
	u, err := findUser(s.db, username)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = ""
	return u, nil
}

// Create stores a new operator. The unique index on the username decides
// between concurrent creations.
func (s *UsersStorage) Create(nu model.NewUser) (*model.User, error) {
	if nu.Username == "" || nu.Password == "" {
		return nil, model.ValidationError("username and password are required")
	}
	if nu.Role == "" {
		nu.Role = model.OperatorAdmin
	}
	if !nu.Role.Valid() {
		return nil, model.ValidationErrorFmt("unknown operator role '%s'", nu.Role)
	}
	hash, err := s.hasher.hash(nu.Password)
	if err != nil {
		return nil, err
	}
	u := model.User{
		Username:     nu.Username,
		PasswordHash: hash,
		DisplayName:  nu.DisplayName,
		Role:         nu.Role,
	}
	if err = s.db.Create(&u).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, model.AlreadyExistsErrorFmt("user already exists: %s", nu.Username)
		}
		return nil, errors.WithStack(err)
	}
	u.PasswordHash = ""
	return &u, nil
}

// Update applies the non-nil fields of update
func (s *UsersStorage) Update(username string, update model.UserUpdate) (*model.User, error) {
	var hash string
	if update.Password != nil {
		if *update.Password == "" {
			return nil, model.ValidationError("password cannot be empty")
		}
		var err error
		if hash, err = s.hasher.hash(*update.Password); err != nil {
			return nil, err
		}
	}
	if update.Role != nil && !update.Role.Valid() {
		return nil, model.ValidationErrorFmt("unknown operator role '%s'", *update.Role)
	}
	var out *model.User
	err := s.db.Transaction(
		func(tx *gorm.DB) error {
			u, err := findUser(tx, username)
			if err != nil {
				return err
			}
			wasAdmin := isEnabledAdmin(*u)
			if update.DisplayName != nil {
				u.DisplayName = *update.DisplayName
			}
			if update.Role != nil {
				u.Role = *update.Role
			}
			if update.Disabled != nil {
				u.Disabled = *update.Disabled
			}
			if hash != "" {
				u.PasswordHash = hash
			}
			if wasAdmin && !isEnabledAdmin(*u) {
				if err = requireOtherAdmin(tx, u.ID); err != nil {
					return err
				}
			}
			if err = tx.Save(u).Error; err != nil {
				return errors.WithStack(err)
			}
			out = u
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	out.PasswordHash = ""
	return out, nil
}

// Delete removes a user. The last enabled admin can only be deleted when no
// other operator is left, which reopens the API.
func (s *UsersStorage) Delete(username string) error {
	return s.db.Transaction(
		func(tx *gorm.DB) error {
			u, err := findUser(tx, username)
			if err != nil {
				return err
			}
			if isEnabledAdmin(*u) {
				var others int64
				if err = tx.Model(&model.User{}).Where("id <> ?", u.ID).Count(&others).Error; err != nil {
					return errors.WithStack(err)
				}
				if others > 0 {
					if err = requireOtherAdmin(tx, u.ID); err != nil {
						return err
					}
				}
			}
			return errors.WithStack(tx.Delete(u).Error)
		},
	)
}

// Authenticate validates username/password. Hashes created with other
// argon2id parameters are upgraded on a successful login.
func (s *UsersStorage) Authenticate(username, password string) (*model.User, error) {
	u, err := findUser(s.db, username)
	if err != nil {
		return nil, err
	}
	if u.Disabled {
		return nil, model.ForbiddenErrorFmt("user disabled: %s", username)
	}
	ok, rehash, err := s.hasher.verify(u.PasswordHash, password)
	if err != nil || !ok {
		return nil, model.ForbiddenError("invalid credentials")
	}
	now := time.Now().UTC()
	updates := map[string]any{"last_login_at": now}
	if rehash {
		if h, err := s.hasher.hash(password); err == nil {
			updates["password_hash"] = h
		}
	}
	if err = s.db.Model(&model.User{}).Where("id = ?", u.ID).Updates(updates).Error; err != nil {
		return nil, errors.WithStack(err)
	}
	u.LastLoginAt = &now
	u.PasswordHash = ""
	return u, nil
}

func isEnabledAdmin(u model.User) bool {
	return u.Role == model.OperatorAdmin && !u.Disabled
}

func requireOtherAdmin(tx *gorm.DB, id uint) error {
	var admins int64
	err := tx.Model(&model.User{}).
		Where("id <> ? AND role = ? AND disabled = ?", id, model.OperatorAdmin, false).
		Count(&admins).Error
	if err != nil {
		return errors.WithStack(err)
	}
	if admins == 0 {
		return model.InvalidStateError("at least one enabled admin must remain")
	}
	return nil
}
