package storage

import (
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/defensechain/defensechain/storage/model"
)

// Storage is a GORM-based storage implementation
type Storage struct {
	db     *gorm.DB
	hasher passwordHasher
}

var models = []any{
	&model.Defense{},
	&model.Participant{},
	&model.Document{},
	&model.Approval{},
	&model.ApprovalEvent{},
	&model.Certificate{},
	&model.Notification{},
	&model.Task{},
	&model.UploadJob{},
	&model.KeyValue{},
	&model.User{},
}

// NewStorage creates a new GORM-based storage
func NewStorage(config Config) (*Storage, error) {
	db, err := Connect(config)
	if err != nil {
		return nil, err
	}

	if err = db.AutoMigrate(models...); err != nil {
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return &Storage{
		db:     db,
		hasher: newPasswordHasher(config.UsersHash),
	}, nil
}

// Backends returns all stores backed by this warehouse
func (s *Storage) Backends() model.Backends {
	return model.Backends{
		Defenses:      s.DefensesStorage(),
		Documents:     s.DocumentsStorage(),
		Approvals:     s.ApprovalsStorage(),
		Certificates:  s.CertificatesStorage(),
		Notifications: s.NotificationsStorage(),
		Tasks:         s.TasksStorage(),
		UploadJobs:    s.UploadJobsStorage(),
		Users:         s.UsersStorage(),
		KV:            s.KeyValue(),
	}
}

// Ping checks that the database is reachable
func (s *Storage) Ping() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(sqlDB.Ping())
}

// Close closes the underlying connection pool
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.WithStack(err)
	}
	return sqlDB.Close()
}

// insertSideEffects writes the outbox records of a workflow write; it must be
// called with the transaction of that write.
func insertSideEffects(tx *gorm.DB, effects model.SideEffects) error {
	if len(effects.Tasks) > 0 {
		if err := tx.Create(&effects.Tasks).Error; err != nil {
			return errors.Wrap(err, "failed to enqueue tasks")
		}
	}
	if len(effects.Notifications) > 0 {
		if err := tx.Create(&effects.Notifications).Error; err != nil {
			return errors.Wrap(err, "failed to enqueue notifications")
		}
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	msg := err.Error()
	return containsAny(
		msg,
		// SQLite
		"UNIQUE constraint failed",
		// MySQL
		"Duplicate entry", "Error 1062",
		// Postgres
		"duplicate key value", "violates unique constraint",
	)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
