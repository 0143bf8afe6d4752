package storage

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DriverType names a supported database
type DriverType string

const (
	DriverSQLite   DriverType = "sqlite"
	DriverMySQL    DriverType = "mysql"
	DriverPostgres DriverType = "postgres"
)

// Valid reports whether d is one of the supported drivers
func (d DriverType) Valid() bool {
	switch d {
	case DriverSQLite, DriverMySQL, DriverPostgres:
		return true
	default:
		return false
	}
}

const sqliteFileName = "defensechain.db"

// sqliteFileParams make concurrent writers wait for the lock instead of
// failing; conditional updates rely on that.
const sqliteFileParams = "_busy_timeout=5000&_journal_mode=WAL"

// DSN builds the connection string for driver from conf. Sessions always run
// in UTC because lease expiry and retry schedules are compared in the
// database.
func DSN(driver DriverType, conf DSNConf) (string, error) {
	switch driver {
	case DriverSQLite:
		return "", errors.Errorf("driver %s does not use dsn", driver)
	case DriverMySQL:
		if conf.Port == 0 {
			conf.Port = 3306
		}
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			conf.User, conf.Password, conf.Host, conf.Port, conf.DB,
		), nil
	case DriverPostgres:
		if conf.Port == 0 {
			conf.Port = 5432
		}
		if conf.SSLMode == "" {
			conf.SSLMode = "disable"
		}
		return fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%d sslmode=%s TimeZone=UTC",
			conf.Host, conf.User, conf.Password, conf.DB, conf.Port, conf.SSLMode,
		), nil
	default:
		return "", errors.Errorf("unsupported driver '%s'", driver)
	}
}

// DSNConf holds the connection parameters used to build a mysql or postgres
// DSN when none is configured directly.
type DSNConf struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       string `yaml:"db"`
	// SSLMode is only used by postgres
	SSLMode string `yaml:"sslmode"`
}

// Config describes how to open the database
type Config struct {
	Driver DriverType
	// DSN overrides the connection string. For sqlite it may also be a file
	// path or a "file:" URI.
	DSN string
	// DataDir holds the sqlite database file when DSN is empty
	DataDir string
	// Debug logs every statement
	Debug bool
	// SlowQueryThreshold logs statements taking longer; 0 uses 500ms
	SlowQueryThreshold time.Duration
	// MaxOpenConns limits the connection pool; 0 means unlimited
	MaxOpenConns int
	// UsersHash defines parameters for hashing ops user passwords
	UsersHash Argon2idParams
}

// Argon2idParams configures Argon2id hashing parameters
type Argon2idParams struct {
	Time        uint32 `yaml:"time"`
	MemoryKiB   uint32 `yaml:"memory_kib"`
	Parallelism uint8  `yaml:"parallelism"`
	KeyLen      uint32 `yaml:"key_len"`
	SaltLen     uint32 `yaml:"salt_len"`
}

func dialector(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case DriverSQLite:
		dsn := cfg.DSN
		if dsn == "" {
			if cfg.DataDir == "" {
				return nil, errors.New("sqlite needs a dsn or a data directory")
			}
			dsn = fmt.Sprintf("file:%s?%s", filepath.Join(cfg.DataDir, sqliteFileName), sqliteFileParams)
		}
		return sqlite.Open(dsn), nil
	case DriverMySQL:
		return mysql.Open(cfg.DSN), nil
	case DriverPostgres:
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, errors.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// gormLogger routes gorm's output through logrus. Missing records are an
// expected outcome of lookups and never logged.
func gormLogger(cfg Config) logger.Interface {
	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}
	slow := cfg.SlowQueryThreshold
	if slow == 0 {
		slow = 500 * time.Millisecond
	}
	return logger.New(
		log.StandardLogger(), logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}

// Connect opens the database described by cfg and applies the pool limits
func Connect(cfg Config) (*gorm.DB, error) {
	d, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(
		d, &gorm.Config{
			Logger:  gormLogger(cfg),
			NowFunc: func() time.Time { return time.Now().UTC() },
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s database", cfg.Driver)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.WithStack(err)
		}
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	return db, nil
}
