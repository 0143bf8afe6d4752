package config

import (
	"context"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/zachmann/go-utils/duration"
	"github.com/zachmann/go-utils/fileutils"

	"github.com/defensechain/defensechain/resilience"
	"github.com/defensechain/defensechain/storage/model"
)

type ledgerConf struct {
	URL     string                  `yaml:"url"`
	Timeout duration.DurationOption `yaml:"timeout"`
}

func checkURL(raw string) error {
	if raw == "" {
		return errors.New("url must be specified")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.WithStack(err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Errorf("unsupported url scheme in '%s'", raw)
	}
	return nil
}

func (c *ledgerConf) validate() error {
	return checkURL(c.URL)
}

var defaultLedgerConf = ledgerConf{
	URL:     "http://localhost:3000",
	Timeout: duration.DurationOption(30 * time.Second),
}

// ContentStoreConf configures the storage network client and its local cache
type ContentStoreConf struct {
	URL      string                  `yaml:"url"`
	Timeout  duration.DurationOption `yaml:"timeout"`
	CacheDir string                  `yaml:"cache_dir"`
}

func (c *ContentStoreConf) validate() error {
	if err := checkURL(c.URL); err != nil {
		return err
	}
	if c.CacheDir != "" && !fileutils.FileExists(c.CacheDir) {
		return errors.Errorf("cache directory '%s' does not exist", c.CacheDir)
	}
	return nil
}

var defaultContentStoreConf = ContentStoreConf{
	URL:     "http://localhost:5001",
	Timeout: duration.DurationOption(time.Minute),
}

// Upload job backends
const (
	UploadBackendDatabase = "db"
	UploadBackendRedis    = "redis"
)

// UploadsConf configures the storage resilience queue
type UploadsConf struct {
	Backend      string                  `yaml:"backend"`
	Redis        redisConf               `yaml:"redis"`
	InitialDelay duration.DurationOption `yaml:"initial_delay"`
	MaxAttempts  int                     `yaml:"max_attempts"`
	PollInterval duration.DurationOption `yaml:"poll_interval"`
	Lease        duration.DurationOption `yaml:"lease"`
}

type redisConf struct {
	Addr      string `yaml:"addr"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

func (c *UploadsConf) validate() error {
	switch c.Backend {
	case UploadBackendDatabase:
	case UploadBackendRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis.addr must be specified for the redis backend")
		}
	default:
		return errors.Errorf("unknown upload job backend '%s'", c.Backend)
	}
	if c.MaxAttempts <= 0 {
		return errors.New("max_attempts must be positive")
	}
	if c.InitialDelay.Duration() <= 0 || c.PollInterval.Duration() <= 0 || c.Lease.Duration() <= 0 {
		return errors.New("initial_delay, poll_interval and lease must be positive")
	}
	return nil
}

// Policy returns the retry policy for new upload jobs
func (c UploadsConf) Policy() resilience.Policy {
	return resilience.Policy{
		InitialDelay: c.InitialDelay.Duration(),
		MaxAttempts:  c.MaxAttempts,
		Lease:        c.Lease.Duration(),
	}
}

var defaultUploadsConf = UploadsConf{
	Backend: UploadBackendDatabase,
	Redis: redisConf{
		Addr:      "localhost:6379",
		KeyPrefix: "defensechain",
	},
	InitialDelay: duration.DurationOption(model.DefaultUploadInitialDelay),
	MaxAttempts:  model.DefaultUploadMaxAttempts,
	PollInterval: duration.DurationOption(5 * time.Second),
	Lease:        duration.DurationOption(model.DefaultUploadLease),
}

// LoadUploadJobStore returns the upload job store selected by c. db is used
// for the database backend.
func LoadUploadJobStore(ctx context.Context, c UploadsConf, db model.UploadJobStore) (model.UploadJobStore, error) {
	if c.Backend != UploadBackendRedis {
		return db, nil
	}
	client := redis.NewClient(
		&redis.Options{
			Addr:     c.Redis.Addr,
			Username: c.Redis.Username,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		},
	)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "could not connect to redis")
	}
	log.WithField("addr", c.Redis.Addr).Info("Loaded redis upload job store")
	return resilience.NewRedisJobStore(client, c.Redis.KeyPrefix), nil
}
