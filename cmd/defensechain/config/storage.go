package config

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zachmann/go-utils/duration"

	"github.com/defensechain/defensechain/storage"
	"github.com/defensechain/defensechain/storage/model"
)

type storageConf struct {
	Driver       storage.DriverType      `yaml:"driver"`
	DataDir      string                  `yaml:"data_dir"`
	DSN          string                  `yaml:"dsn"`
	Debug        bool                    `yaml:"debug"`
	SlowQuery    duration.DurationOption `yaml:"slow_query_threshold"`
	MaxOpenConns int                     `yaml:"max_open_conns"`

	storage.DSNConf `yaml:",inline"`
}

func (c *storageConf) validate() error {
	if !c.Driver.Valid() {
		return errors.Errorf("unsupported driver '%s'", c.Driver)
	}
	if c.MaxOpenConns < 0 {
		return errors.New("max_open_conns must not be negative")
	}
	if c.Driver == storage.DriverSQLite {
		if c.DataDir == "" && c.DSN == "" {
			return errors.New("data_dir must be specified")
		}
		return nil
	}
	var err error
	if c.DSN == "" {
		c.DSN, err = storage.DSN(c.Driver, c.DSNConf)
	}
	return err
}

var defaultStorageConf = storageConf{
	Driver: storage.DriverSQLite,
	DSNConf: storage.DSNConf{
		User: "defensechain",
		Host: "localhost",
		DB:   "defensechain",
	},
}

// LoadStorageBackends opens the database described by c and returns the
// storage backends
func LoadStorageBackends(c Config) (*storage.Storage, model.Backends, error) {
	warehouse, err := storage.NewStorage(
		storage.Config{
			Driver:             c.Storage.Driver,
			DSN:                c.Storage.DSN,
			DataDir:            c.Storage.DataDir,
			Debug:              c.Storage.Debug,
			SlowQueryThreshold: c.Storage.SlowQuery.Duration(),
			MaxOpenConns:       c.Storage.MaxOpenConns,
			UsersHash:          c.API.Ops.Argon2idParams,
		},
	)
	if err != nil {
		return nil, model.Backends{}, err
	}
	log.WithField("driver", c.Storage.Driver).Info("Loaded storage backend")
	return warehouse, warehouse.Backends(), nil
}
