package config

import (
	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/storage"
)

// apiConf holds API-related configuration
type apiConf struct {
	Ops opsAPIConf `yaml:"ops"`
}

type opsAPIConf struct {
	Enabled        bool                   `yaml:"enabled"`
	UsersEnabled   bool                   `yaml:"users_enabled"`
	Port           int                    `yaml:"port"`
	Argon2idParams storage.Argon2idParams `yaml:"password_hashing"`
}

func (c *apiConf) validate() error {
	if c.Ops.Port < 0 || c.Ops.Port > 65535 {
		return errors.Errorf("invalid ops api port %d", c.Ops.Port)
	}
	return nil
}

var defaultAPIConf = apiConf{
	Ops: opsAPIConf{
		Enabled:      true,
		UsersEnabled: true,
		Port:         0, // 0 means use main server
		Argon2idParams: storage.Argon2idParams{
			Time:        1,
			MemoryKiB:   64 * 1024,
			Parallelism: 4,
			KeyLen:      64,
			SaltLen:     32,
		},
	},
}
