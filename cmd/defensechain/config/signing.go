package config

import (
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/pkg/errors"
	"github.com/zachmann/go-utils/duration"

	"github.com/defensechain/defensechain/signing"
	"github.com/defensechain/defensechain/storage/model"
)

// SigningConf configures the organization keys and certificate issuance
type SigningConf struct {
	Alg                 string                  `yaml:"alg"`
	Algorithm           jwa.SignatureAlgorithm  `yaml:"-"`
	KeyProvider         string                  `yaml:"key_provider"`
	KeyDir              string                  `yaml:"key_dir"`
	AutoGenerateKeys    bool                    `yaml:"auto_generate_keys"`
	CertificateLifetime duration.DurationOption `yaml:"certificate_lifetime"`
	Organizations       model.Organizations     `yaml:"organizations"`
}

// Key provider types
const (
	KeyProviderDatabase   = "db"
	KeyProviderFilesystem = "filesystem"
)

var defaultSigningConf = SigningConf{
	Alg:                 signing.DefaultAlgorithm.String(),
	KeyProvider:         KeyProviderDatabase,
	AutoGenerateKeys:    true,
	CertificateLifetime: duration.DurationOption(365 * 24 * time.Hour),
	Organizations:       model.DefaultOrganizations(),
}

func (c *SigningConf) validate() error {
	var err error
	c.Algorithm, err = signing.ParseAlgorithm(c.Alg)
	if err != nil {
		return err
	}
	switch c.KeyProvider {
	case KeyProviderDatabase:
	case KeyProviderFilesystem:
		if c.KeyDir == "" {
			return errors.New("key_dir must be specified for the filesystem key provider")
		}
	default:
		return errors.Errorf("unknown key provider '%s'", c.KeyProvider)
	}
	orgs := c.Organizations
	if orgs.Coordinator == "" || orgs.Advisor == "" || orgs.Student == "" {
		return errors.New("an organization must be configured for every signing role")
	}
	return nil
}

// NewKeyProvider returns the configured key provider. autoGenerate replaces
// auto_generate_keys for the database provider, so inspecting tools never
// create keys.
func (c SigningConf) NewKeyProvider(kv model.KeyValueStore, autoGenerate bool) signing.KeyProvider {
	if c.KeyProvider == KeyProviderFilesystem {
		return signing.NewFilesystemKeyProvider(c.KeyDir)
	}
	return signing.NewStoredKeyProvider(kv, c.Algorithm, autoGenerate, c.CertificateLifetime.Duration())
}
