package config

import (
	"os"
	"reflect"
	"sort"

	"github.com/fatih/structs"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zachmann/go-utils/fileutils"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the defensechain daemon
type Config struct {
	Server        ServerConf        `yaml:"server"`
	Storage       storageConf       `yaml:"storage"`
	Logging       loggingConf       `yaml:"logging"`
	API           apiConf           `yaml:"api"`
	Signing       SigningConf       `yaml:"signing"`
	Ledger        ledgerConf        `yaml:"ledger"`
	ContentStore  ContentStoreConf  `yaml:"content_store"`
	Uploads       UploadsConf       `yaml:"uploads"`
	Notifications notificationsConf `yaml:"notifications"`
	Anchoring     anchoringConf     `yaml:"anchoring"`
	Workflow      workflowConf      `yaml:"workflow"`
	Outbox        outboxConf        `yaml:"outbox"`
}

// Environment variables that override secrets from the config file
const (
	EnvDBPassword    = "DEFENSECHAIN_DB_PASSWORD"
	EnvSMTPPassword  = "DEFENSECHAIN_SMTP_PASSWORD"
	EnvRedisPassword = "DEFENSECHAIN_REDIS_PASSWORD"
)

var c Config

var possibleConfigLocations = []string{
	".",
	"config",
	"/config",
	"/etc/defensechain",
}

var configFileNames = []string{
	"config.yaml",
	"config.yml",
	"defensechain.yaml",
}

// Get returns the Config
func Get() Config {
	return c
}

// defaultConfig returns a Config filled with the package defaults
func defaultConfig() Config {
	return Config{
		Server:        defaultServerConf,
		Storage:       defaultStorageConf,
		Logging:       defaultLoggingConf,
		API:           defaultAPIConf,
		Signing:       defaultSigningConf,
		Ledger:        defaultLedgerConf,
		ContentStore:  defaultContentStoreConf,
		Uploads:       defaultUploadsConf,
		Notifications: defaultNotificationsConf,
		Anchoring:     defaultAnchoringConf,
		Workflow:      defaultWorkflowConf,
		Outbox:        defaultOutboxConf,
	}
}

// Load reads the config file, applies secrets from the environment and
// validates the result. If filename is empty the default locations are
// searched.
func Load(filename string) error {
	data, file, err := readConfigFile(filename)
	if err != nil {
		return err
	}
	if err = godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("could not load .env file")
	}
	conf, err := load(data)
	if err != nil {
		return errors.WithMessagef(err, "error in config file '%s'", file)
	}
	c = *conf
	return nil
}

func readConfigFile(filename string) ([]byte, string, error) {
	if filename != "" {
		data, err := os.ReadFile(filename)
		return data, filename, errors.WithStack(err)
	}
	for _, dir := range possibleConfigLocations {
		for _, name := range configFileNames {
			p := dir + "/" + name
			if !fileutils.FileExists(p) {
				continue
			}
			data, err := os.ReadFile(p)
			return data, p, errors.WithStack(err)
		}
	}
	return nil, "", errors.New("could not find config file in any of the default locations")
}

func load(data []byte) (*Config, error) {
	conf := defaultConfig()
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, errors.WithStack(err)
	}
	if unknown := unknownSections(data); len(unknown) > 0 {
		log.WithField("sections", unknown).Warn("ignoring unknown config sections")
	}
	conf.applyEnv()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return &conf, nil
}

// unknownSections returns the top level keys of data that do not belong to
// any Config section
func unknownSections(data []byte) []string {
	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil
	}
	for _, f := range structs.New(Config{}).Fields() {
		delete(raw, f.Tag("yaml"))
	}
	var unknown []string
	for k := range raw {
		unknown = append(unknown, k)
	}
	sort.Strings(unknown)
	return unknown
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDBPassword); v != "" {
		c.Storage.Password = v
	}
	if v := os.Getenv(EnvSMTPPassword); v != "" {
		c.Notifications.SMTP.Password = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Uploads.Redis.Password = v
	}
}

type validatable interface {
	validate() error
}

func (c *Config) validate() error {
	v := reflect.ValueOf(c).Elem()
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		section, ok := v.Field(i).Addr().Interface().(validatable)
		if !ok {
			continue
		}
		if err := section.validate(); err != nil {
			return errors.WithMessagef(err, "invalid '%s' section", t.Field(i).Tag.Get("yaml"))
		}
	}
	return nil
}
