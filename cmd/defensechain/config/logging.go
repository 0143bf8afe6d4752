package config

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/zachmann/go-utils/fileutils"

	"github.com/defensechain/defensechain/internal/logger"
)

// loggingConf holds all logging-related configuration under the `logging` key.
//
// YAML example:
//
//	logging:
//	  access:
//	    stderr: true
//	  internal:
//	    dir: /var/log/defensechain
//	    stderr: false
//	    level: INFO
//	    smart:
//	      enabled: true
//	      dir: /var/log/defensechain/errors
type loggingConf struct {
	Access   LoggerConf         `yaml:"access"`
	Internal internalLoggerConf `yaml:"internal"`
}

// internalLoggerConf configures application-internal logging.
// Level accepts standard log levels (e.g. DEBUG, INFO, WARN, ERROR).
type internalLoggerConf struct {
	LoggerConf `yaml:",inline"`

	Level string          `yaml:"level"`
	Smart smartLoggerConf `yaml:"smart"`
}

// LoggerConf holds configuration related to logging
type LoggerConf struct {
	Dir    string `yaml:"dir"`
	StdErr bool   `yaml:"stderr"`
}

// smartLoggerConf duplicates errors to Dir. If Dir is empty, the internal
// logger's Dir is used.
type smartLoggerConf struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

func checkLoggingDirExists(dir string) error {
	if dir != "" && !fileutils.FileExists(dir) {
		return errors.Errorf("logging directory '%s' does not exist", dir)
	}
	return nil
}

func (l *loggingConf) validate() error {
	if err := checkLoggingDirExists(l.Access.Dir); err != nil {
		return err
	}
	if err := checkLoggingDirExists(l.Internal.Dir); err != nil {
		return err
	}
	if _, err := log.ParseLevel(l.Internal.Level); err != nil {
		return errors.WithStack(err)
	}
	if l.Internal.Smart.Enabled {
		if l.Internal.Smart.Dir == "" {
			l.Internal.Smart.Dir = l.Internal.Dir
		}
		if err := checkLoggingDirExists(l.Internal.Smart.Dir); err != nil {
			return err
		}
	}
	return nil
}

// LoggerOptions returns the options for logger.Init
func (l loggingConf) LoggerOptions() logger.Options {
	opts := logger.Options{
		Dir:    l.Internal.Dir,
		StdErr: l.Internal.StdErr,
		Level:  l.Internal.Level,
	}
	if l.Internal.Smart.Enabled {
		opts.ErrorDir = l.Internal.Smart.Dir
	}
	return opts
}

var defaultLoggingConf = loggingConf{
	Access: LoggerConf{
		StdErr: true,
	},
	Internal: internalLoggerConf{
		Level: "INFO",
	},
}
