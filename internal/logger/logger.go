// Package logger configures the process-wide logrus logger
package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Options configures Init
type Options struct {
	// Dir is where internal.log is written; empty disables file logging
	Dir string
	// StdErr also writes to stderr
	StdErr bool
	// Level is a logrus level name, e.g. INFO or debug
	Level string
	// ErrorDir, if set, receives a copy of every error entry in errors.log
	ErrorDir string
}

const (
	logFileName      = "internal.log"
	errorLogFileName = "errors.log"
)

func openLogFile(dir, name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	return f, errors.WithStack(err)
}

// Init sets level, formatter and outputs of the standard logger. Without a
// directory and without stderr, logs go to stderr anyway.
func Init(opts Options) error {
	log.SetFormatter(
		&log.TextFormatter{
			FullTimestamp: true,
		},
	)
	if opts.Level != "" {
		level, err := log.ParseLevel(opts.Level)
		if err != nil {
			return errors.Wrap(err, "invalid log level")
		}
		log.SetLevel(level)
	}

	var writers []io.Writer
	if opts.Dir != "" {
		f, err := openLogFile(opts.Dir, logFileName)
		if err != nil {
			return err
		}
		writers = append(writers, f)
	}
	if opts.StdErr || len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	log.SetOutput(io.MultiWriter(writers...))

	if opts.ErrorDir != "" {
		f, err := openLogFile(opts.ErrorDir, errorLogFileName)
		if err != nil {
			return err
		}
		log.AddHook(&errorHook{out: f})
	}
	return nil
}

// errorHook duplicates error entries to a separate writer
type errorHook struct {
	out io.Writer
}

func (*errorHook) Levels() []log.Level {
	return []log.Level{log.PanicLevel, log.FatalLevel, log.ErrorLevel}
}

func (h *errorHook) Fire(e *log.Entry) error {
	line, err := e.Bytes()
	if err != nil {
		return err
	}
	_, err = h.out.Write(line)
	return err
}
