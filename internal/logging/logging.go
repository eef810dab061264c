// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level      string `mapstructure:"level" json:"level"`
	Format     string `mapstructure:"format" json:"format"`
	File       string `mapstructure:"file" json:"file"`
	MaxSize    int    `mapstructure:"max_size_mb" json:"max_size_mb"`
	MaxAge     int    `mapstructure:"max_age_days" json:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	Compress   bool   `mapstructure:"compress" json:"compress"`
}

// invocationHook stamps every entry with the id of the current invocation.
type invocationHook struct {
	id string
}

func (h invocationHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h invocationHook) Fire(e *logrus.Entry) error {
	if _, ok := e.Data["invocation"]; !ok {
		e.Data["invocation"] = h.id
	}
	return nil
}

// Init configures the standard logrus logger and returns the invocation id
// stamped on every entry. The closer releases the rotating file, if one was
// opened; it is never nil on success.
func Init(config Config, stderr io.Writer) (string, io.Closer, error) {
	return initLogger(logrus.StandardLogger(), config, stderr)
}

func initLogger(logger *logrus.Logger, config Config, stderr io.Writer) (string, io.Closer, error) {
	if config.Level == "" {
		config.Level = "info"
	}
	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return "", nil, fmt.Errorf("invalid log level: %w", err)
	}
	logger.SetLevel(level)

	switch config.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:          true,
			DisableLevelTruncation: true,
			PadLevelText:           true,
			TimestampFormat:        "2006-01-02 15:04:05",
		})
	default:
		return "", nil, fmt.Errorf("invalid log format %q: want text or json", config.Format)
	}

	var closer io.Closer = nopCloser{}
	output := stderr
	if config.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
			return "", nil, fmt.Errorf("create log directory: %w", err)
		}
		rotate := &lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    config.MaxSize,
			MaxAge:     config.MaxAge,
			MaxBackups: config.MaxBackups,
			Compress:   config.Compress,
		}
		output = io.MultiWriter(stderr, rotate)
		closer = rotate
	}
	logger.SetOutput(output)

	id := uuid.NewString()
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.AddHook(invocationHook{id: id})
	return id, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
