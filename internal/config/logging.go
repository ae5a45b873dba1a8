package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger and returns an entry tagged with the
// service name. Unknown levels fall back to info.
func NewLogger(cfg LoggingConfig, service string) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	return logger.WithField("service", service)
}
