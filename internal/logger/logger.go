package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger: JSON in production, colored text otherwise.
// An unknown level falls back to info.
func New(level, env string) *logrus.Logger {
	return NewWithOutput(level, env, os.Stdout)
}

func NewWithOutput(level, env string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	if env == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(out)
	return log
}
