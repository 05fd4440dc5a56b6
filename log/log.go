// Package log holds the shared logrus logger used by every scorecard
// component. The level is read from BSC_LOGLEVEL on each call to Get.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	}
	log.Out = os.Stderr
}

// Get returns the process-wide logger with its level refreshed from the
// environment.
func Get() *logrus.Logger {
	switch strings.ToLower(os.Getenv("BSC_LOGLEVEL")) {
	case "error":
		log.Level = logrus.ErrorLevel
	case "warn":
		log.Level = logrus.WarnLevel
	case "debug":
		log.Level = logrus.DebugLevel
	default:
		log.Level = logrus.InfoLevel
	}
	return log
}

// Component returns an entry tagged with the component prefix.
func Component(name string) *logrus.Entry {
	return Get().WithField("prefix", name)
}

// Discard returns an entry that drops everything, for tests and quiet CLI modes.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.Out = io.Discard
	return logrus.NewEntry(l)
}
