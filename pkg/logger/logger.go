package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New creates a new logger with the specified log level writing to stdout
func New(level string) *logrus.Logger {
	return NewWithOutput(level, os.Stdout)
}

// NewWithOutput creates a logger writing to out. Colors are only forced on stdout.
func NewWithOutput(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()

	// Unknown levels fall back to info
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		ForceColors:   out == os.Stdout,
	})
	logger.SetOutput(out)

	return logger
}

// ForCommand returns an entry tagged with the chat command being handled
func ForCommand(logger *logrus.Logger, command string, chatID int64) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"command": command,
		"chat_id": chatID,
	})
}
