package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// parseLogLevel maps a CLI/config level string to a logrus level.
func parseLogLevel(level string) (logrus.Level, error) {
	switch level {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return 0, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", level)
	}
}

// configureLogger creates a logger with the level taken from --log-level,
// falling back to fallbackLevel (the config file value) and then to info,
// which keeps the "STATE changed" confirmations visible by default.
func configureLogger(cmd *cobra.Command, fallbackLevel string) (*logrus.Logger, error) {
	logLevel := logrus.InfoLevel

	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr == "" {
		logLevelStr = fallbackLevel
	}
	if logLevelStr != "" {
		var err error
		if logLevel, err = parseLogLevel(logLevelStr); err != nil {
			return nil, err
		}
	}

	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
