// Package logging configures the process-wide logrus logger.
package logging

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/duewatch/duewatch/internal/config"
)

// Setup applies level, format and output from the logging configuration.
// When a file is configured, output goes to both stdout and a size-rotated
// file.
func Setup(cfg config.LoggingConfig) error {
	level, errParse := log.ParseLevel(cfg.Level)
	if errParse != nil {
		return fmt.Errorf("logging: parse level %q: %w", cfg.Level, errParse)
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stdout, rotated))
	}
	return nil
}
