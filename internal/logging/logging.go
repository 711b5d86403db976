// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/jonieats/assistant/internal/config"
)

// Setup applies the level and format from cfg to the standard logger.
// Unknown levels fall back to info.
func Setup(cfg config.LogConfig) {
	log.SetOutput(os.Stderr)

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	if err != nil && cfg.Level != "" {
		log.Warnf("[logging] unknown LOG_LEVEL %q, using info", cfg.Level)
	}
}
