// Package logger 根据配置初始化 logrus。
package logger

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/qs3c/tos_scan_server/config"
)

func Setup(cfg config.LogConfig) {
	log.SetOutput(os.Stdout)

	switch strings.ToLower(cfg.Format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
		log.WithError(err).Warnf("invalid log level %q, using info", cfg.Level)
	}
	log.SetLevel(level)
}
