package logger

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Init configures the global logrus logger from LOG_LEVEL and LOG_FORMAT.
// It is safe to call multiple times; later calls overwrite previous settings.
func Init() {
	log.SetOutput(os.Stdout)

	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel 设置日志级别，无法解析时回退到 info
func SetLevel(levelStr string) {
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := log.ParseLevel(levelStr); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

// L returns the global logger for convenience.
func L() *log.Logger { return log.StandardLogger() }

// WithRun 返回带 run_id 字段的日志条目
func WithRun(runID string) *log.Entry {
	return log.StandardLogger().WithField("run_id", runID)
}
