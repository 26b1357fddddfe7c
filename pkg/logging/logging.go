package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ehr/registry/internal/config"
)

// New builds the process logger. Development mode writes human readable
// console output; otherwise JSON lines. When LOG_FILE is set the same
// events are also written to a size rotated file.
func New(cfg *config.Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter is New with an explicit primary sink.
func NewWithWriter(cfg *config.Config, out io.Writer) zerolog.Logger {
	var primary io.Writer = out
	if cfg.IsDev() {
		primary = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: out != os.Stdout}
	}

	w := primary
	if cfg.LogFile != "" {
		w = io.MultiWriter(primary, FileWriter(cfg))
	}

	return zerolog.New(w).
		Level(ParseLevel(cfg.LogLevel)).
		With().
		Timestamp().
		Str("service", "registry").
		Str("env", cfg.Env).
		Logger()
}

// FileWriter returns the rotating sink configured by the LOG_* settings.
func FileWriter(cfg *config.Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAge:     cfg.LogMaxAgeDays,
		Compress:   true,
	}
}

// ParseLevel maps a level name onto zerolog, falling back to info.
func ParseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
