// Package logger wraps zap behind package-level helpers so every component
// logs through the same core without threading a logger value around.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// L is the global sugared logger.
	L *zap.SugaredLogger
	// Z is the global zap.Logger for hot paths.
	Z *zap.Logger
	// writer keeps the lumberjack handle alive for the process lifetime.
	writer io.Writer
)

func init() {
	z, _ := zap.NewProduction()
	Z = z
	L = z.Sugar()
}

// Config is the log section of the bot configuration.
type Config struct {
	Level      string // debug, info, warn, error
	File       string // log file path, empty for stderr only
	MaxSize    int    // max size of one log file in MB
	MaxBackups int    // rotated files kept
	MaxAge     int    // days rotated files are kept
}

// Init replaces the global logger according to cfg.
func Init(cfg Config) error {
	var zapLevel zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return fmt.Errorf("unsupported log level: %s", cfg.Level)
	}

	encoderCfg := zapcore.EncoderConfig{
		TimeKey:        "T",
		LevelKey:       "L",
		NameKey:        "N",
		MessageKey:     "M",
		StacktraceKey:  "S",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var output io.Writer = os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}

		maxSize := cfg.MaxSize
		if maxSize <= 0 {
			maxSize = 64
		}
		maxBackups := cfg.MaxBackups
		if maxBackups <= 0 {
			maxBackups = 3
		}
		maxAge := cfg.MaxAge
		if maxAge <= 0 {
			maxAge = 7
		}

		fileWriter := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			MaxAge:     maxAge,
			Compress:   true,
		}
		writer = fileWriter
		output = io.MultiWriter(os.Stderr, fileWriter)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(output),
		zapLevel,
	)

	Z = zap.New(core, zap.AddCallerSkip(1))
	L = Z.Sugar()
	return nil
}

// Sync flushes buffered entries; call before process exit.
func Sync() {
	if Z != nil {
		_ = Z.Sync()
	}
}

// Debug logs at debug level.
func Debug(msg string) { L.Debug(msg) }

// Debugf logs a formatted message at debug level.
func Debugf(template string, args ...interface{}) { L.Debugf(template, args...) }

// Info logs at info level.
func Info(msg string) { L.Info(msg) }

// Infof logs a formatted message at info level.
func Infof(template string, args ...interface{}) { L.Infof(template, args...) }

// Warn logs at warn level.
func Warn(msg string) { L.Warn(msg) }

// Warnf logs a formatted message at warn level.
func Warnf(template string, args ...interface{}) { L.Warnf(template, args...) }

// Error logs at error level.
func Error(msg string) { L.Error(msg) }

// Errorf logs a formatted message at error level.
func Errorf(template string, args ...interface{}) { L.Errorf(template, args...) }
