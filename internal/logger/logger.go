// Package logger provides the process-wide structured logger: zap for
// structured fields, lumberjack for rotation, matching the teacher's
// logger.Config{Level, Filename, MaxSize, MaxBackups, MaxAge, Compress}
// usage in its cmd entrypoints.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the logger's level and its on-disk rotation.
type Config struct {
	Level      string
	Filename   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

var log *zap.Logger

// Init builds the process logger from cfg. Output goes to both the
// rotated file (via lumberjack) and stderr, so an operator watching the
// process directly still sees log lines without tailing the file.
func Init(cfg Config) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return err
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	})

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, fileWriter, level),
		zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(os.Stderr)), level),
	)

	log = zap.New(core, zap.AddCaller())
	return nil
}

func parseLevel(s string) (zapcore.Level, error) {
	var level zapcore.Level
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}

// checkLogger ensures the logger is initialized
func checkLogger() {
	if log == nil {
		panic(fmt.Errorf("logger not initialized, call logger.Init() first"))
	}
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	checkLogger()
	log.Info(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	checkLogger()
	log.Error(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	checkLogger()
	log.Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	checkLogger()
	log.Warn(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	checkLogger()
	log.Fatal(msg, fields...)
}

// Sync flushes any buffered log entries
func Sync() error {
	checkLogger()
	return log.Sync()
}
