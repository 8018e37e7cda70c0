package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func parseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

func NewLogger(level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))
	return config.Build()
}

// NewFileLogger appends JSON lines to path.
func NewFileLogger(path, level string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(parseLevel(level))
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	return config.Build()
}

// NewBotLogger writes to stdout and to <dir>/<bot>/<YYYY-MM-DD>/main.log, with errors
// also copied to error.log in the same directory.
func NewBotLogger(dir, botName, level string, now time.Time) (*zap.Logger, error) {
	dayDir := filepath.Join(dir, botName, now.Format("2006-01-02"))
	if err := os.MkdirAll(dayDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	mainFile, _, err := zap.Open(filepath.Join(dayDir, "main.log"))
	if err != nil {
		return nil, err
	}
	errorFile, _, err := zap.Open(filepath.Join(dayDir, "error.log"))
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	lvl := zap.NewAtomicLevelAt(parseLevel(level))

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stdout), lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), mainFile, lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), errorFile, zapcore.ErrorLevel),
	)
	return zap.New(core, zap.AddCaller()).Named(botName), nil
}
