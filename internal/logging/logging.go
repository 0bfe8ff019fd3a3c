package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File, when set, receives JSON logs rotated by size.
	File string
	// Console writes human-readable logs to stderr. The terminal UI turns it
	// off so log lines do not corrupt the screen.
	Console bool
}

// New builds the application logger. The returned func flushes buffered
// entries and closes the log file.
func New(opts Options) (*zap.SugaredLogger, func(), error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var cores []zapcore.Core
	var rotator *lumberjack.Logger

	if opts.Console {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level))
	}
	if opts.File != "" {
		rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     30,
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), level))
	}
	if len(cores) == 0 {
		return zap.NewNop().Sugar(), func() {}, nil
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closeFn := func() {
		_ = logger.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return logger.Sugar(), closeFn, nil
}

func ParseLevel(raw string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", raw)
}
