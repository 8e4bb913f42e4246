// Package observability contains logging setup and other observability utilities.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"reqflow/pkg/config"
)

// SetupLogger builds a zap.Logger from the provided configuration, sets it as
// the global logger, and redirects the stdlib log package. The caller should
// defer logger.Sync().
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	switch strings.ToLower(c.Level) {
	case "debug":
		level.SetLevel(zap.DebugLevel)
	case "info":
		level.SetLevel(zap.InfoLevel)
	case "warn", "warning":
		level.SetLevel(zap.WarnLevel)
	case "error":
		level.SetLevel(zap.ErrorLevel)
	default:
		level.SetLevel(zap.InfoLevel)
	}

	encCfg := defaultEncoderConfig(c.Development)
	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var cores []zapcore.Core
	for _, out := range c.Outputs {
		switch strings.ToLower(out) {
		case "stdout":
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level))
		case "stderr":
			cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), level))
		default:
			cores = append(cores, zapcore.NewCore(encoder, fileSyncer(out, c), level))
		}
	}

	core := zapcore.NewTee(cores...)
	opts := []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(zap.ErrorLevel),
	}
	if c.Development {
		opts = append(opts, zap.Development())
	}

	logger := zap.New(core, opts...)
	zap.ReplaceGlobals(logger)
	// redirect stdlib log to zap at Info level
	_, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
	return logger, nil
}

// fileSyncer treats out as a file path, with rotation when enabled.
func fileSyncer(out string, c config.LogConfig) zapcore.WriteSyncer {
	if c.Rotation.Enable {
		name := out
		if strings.TrimSpace(c.Rotation.Filename) != "" {
			name = c.Rotation.Filename
		}
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   name,
			MaxSize:    max(c.Rotation.MaxSizeMB, 10),
			MaxBackups: max(c.Rotation.MaxBackups, 1),
			MaxAge:     max(c.Rotation.MaxAgeDays, 7),
			Compress:   c.Rotation.Compress,
		})
	}
	if dir := dirOf(out); dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		// fallback to stderr on failure
		return zapcore.AddSync(os.Stderr)
	}
	return zapcore.AddSync(f)
}

func defaultEncoderConfig(dev bool) zapcore.EncoderConfig {
	if dev {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return cfg
	}
	return zap.NewProductionEncoderConfig()
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, "/\\")
	if i <= 0 {
		return ""
	}
	return path[:i]
}
