// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package commons

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the application-wide logging contract. Every component takes a
// Logger rather than a concrete zap type so tests can swap implementations.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Sync() error
}

// LoggerOption configures NewApplicationLogger.
type LoggerOption func(*loggerConfig)

type loggerConfig struct {
	name  string
	path  string
	level string
}

// Name sets the service name embedded in every log line and the rotated
// log file name.
func Name(name string) LoggerOption {
	return func(c *loggerConfig) { c.name = name }
}

// Path sets the directory for rotated log files.
func Path(path string) LoggerOption {
	return func(c *loggerConfig) { c.path = path }
}

// Level sets the minimum log level: debug, info, warn or error.
func Level(level string) LoggerOption {
	return func(c *loggerConfig) { c.level = level }
}

type applicationLogger struct {
	*zap.SugaredLogger
}

// NewApplicationLogger builds the standard application logger: JSON-encoded
// rotated file output plus console output, both at the configured level.
func NewApplicationLogger(opts ...LoggerOption) (Logger, error) {
	cfg := loggerConfig{
		name:  "frontdesk",
		path:  "./log",
		level: "debug",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	level := zapcore.DebugLevel
	if err := level.Set(cfg.level); err != nil {
		level = zapcore.DebugLevel
	}

	fileWriter := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.path, cfg.name+".log"),
		MaxSize:    100, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), fileWriter, level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stdout), level),
	)

	logger := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.Fields(zap.String("service", cfg.name)),
	)
	return &applicationLogger{logger.Sugar()}, nil
}
