// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the structured logger for the advisor client.
//
// The terminal belongs to the UI, so log output goes to a rotating file
// under the app state directory. Engine packages receive a *zap.Logger via
// the app context and never print directly.
package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger construction.
type Options struct {
	// Path is the log file location. Empty means <state dir>/advisor.log.
	Path string

	// Debug lowers the level from Info to Debug.
	Debug bool

	// MaxSizeMB is the rotation threshold per file (default 10).
	MaxSizeMB int

	// MaxBackups is the number of rotated files kept (default 3).
	MaxBackups int
}

// New builds a file-backed zap logger with lumberjack rotation.
func New(opts Options) (*zap.Logger, error) {
	path := opts.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".advisor", "advisor.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     30,
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level := zap.InfoLevel
	if opts.Debug {
		level = zap.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(rotator),
		level,
	)

	return zap.New(core), nil
}
