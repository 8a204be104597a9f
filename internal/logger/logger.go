// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/bonial-oss/vulnmatch/internal/config"
)

// New creates the root logger. It writes to stderr so that stdout only
// carries reports.
func New(cfg config.LogConfig, name string) hclog.Logger {
	return NewWithOutput(cfg, name, os.Stderr)
}

// NewWithOutput creates the root logger writing to w.
func NewWithOutput(cfg config.LogConfig, name string, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		Level:       parseLevel(cfg.Level, w),
		JSONFormat:  cfg.JSON,
		DisableTime: cfg.DisableTime,
		Output:      w,
	})
}

// parseLevel converts a level name; unknown names fall back to INFO with a
// warning.
func parseLevel(name string, w io.Writer) hclog.Level {
	if strings.TrimSpace(name) == "" {
		return hclog.Info
	}
	level := hclog.LevelFromString(name)
	if level == hclog.NoLevel {
		hclog.New(&hclog.LoggerOptions{
			Level:       hclog.Warn,
			DisableTime: true,
			Output:      w,
		}).Warn("unrecognized log level, defaulting to INFO", "level", name)
		return hclog.Info
	}
	return level
}
