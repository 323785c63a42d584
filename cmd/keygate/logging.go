// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keygate Contributors

package main

import (
	"io"
	"log/slog"

	"github.com/keygate/keygate/internal/config"
	"github.com/keygate/keygate/internal/logging"
)

const serviceName = "keygate"

// setupLogging installs and returns the process logger. An unparsable
// level falls back to info; serve validates it before getting here.
func setupLogging(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return logging.SetDefault(serviceName, version, cfg.Log.Format, level, w)
}
