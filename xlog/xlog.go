// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

// Package xlog threads a structured logger through the pre-indexing core.
// It is a thin alias over erigon-lib/log/v3 so every package names loggers
// the same way the rest of the module stack does, without each package
// importing the upstream log module directly.
package xlog

import (
	"fmt"

	log "github.com/erigontech/erigon-lib/log/v3"
)

// Logger is the key-value structured logger every component accepts.
type Logger = log.Logger

// New returns a child logger tagged with the given context pairs.
func New(ctx ...any) Logger {
	return log.New(ctx...)
}

// Default returns the package-wide root logger, used when a caller does not
// wire its own logger through.
func Default() Logger {
	return log.Root()
}

// WithPrefix formats msg with a bracketed component prefix, matching the
// "[component] message" convention used across the staged-sync loop.
func WithPrefix(prefix, msg string) string {
	return fmt.Sprintf("[%s] %s", prefix, msg)
}
