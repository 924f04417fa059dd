//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Compiled by default. Uses the pure Go SQLite driver, which ships FTS5 but
// no vector extension, so cosine similarity is computed in Go.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
