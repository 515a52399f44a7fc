//go:build !sqlite_cgo

package store

// Pure Go SQLite; no C toolchain required.
import _ "modernc.org/sqlite"

const sqliteDriverName = "sqlite"
