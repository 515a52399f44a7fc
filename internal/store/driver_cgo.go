//go:build sqlite_cgo

package store

// Build with CGO_ENABLED=1 -tags sqlite_cgo to use the C SQLite library.
import _ "github.com/mattn/go-sqlite3"

const sqliteDriverName = "sqlite3"
