// Package sqlitecatalogue is the concrete SQL engine behind
// internal/catalogue's Backend interface, using the pure-Go, cgo-free
// modernc.org/sqlite driver so the daemon has no C toolchain dependency.
package sqlitecatalogue

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS Collections (
	CollectionName TEXT PRIMARY KEY,
	OwnerApplicationId TEXT NOT NULL,
	UsesDeviceLockKey INTEGER NOT NULL,
	StoragePluginName TEXT NOT NULL,
	EncryptionPluginName TEXT NOT NULL,
	AuthPluginName TEXT NOT NULL,
	UnlockSemantic INTEGER NOT NULL,
	CustomLockTimeoutMs INTEGER NOT NULL,
	AccessControlMode INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS Secrets (
	CollectionName TEXT NOT NULL,
	SecretName TEXT NOT NULL,
	OwnerApplicationId TEXT NOT NULL,
	UsesDeviceLockKey INTEGER NOT NULL,
	StoragePluginName TEXT NOT NULL,
	EncryptionPluginName TEXT NOT NULL,
	AuthPluginName TEXT NOT NULL,
	UnlockSemantic INTEGER NOT NULL,
	CustomLockTimeoutMs INTEGER NOT NULL,
	AccessControlMode INTEGER NOT NULL,
	PRIMARY KEY (CollectionName, SecretName)
);

CREATE TABLE IF NOT EXISTS KeyEntries (
	CollectionName TEXT NOT NULL,
	KeyName TEXT NOT NULL,
	CryptoPluginName TEXT NOT NULL,
	StoragePluginName TEXT NOT NULL,
	PRIMARY KEY (CollectionName, KeyName)
);
`

// Backend is the modernc.org/sqlite-backed implementation of
// catalogue.Backend. It wraps a *sql.DB whose pool Open pins to a single
// connection, so concurrent transactions serialize in Begin;
// internal/catalogue holds no lock of its own and only tracks nesting
// of WithTransaction calls through their context.
type Backend struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database file at path and
// applies the catalogue schema idempotently.
func Open(path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite catalogue at %s: %w", path, err)
	}
	// SQLite allows only one writer at a time regardless of connection
	// count; pinning the pool to a single connection means a second,
	// genuinely concurrent WithTransaction caller (e.g. an
	// authentication plugin's own completion goroutine) blocks in
	// Begin until the first commits or rolls back, instead of racing
	// SQLite's file lock and surfacing a "database is locked" error.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalogue schema: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) Begin() (*sql.Tx, error) { return b.db.Begin() }

func (b *Backend) Exec(query string, args ...interface{}) (sql.Result, error) {
	return b.db.Exec(query, args...)
}

func (b *Backend) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return b.db.Query(query, args...)
}

func (b *Backend) QueryRow(query string, args ...interface{}) *sql.Row {
	return b.db.QueryRow(query, args...)
}

func (b *Backend) Close() error { return b.db.Close() }
