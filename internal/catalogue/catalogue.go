// Package catalogue is the transactional metadata store for collections,
// secrets and key-entries (§4.2, C2). It owns no cryptography and no
// plugin I/O: the request processor is responsible for keeping the
// catalogue and the plugin backends in step via the two-phase mutation
// discipline described in §4.5.
package catalogue

import (
	"context"
	"database/sql"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

// Backend is the narrow database/sql-shaped surface the catalogue needs.
// A concrete SQL engine (internal/catalogue/sqlitecatalogue) implements
// this so that the catalogue itself never imports a specific driver.
type Backend interface {
	Begin() (*sql.Tx, error)
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Close() error
}

// Catalogue is the concurrency-safe façade over a Backend. It enforces the
// recursive transaction guard from §4.2: nested calls to WithTransaction
// reuse the outer transaction instead of opening a new one, but every
// entry must be balanced by a matching exit, and Go's defer-based API
// makes that the caller's responsibility only at the outermost scope.
type Catalogue struct {
	backend Backend
}

// New wraps backend in a Catalogue and seeds the reserved standalone
// collection row if it is not already present (§3: "the catalogue seeds a
// row for it once at startup").
func New(backend Backend) (*Catalogue, error) {
	c := &Catalogue{backend: backend}
	if err := c.ensureStandaloneCollection(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalogue) ensureStandaloneCollection() error {
	return c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		_, err := tx.Exec(
			`INSERT OR IGNORE INTO Collections
				(CollectionName, OwnerApplicationId, UsesDeviceLockKey, StoragePluginName,
				 EncryptionPluginName, AuthPluginName, UnlockSemantic, CustomLockTimeoutMs, AccessControlMode)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			secrets.StandaloneCollectionName, "", false, "", "", "", int(secrets.DeviceLockKeepUnlocked), int64(0), int(secrets.OwnerOnly),
		)
		return err
	})
}

// execer is the subset of *sql.Tx (or the bare Backend, when no
// transaction is open) that statement helpers need. Keeping it separate
// from Backend lets WithTransaction hand either a *sql.Tx or the Backend
// itself to the same callback signature.
type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// txKey is the context key WithTransaction stores its active *sql.Tx
// under, so that a nested call made from within fn's own call chain can
// find and reuse it.
type txKey struct{}

// WithTransaction runs fn within a transaction. If ctx already carries a
// transaction opened by an enclosing WithTransaction call on the *same*
// call chain, fn reuses it rather than opening a new one — the recursive
// guard from §4.2. Only the outermost call commits or rolls back.
//
// Nesting is tracked through ctx rather than through fields shared on
// Catalogue: the request queue's cooperative dispatcher is not the only
// caller into the catalogue — an authentication plugin's own goroutine
// (plugin/auth/devicelock, plugin/auth/inapp) resumes a suspended request
// by calling back into the processor directly, so two unrelated top-level
// WithTransaction calls can genuinely be in flight on different goroutines
// at once. Each such call gets its own *sql.Tx and its own ctx value; they
// never see each other's transaction.
func (c *Catalogue) WithTransaction(ctx context.Context, fn func(context.Context, execer) error) error {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx, tx)
	}

	tx, err := c.backend.Begin()
	if err != nil {
		return secrets.NewErrorf(secrets.ErrDatabaseTransaction, "begin transaction: %v", err)
	}

	fnErr := fn(context.WithValue(ctx, txKey{}, tx), tx)

	if fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseTransaction, "rollback after %v: %v", fnErr, rbErr)
		}
		return fnErr
	}

	if err := tx.Commit(); err != nil {
		return secrets.NewErrorf(secrets.ErrDatabaseTransaction, "commit transaction: %v", err)
	}
	return nil
}

// Close releases the underlying Backend. The Catalogue must not be used
// afterwards.
func (c *Catalogue) Close() error {
	return c.backend.Close()
}
