package catalogue

import (
	"context"
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"

	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/catalogue/sqlitecatalogue"
)

// TestWithTransactionReentersWithoutNewBegin exercises the recursive guard
// directly: a WithTransaction call made from inside another, on the same
// call chain, must reuse the outer *sql.Tx rather than calling
// Backend.Begin again.
func TestWithTransactionReentersWithoutNewBegin(t *testing.T) {
	backend, err := sqlitecatalogue.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	cat, err := New(backend)
	require.NoError(t, err)

	var outerTx, innerTx execer
	err = cat.WithTransaction(context.Background(), func(ctx context.Context, tx execer) error {
		outerTx = tx
		return cat.WithTransaction(ctx, func(_ context.Context, inner execer) error {
			innerTx = inner
			return nil
		})
	})
	require.NoError(t, err)
	assert.Same(t, outerTx, innerTx)
}

// pooledBackend is a catalogue.Backend over a *sql.DB whose connection pool
// is wide enough that two unrelated callers can each hold an open
// transaction at once. sqlitecatalogue.Backend deliberately pins its pool
// to a single connection so real concurrent writers serialize through
// SQLite's file lock instead of racing it, which would make
// TestWithTransactionIsolatesConcurrentCallChains below deadlock on its own
// synchronization rather than exercise it; this test gets its own
// multi-connection pool instead.
type pooledBackend struct {
	db *sql.DB
}

func newPooledBackend(t *testing.T) *pooledBackend {
	// A plain ":memory:" DSN hands each pooled connection its own private
	// database; cache=shared makes every connection in the pool see the
	// same one, which this test needs now that the pool is wider than one.
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { db.Close() })

	// New() seeds the standalone collection row via WithTransaction before
	// this test's own transactions ever run, so the Collections table must
	// exist up front even though this backend otherwise never queries it.
	_, err = db.Exec(`CREATE TABLE Collections (
		CollectionName TEXT PRIMARY KEY,
		OwnerApplicationId TEXT NOT NULL,
		UsesDeviceLockKey INTEGER NOT NULL,
		StoragePluginName TEXT NOT NULL,
		EncryptionPluginName TEXT NOT NULL,
		AuthPluginName TEXT NOT NULL,
		UnlockSemantic INTEGER NOT NULL,
		CustomLockTimeoutMs INTEGER NOT NULL,
		AccessControlMode INTEGER NOT NULL
	)`)
	require.NoError(t, err)

	return &pooledBackend{db: db}
}

func (p *pooledBackend) Begin() (*sql.Tx, error) { return p.db.Begin() }

func (p *pooledBackend) Exec(query string, args ...interface{}) (sql.Result, error) {
	return p.db.Exec(query, args...)
}

func (p *pooledBackend) Query(query string, args ...interface{}) (*sql.Rows, error) {
	return p.db.Query(query, args...)
}

func (p *pooledBackend) QueryRow(query string, args ...interface{}) *sql.Row {
	return p.db.QueryRow(query, args...)
}

func (p *pooledBackend) Close() error { return p.db.Close() }

// TestWithTransactionIsolatesConcurrentCallChains guards against the bug
// where nesting state lived on shared Catalogue fields instead of being
// scoped to a call chain via context.Context: two unrelated top-level
// WithTransaction calls running concurrently on different goroutines (as
// genuinely happens when an authentication plugin's own goroutine, e.g.
// plugin/auth/devicelock's `go p.run(req)`, calls back into the catalogue
// while the dispatcher goroutine is mid-transaction) must never see or
// reuse each other's *sql.Tx.
func TestWithTransactionIsolatesConcurrentCallChains(t *testing.T) {
	cat, err := New(newPooledBackend(t))
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{})
	var txA execer
	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		err := cat.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
			txA = tx
			close(entered)
			<-release
			return nil
		})
		assert.NoError(t, err)
	}()

	// Wait for the goroutine above to enter its transaction and block on
	// release before this call chain starts its own, independent one.
	<-entered

	var txB execer
	err = cat.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		txB = tx
		return nil
	})
	require.NoError(t, err)

	close(release)
	wg.Wait()

	assert.NotSame(t, txA, txB)
}
