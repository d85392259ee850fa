package catalogue

import (
	"context"
	"database/sql"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

// FindKeyEntry looks up a key-entry row by its composite identity. The
// select list below is the corrected version of the crypto helper's
// original KeyEntries query, which had a trailing comma before its FROM
// clause (specified as a bug in §3): CollectionName, KeyName,
// CryptoPluginName, StoragePluginName — four columns, no more.
func (c *Catalogue) FindKeyEntry(collectionName, keyName string) (secrets.KeyEntry, bool, error) {
	var (
		k     secrets.KeyEntry
		found bool
	)
	err := c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		row := tx.QueryRow(
			`SELECT CollectionName, KeyName, CryptoPluginName, StoragePluginName
			 FROM KeyEntries WHERE CollectionName = ? AND KeyName = ?`, collectionName, keyName)
		switch err := row.Scan(&k.CollectionName, &k.KeyName, &k.CryptoPluginName, &k.StoragePluginName); err {
		case nil:
			found = true
			return nil
		case sql.ErrNoRows:
			return nil
		default:
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "find key entry %q/%q: %v", collectionName, keyName, err)
		}
	})
	return k, found, err
}

// KeyEntryIdentifiers lists the composite identities of every catalogued
// key entry, backing the crypto helper surface's key_entry_identifiers
// method (§4.5).
func (c *Catalogue) KeyEntryIdentifiers() ([]secrets.KeyEntry, error) {
	var entries []secrets.KeyEntry
	err := c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		rows, err := tx.Query(`SELECT CollectionName, KeyName, CryptoPluginName, StoragePluginName FROM KeyEntries`)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "key entry identifiers: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			var k secrets.KeyEntry
			if err := rows.Scan(&k.CollectionName, &k.KeyName, &k.CryptoPluginName, &k.StoragePluginName); err != nil {
				return secrets.NewErrorf(secrets.ErrDatabaseQuery, "scan key entry: %v", err)
			}
			entries = append(entries, k)
		}
		return rows.Err()
	})
	return entries, err
}

// InsertKeyEntry adds a key-entry row, run by store_key after the
// underlying key material has been written as an ordinary secret (§4.5).
func (c *Catalogue) InsertKeyEntry(k secrets.KeyEntry) error {
	return c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		_, err := tx.Exec(
			`INSERT INTO KeyEntries (CollectionName, KeyName, CryptoPluginName, StoragePluginName)
			 VALUES (?, ?, ?, ?)`,
			k.CollectionName, k.KeyName, k.CryptoPluginName, k.StoragePluginName,
		)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "insert key entry %q/%q: %v", k.CollectionName, k.KeyName, err)
		}
		return nil
	})
}

// DeleteKeyEntry removes a key-entry row, run by delete_stored_key after
// the underlying secret has been deleted.
func (c *Catalogue) DeleteKeyEntry(collectionName, keyName string) error {
	return c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		_, err := tx.Exec(`DELETE FROM KeyEntries WHERE CollectionName = ? AND KeyName = ?`, collectionName, keyName)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "delete key entry %q/%q: %v", collectionName, keyName, err)
		}
		return nil
	})
}
