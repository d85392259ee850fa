package catalogue

import (
	"context"
	"database/sql"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

// CollectionNames returns every catalogued collection name, including the
// reserved standalone collection.
func (c *Catalogue) CollectionNames() ([]string, error) {
	var names []string
	err := c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		rows, err := tx.Query(`SELECT CollectionName FROM Collections`)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "collection names: %v", err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return secrets.NewErrorf(secrets.ErrDatabaseQuery, "scan collection name: %v", err)
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	return names, err
}

// FindCollection looks up a single collection by name. It returns
// (secrets.Collection{}, false, nil) when no row matches.
func (c *Catalogue) FindCollection(name string) (secrets.Collection, bool, error) {
	var (
		col   secrets.Collection
		found bool
	)
	err := c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		row := tx.QueryRow(
			`SELECT CollectionName, OwnerApplicationId, UsesDeviceLockKey, StoragePluginName,
			        EncryptionPluginName, AuthPluginName, UnlockSemantic, CustomLockTimeoutMs, AccessControlMode
			 FROM Collections WHERE CollectionName = ?`, name)
		var unlockSemantic, accessControlMode int
		switch err := row.Scan(
			&col.Name, &col.OwnerApplicationID, &col.UsesDeviceLockKey, &col.StoragePluginName,
			&col.EncryptionPluginName, &col.AuthPluginName, &unlockSemantic, &col.CustomLockTimeoutMs, &accessControlMode,
		); err {
		case nil:
			col.UnlockSemantic = secrets.UnlockSemantic(unlockSemantic)
			col.AccessControlMode = secrets.AccessControlMode(accessControlMode)
			found = true
			return nil
		case sql.ErrNoRows:
			return nil
		default:
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "find collection %q: %v", name, err)
		}
	})
	return col, found, err
}

// InsertCollection adds a new collection row. Callers must check
// CollectionAlreadyExists themselves (or rely on the UNIQUE constraint on
// CollectionName surfacing as a DatabaseQueryError) — the two-phase
// mutation discipline in §4.5 calls FindCollection first.
func (c *Catalogue) InsertCollection(col secrets.Collection) error {
	return c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		_, err := tx.Exec(
			`INSERT INTO Collections
				(CollectionName, OwnerApplicationId, UsesDeviceLockKey, StoragePluginName,
				 EncryptionPluginName, AuthPluginName, UnlockSemantic, CustomLockTimeoutMs, AccessControlMode)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			col.Name, col.OwnerApplicationID, col.UsesDeviceLockKey, col.StoragePluginName,
			col.EncryptionPluginName, col.AuthPluginName, int(col.UnlockSemantic), col.CustomLockTimeoutMs, int(col.AccessControlMode),
		)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "insert collection %q: %v", col.Name, err)
		}
		return nil
	})
}

// DeleteCollection removes a collection row by name. The caller is
// responsible for having already deleted (or confirmed the absence of)
// every secret catalogued under it; this method does not cascade.
//
// AccessControlMode is read via FindCollection above using the explicit
// column name, not positional index 0 — the original daemon's
// deleteCollection read column 0 instead of the AccessControlMode column,
// which happened to work only because of the particular SELECT list it
// used there. This catalogue never relies on column position.
func (c *Catalogue) DeleteCollection(name string) error {
	return c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		_, err := tx.Exec(`DELETE FROM Collections WHERE CollectionName = ?`, name)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "delete collection %q: %v", name, err)
		}
		return nil
	})
}
