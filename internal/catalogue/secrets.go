package catalogue

import (
	"context"
	"database/sql"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
)

// SecretNames returns the names of every secret catalogued under
// collectionName (which may be secrets.StandaloneCollectionName).
func (c *Catalogue) SecretNames(collectionName string) ([]string, error) {
	var names []string
	err := c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		rows, err := tx.Query(`SELECT SecretName FROM Secrets WHERE CollectionName = ?`, collectionName)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "secret names in %q: %v", collectionName, err)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return secrets.NewErrorf(secrets.ErrDatabaseQuery, "scan secret name: %v", err)
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	return names, err
}

// FindSecret looks up a single secret's catalogue row.
func (c *Catalogue) FindSecret(collectionName, secretName string) (secrets.Secret, bool, error) {
	var (
		s     secrets.Secret
		found bool
	)
	err := c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		row := tx.QueryRow(
			`SELECT CollectionName, SecretName, OwnerApplicationId, UsesDeviceLockKey, StoragePluginName,
			        EncryptionPluginName, AuthPluginName, UnlockSemantic, CustomLockTimeoutMs, AccessControlMode
			 FROM Secrets WHERE CollectionName = ? AND SecretName = ?`, collectionName, secretName)
		var unlockSemantic, accessControlMode int
		switch err := row.Scan(
			&s.CollectionName, &s.Name, &s.OwnerApplicationID, &s.UsesDeviceLockKey, &s.StoragePluginName,
			&s.EncryptionPluginName, &s.AuthPluginName, &unlockSemantic, &s.CustomLockTimeoutMs, &accessControlMode,
		); err {
		case nil:
			s.UnlockSemantic = secrets.UnlockSemantic(unlockSemantic)
			s.AccessControlMode = secrets.AccessControlMode(accessControlMode)
			found = true
			return nil
		case sql.ErrNoRows:
			return nil
		default:
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "find secret %q/%q: %v", collectionName, secretName, err)
		}
	})
	return s, found, err
}

// InsertSecret adds a new secret row. The two-phase mutation discipline
// (§4.5) requires this to run before the plugin write for set_secret, so
// the catalogue is never behind what a plugin actually holds.
func (c *Catalogue) InsertSecret(s secrets.Secret) error {
	return c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		_, err := tx.Exec(
			`INSERT INTO Secrets
				(CollectionName, SecretName, OwnerApplicationId, UsesDeviceLockKey, StoragePluginName,
				 EncryptionPluginName, AuthPluginName, UnlockSemantic, CustomLockTimeoutMs, AccessControlMode)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.CollectionName, s.Name, s.OwnerApplicationID, s.UsesDeviceLockKey, s.StoragePluginName,
			s.EncryptionPluginName, s.AuthPluginName, int(s.UnlockSemantic), s.CustomLockTimeoutMs, int(s.AccessControlMode),
		)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "insert secret %q/%q: %v", s.CollectionName, s.Name, err)
		}
		return nil
	})
}

// DeleteSecret removes a secret row. For delete_secret, §4.5 requires the
// plugin delete to happen first and this to run second — the inverse
// order from InsertSecret — so callers here are always removing a row
// whose backing data is already gone.
func (c *Catalogue) DeleteSecret(collectionName, secretName string) error {
	return c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		_, err := tx.Exec(`DELETE FROM Secrets WHERE CollectionName = ? AND SecretName = ?`, collectionName, secretName)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "delete secret %q/%q: %v", collectionName, secretName, err)
		}
		return nil
	})
}

// DeleteSecretsInCollection removes every secret row catalogued under
// collectionName, used by delete_collection once the plugin-side purge of
// the collection's data has completed.
func (c *Catalogue) DeleteSecretsInCollection(collectionName string) error {
	return c.WithTransaction(context.Background(), func(_ context.Context, tx execer) error {
		_, err := tx.Exec(`DELETE FROM Secrets WHERE CollectionName = ?`, collectionName)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrDatabaseQuery, "delete secrets in %q: %v", collectionName, err)
		}
		return nil
	})
}
