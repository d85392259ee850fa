package processor

import (
	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/misc"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

// accessibleCollection looks up a collection and applies the checks
// common to every verb that operates on an existing, named collection
// (§4.5): must exist, must not be the reserved standalone name, must not
// require the stubbed SystemControlled access-control path, and must be
// owned by the calling application.
func (p *Processor) accessibleCollection(name, callerApplicationID string) (secrets.Collection, error) {
	if secrets.IsReservedName(name) {
		return secrets.Collection{}, secrets.NewErrorf(secrets.ErrInvalidCollection, "collection name %q is reserved", name)
	}
	col, found, err := p.cat.FindCollection(name)
	if err != nil {
		return secrets.Collection{}, err
	}
	if !found {
		return secrets.Collection{}, secrets.NewErrorf(secrets.ErrInvalidCollection, "collection %q does not exist", name)
	}
	if col.AccessControlMode == secrets.SystemControlled {
		return secrets.Collection{}, secrets.NewError(secrets.ErrOperationNotSupported, "system-controlled access control is not implemented")
	}
	if col.OwnerApplicationID != callerApplicationID {
		return secrets.Collection{}, secrets.NewErrorf(secrets.ErrPermissions, "application %q does not own collection %q", callerApplicationID, name)
	}
	return col, nil
}

// checkInteractionAllowed enforces §4.5's rule for launching an
// authentication flow: ApplicationSpecific plugins require the caller to
// host the UI itself (InProcessUI); any other plugin still needs the
// caller to permit some form of user interaction.
func (p *Processor) checkInteractionAllowed(authPlugin plugin.AuthenticationPlugin, uiMode secrets.UIMode) error {
	if authPlugin.AuthenticationType() == plugin.ApplicationSpecific {
		if uiMode != secrets.InProcessUI {
			return secrets.NewError(secrets.ErrOperationRequiresInProcessUserInteraction, "authentication plugin requires an in-process UI service")
		}
		return nil
	}
	if uiMode == secrets.NoUserInteraction {
		return secrets.NewError(secrets.ErrOperationRequiresUserInteraction, "authentication requires user interaction")
	}
	return nil
}

func authRequestFor(req *queue.RequestData, applicationID, collectionName, secretName, uiServiceAddress string) plugin.AuthRequest {
	return plugin.AuthRequest{
		CallerPID:        req.CallerPID,
		RequestID:        req.ID,
		ApplicationID:    applicationID,
		CollectionName:   collectionName,
		SecretName:       secretName,
		UIServiceAddress: uiServiceAddress,
	}
}

// resolveCollectionKeyOrSuspend returns the collection's authentication
// key synchronously when possible (device-lock collections always
// resolve synchronously; custom-lock collections resolve synchronously
// on a cache hit), or launches the collection's authentication plugin
// and reports suspend=true so the caller can register a PendingRequest.
func (p *Processor) resolveCollectionKeyOrSuspend(req *queue.RequestData, col secrets.Collection, uiMode secrets.UIMode, uiServiceAddress string) (key []byte, suspend bool, err error) {
	if col.UsesDeviceLockKey {
		return p.keys.DeviceLockKey(), false, nil
	}
	if cached, ok := p.collectionKeyBytes(col.Name); ok {
		return cached, false, nil
	}

	authPlugin, ok := p.plugins.Auth(col.AuthPluginName)
	if !ok {
		return nil, false, secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no authentication plugin named %q", col.AuthPluginName)
	}
	if err := p.checkInteractionAllowed(authPlugin, uiMode); err != nil {
		return nil, false, err
	}
	result := authPlugin.BeginAuthentication(authRequestFor(req, col.OwnerApplicationID, col.Name, "", uiServiceAddress))
	if result.Code == secrets.Failed {
		return nil, false, result.Err()
	}
	return nil, true, nil
}

// resolveStandaloneKeyOrSuspend is the standalone-secret analogue of
// resolveCollectionKeyOrSuspend, keyed by secret name rather than
// collection name (standalone secrets never share a key).
func (p *Processor) resolveStandaloneKeyOrSuspend(req *queue.RequestData, s secrets.Secret, uiMode secrets.UIMode, uiServiceAddress string) (key []byte, suspend bool, err error) {
	if s.UsesDeviceLockKey {
		return p.keys.DeviceLockKey(), false, nil
	}
	if cached, ok := p.standaloneKeyBytes(s.Name); ok {
		return cached, false, nil
	}

	authPlugin, ok := p.plugins.Auth(s.AuthPluginName)
	if !ok {
		return nil, false, secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no authentication plugin named %q", s.AuthPluginName)
	}
	if err := p.checkInteractionAllowed(authPlugin, uiMode); err != nil {
		return nil, false, err
	}
	result := authPlugin.BeginAuthentication(authRequestFor(req, s.OwnerApplicationID, "", s.Name, uiServiceAddress))
	if result.Code == secrets.Failed {
		return nil, false, result.Err()
	}
	return nil, true, nil
}

// collectionKeyBytes copies a cached collection key out of its memguard
// buffer, destroying the buffer once copied.
func (p *Processor) collectionKeyBytes(name string) ([]byte, bool) {
	buf, ok := p.cache.CollectionKey(name)
	if !ok {
		return nil, false
	}
	defer buf.Destroy()
	out := make([]byte, buf.Size())
	copy(out, buf.Bytes())
	return out, true
}

func (p *Processor) standaloneKeyBytes(secretName string) ([]byte, bool) {
	buf, ok := p.cache.StandaloneKey(secretName)
	if !ok {
		return nil, false
	}
	defer buf.Destroy()
	out := make([]byte, buf.Size())
	copy(out, buf.Bytes())
	return out, true
}

// applyRelockSemantics evicts the cached key immediately after use for
// the two "relock on every access" semantics (§4.3); the other
// semantics leave the cache entry (and any timer already armed at
// insertion time) untouched.
func (p *Processor) applyRelockSemantics(name string, unlockSemantic secrets.UnlockSemantic, standalone bool) {
	switch unlockSemantic {
	case secrets.DeviceLockRelock, secrets.CustomLockAccessRelock:
		if standalone {
			p.cache.EvictStandaloneKey(name)
		} else {
			p.cache.EvictCollectionKey(name)
		}
	}
}

// writeSecretBytes performs the plugin-side write for a secret,
// dispatching on whether the collection uses a combined encrypted-storage
// plugin (which takes the key directly only for standalone secrets;
// collection secrets rely on the plugin's own unlock state) or a split
// storage+encryption pair (which always needs the key to encrypt).
func (p *Processor) writeSecretBytes(collectionName, storageName, encryptionName, hashedName string, data, key []byte, usesEncryptedStorage bool) error {
	if usesEncryptedStorage {
		esp, ok := p.plugins.EncryptedStorage(storageName)
		if !ok {
			return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", storageName)
		}
		if collectionName == secrets.StandaloneCollectionName {
			return esp.SetStandaloneSecret(collectionName, hashedName, data, key)
		}
		return esp.SetSecret(collectionName, hashedName, data)
	}

	encPlugin, ok := p.plugins.Encryption(encryptionName)
	if !ok {
		return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encryption plugin named %q", encryptionName)
	}
	ciphertext, err := encPlugin.Encrypt(data, key)
	if err != nil {
		return secrets.NewErrorf(secrets.ErrPluginFailure, "encrypt: %v", err)
	}
	sp, ok := p.plugins.Storage(storageName)
	if !ok {
		return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no storage plugin named %q", storageName)
	}
	return sp.SetSecret(collectionName, hashedName, ciphertext)
}

func (p *Processor) readSecretBytes(collectionName, storageName, encryptionName, hashedName string, key []byte, usesEncryptedStorage bool) ([]byte, error) {
	if usesEncryptedStorage {
		esp, ok := p.plugins.EncryptedStorage(storageName)
		if !ok {
			return nil, secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", storageName)
		}
		if collectionName == secrets.StandaloneCollectionName {
			return esp.AccessStandaloneSecret(collectionName, hashedName, key)
		}
		return esp.GetSecret(collectionName, hashedName)
	}

	sp, ok := p.plugins.Storage(storageName)
	if !ok {
		return nil, secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no storage plugin named %q", storageName)
	}
	ciphertext, err := sp.GetSecret(collectionName, hashedName)
	if err != nil {
		if misc.IsNotFoundError(err) {
			return nil, secrets.NewErrorf(secrets.ErrInvalidSecret, "secret not found in storage plugin %q", storageName)
		}
		return nil, err
	}
	encPlugin, ok := p.plugins.Encryption(encryptionName)
	if !ok {
		return nil, secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encryption plugin named %q", encryptionName)
	}
	plaintext, err := encPlugin.Decrypt(ciphertext, key)
	if err != nil {
		return nil, secrets.NewErrorf(secrets.ErrSecretsPluginDecryption, "decrypt: %v", err)
	}
	return plaintext, nil
}

func (p *Processor) deleteSecretBytes(collectionName, storageName, hashedName string, usesEncryptedStorage bool) error {
	if usesEncryptedStorage {
		esp, ok := p.plugins.EncryptedStorage(storageName)
		if !ok {
			return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", storageName)
		}
		return esp.RemoveSecret(collectionName, hashedName)
	}
	sp, ok := p.plugins.Storage(storageName)
	if !ok {
		return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no storage plugin named %q", storageName)
	}
	return sp.RemoveSecret(collectionName, hashedName)
}

// upsertSecretRow inserts row if no catalogue row exists yet for its
// (CollectionName, Name) — running write only after a successful insert,
// and compensating the insert if write fails (§4.5 two-phase mutation,
// insert direction) — or simply calls write if the row already exists,
// since that path is an in-place update with no catalogue shape change.
func (p *Processor) upsertSecretRow(row secrets.Secret, write func() error) error {
	_, found, err := p.cat.FindSecret(row.CollectionName, row.Name)
	if err != nil {
		return err
	}
	if found {
		return write()
	}
	if err := p.cat.InsertSecret(row); err != nil {
		return err
	}
	if err := write(); err != nil {
		if cErr := p.cat.DeleteSecret(row.CollectionName, row.Name); cErr != nil {
			p.ledger.Flag(RowKindSecret, row.CollectionName+"/"+row.Name, cErr)
		}
		return err
	}
	return nil
}
