package processor

import (
	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
)

// writeCollectionSecretRow upserts a collection secret's catalogue row
// (inserting it on first write, per §4.5's two-phase discipline) and
// performs the matching plugin write. key is nil when the collection's
// encrypted-storage plugin is already unlocked (it ignores the argument
// in that case — only a standalone encrypted-storage write ever
// actually consumes the key here).
func (p *Processor) writeCollectionSecretRow(col secrets.Collection, secretName string, data, key []byte) error {
	hashed := secrets.HashedSecretName(col.Name, secretName)
	row := secrets.Secret{
		CollectionName:       col.Name,
		Name:                 secretName,
		OwnerApplicationID:   col.OwnerApplicationID,
		UsesDeviceLockKey:    col.UsesDeviceLockKey,
		StoragePluginName:    col.StoragePluginName,
		EncryptionPluginName: col.EncryptionPluginName,
		AuthPluginName:       col.AuthPluginName,
		UnlockSemantic:       col.UnlockSemantic,
		CustomLockTimeoutMs:  col.CustomLockTimeoutMs,
		AccessControlMode:    col.AccessControlMode,
	}
	return p.upsertSecretRow(row, func() error {
		return p.writeSecretBytes(col.Name, col.StoragePluginName, col.EncryptionPluginName, hashed, data, key, col.UsesEncryptedStoragePlugin())
	})
}

// unlockEncryptedStorageCollection is the shared "unlock, verify, clean up
// on failure" sequence for an encrypted-storage collection found locked
// (§4.5): device-lock collections being locked at all is a
// CollectionIsLockedError (they should never require this path), custom-
// lock collections attempt SetEncryptionKey with the caller-supplied key
// and confirm it actually unlocked, wiping the attempted key on failure.
func (p *Processor) unlockEncryptedStorageCollection(col secrets.Collection, key []byte) error {
	if col.UsesDeviceLockKey {
		return secrets.NewErrorf(secrets.ErrCollectionIsLocked, "collection %q is locked", col.Name)
	}
	esp, ok := p.plugins.EncryptedStorage(col.StoragePluginName)
	if !ok {
		return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", col.StoragePluginName)
	}
	if err := esp.SetEncryptionKey(col.Name, key); err != nil {
		return err
	}
	stillLocked, err := esp.IsLocked(col.Name)
	if err != nil {
		return err
	}
	if stillLocked {
		_ = esp.SetEncryptionKey(col.Name, []byte{})
		return secrets.NewErrorf(secrets.ErrIncorrectAuthenticationKey, "authentication key did not unlock collection %q", col.Name)
	}
	return nil
}

// applyKeyedSetCollectionSecret runs the write once a key, if needed, is
// already in hand (either because the collection was already unlocked, or
// because a continuation has just obtained one).
func (p *Processor) applyKeyedSetCollectionSecret(col secrets.Collection, secretName string, data, key []byte) error {
	if col.UsesEncryptedStoragePlugin() {
		esp, ok := p.plugins.EncryptedStorage(col.StoragePluginName)
		if !ok {
			return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", col.StoragePluginName)
		}
		locked, err := esp.IsLocked(col.Name)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrPluginFailure, "is_locked: %v", err)
		}
		if locked {
			if err := p.unlockEncryptedStorageCollection(col, key); err != nil {
				return err
			}
		}
	}
	if err := p.writeCollectionSecretRow(col, secretName, data, key); err != nil {
		return err
	}
	p.applyRelockSemantics(col.Name, col.UnlockSemantic, false)
	return nil
}

func (p *Processor) applyKeyedGetCollectionSecret(col secrets.Collection, secretName string, key []byte) ([]byte, error) {
	existing, found, err := p.cat.FindSecret(col.Name, secretName)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, secrets.NewErrorf(secrets.ErrInvalidSecret, "secret %q not found in collection %q", secretName, col.Name)
	}
	if col.UsesEncryptedStoragePlugin() {
		esp, ok := p.plugins.EncryptedStorage(col.StoragePluginName)
		if !ok {
			return nil, secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", col.StoragePluginName)
		}
		locked, err := esp.IsLocked(col.Name)
		if err != nil {
			return nil, secrets.NewErrorf(secrets.ErrPluginFailure, "is_locked: %v", err)
		}
		if locked {
			if err := p.unlockEncryptedStorageCollection(col, key); err != nil {
				return nil, err
			}
		}
	}
	hashed := secrets.HashedSecretName(col.Name, secretName)
	data, err := p.readSecretBytes(col.Name, existing.StoragePluginName, existing.EncryptionPluginName, hashed, key, col.UsesEncryptedStoragePlugin())
	if err != nil {
		return nil, err
	}
	p.applyRelockSemantics(col.Name, col.UnlockSemantic, false)
	return data, nil
}

// applyKeyedDeleteCollectionSecret honors §4.5's "unlock if necessary (as
// in Set), then plugin remove_secret, then catalogue delete" for
// encrypted-storage collections; split storage+encryption collections
// never need a key to remove a secret, since removal does not decrypt.
func (p *Processor) applyKeyedDeleteCollectionSecret(col secrets.Collection, secretName string, key []byte) error {
	_, found, err := p.cat.FindSecret(col.Name, secretName)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if col.UsesEncryptedStoragePlugin() {
		esp, ok := p.plugins.EncryptedStorage(col.StoragePluginName)
		if !ok {
			return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", col.StoragePluginName)
		}
		locked, err := esp.IsLocked(col.Name)
		if err != nil {
			return secrets.NewErrorf(secrets.ErrPluginFailure, "is_locked: %v", err)
		}
		if locked {
			if err := p.unlockEncryptedStorageCollection(col, key); err != nil {
				return err
			}
		}
	}
	hashed := secrets.HashedSecretName(col.Name, secretName)
	if err := p.deleteSecretBytes(col.Name, col.StoragePluginName, hashed, col.UsesEncryptedStoragePlugin()); err != nil {
		return err
	}
	return p.cat.DeleteSecret(col.Name, secretName)
}

func (p *Processor) handleSetCollectionSecret(req *queue.RequestData, params *secrets.SetCollectionSecretRequest) (secrets.Result, bool) {
	col, err := p.accessibleCollection(params.CollectionName, params.OwnerApplicationID)
	if err != nil {
		return secrets.FromError(err), true
	}

	if col.UsesEncryptedStoragePlugin() {
		esp, ok := p.plugins.EncryptedStorage(col.StoragePluginName)
		if !ok {
			return secrets.FromError(secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", col.StoragePluginName)), true
		}
		locked, err := esp.IsLocked(col.Name)
		if err != nil {
			return secrets.FromError(secrets.NewErrorf(secrets.ErrPluginFailure, "is_locked: %v", err)), true
		}
		if !locked {
			return secrets.FromError(p.writeCollectionSecretRow(col, params.SecretName, params.Data, nil)), true
		}
	}

	key, suspend, err := p.resolveCollectionKeyOrSuspend(req, col, params.UIMode, params.UIServiceAddress)
	if err != nil {
		return secrets.FromError(err), true
	}
	if suspend {
		p.registerPending(req.ID, &PendingRequest{Kind: pendingSetCollectionSecret, SetCollectionSecret: params})
		return secrets.PendingResult(), false
	}
	return secrets.FromError(p.applyKeyedSetCollectionSecret(col, params.SecretName, params.Data, key)), true
}

func (p *Processor) handleGetCollectionSecret(req *queue.RequestData, params *secrets.GetCollectionSecretRequest) (secrets.Result, bool) {
	col, err := p.accessibleCollection(params.CollectionName, params.OwnerApplicationID)
	if err != nil {
		return secrets.FromError(err), true
	}

	if col.UsesEncryptedStoragePlugin() {
		esp, ok := p.plugins.EncryptedStorage(col.StoragePluginName)
		if !ok {
			return secrets.FromError(secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", col.StoragePluginName)), true
		}
		locked, err := esp.IsLocked(col.Name)
		if err != nil {
			return secrets.FromError(secrets.NewErrorf(secrets.ErrPluginFailure, "is_locked: %v", err)), true
		}
		if !locked {
			data, err := p.applyKeyedGetCollectionSecret(col, params.SecretName, nil)
			params.Data = data
			return secrets.FromError(err), true
		}
	}

	key, suspend, err := p.resolveCollectionKeyOrSuspend(req, col, params.UIMode, params.UIServiceAddress)
	if err != nil {
		return secrets.FromError(err), true
	}
	if suspend {
		p.registerPending(req.ID, &PendingRequest{Kind: pendingGetCollectionSecret, GetCollectionSecret: params})
		return secrets.PendingResult(), false
	}
	data, err := p.applyKeyedGetCollectionSecret(col, params.SecretName, key)
	params.Data = data
	return secrets.FromError(err), true
}

func (p *Processor) handleDeleteCollectionSecret(req *queue.RequestData, params *secrets.DeleteCollectionSecretRequest) (secrets.Result, bool) {
	col, err := p.accessibleCollection(params.CollectionName, params.OwnerApplicationID)
	if err != nil {
		return secrets.FromError(err), true
	}

	var key []byte
	if col.UsesEncryptedStoragePlugin() {
		esp, ok := p.plugins.EncryptedStorage(col.StoragePluginName)
		if !ok {
			return secrets.FromError(secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no encrypted-storage plugin named %q", col.StoragePluginName)), true
		}
		locked, err := esp.IsLocked(col.Name)
		if err != nil {
			return secrets.FromError(secrets.NewErrorf(secrets.ErrPluginFailure, "is_locked: %v", err)), true
		}
		if locked {
			k, suspend, err := p.resolveCollectionKeyOrSuspend(req, col, params.UIMode, params.UIServiceAddress)
			if err != nil {
				return secrets.FromError(err), true
			}
			if suspend {
				p.registerPending(req.ID, &PendingRequest{Kind: pendingDeleteCollectionSecret, DeleteCollectionSecret: params})
				return secrets.PendingResult(), false
			}
			key = k
		}
	}
	return secrets.FromError(p.applyKeyedDeleteCollectionSecret(col, params.SecretName, key)), true
}

// validateStandaloneWrite enforces §4.5's rule that an existing
// standalone secret's lock mode and storage plugin can never change on a
// subsequent write — only its data and encryption plugin may.
func validateStandaloneWrite(existing secrets.Secret, found bool, ownerApplicationID string, usesDeviceLockKey bool, storagePlugin string) error {
	if !found {
		return nil
	}
	if existing.OwnerApplicationID != ownerApplicationID {
		return secrets.NewErrorf(secrets.ErrPermissions, "application %q does not own standalone secret %q", ownerApplicationID, existing.Name)
	}
	if existing.UsesDeviceLockKey != usesDeviceLockKey {
		return secrets.NewErrorf(secrets.ErrInvalidSecret, "cannot change the lock mode of existing standalone secret %q", existing.Name)
	}
	if existing.StoragePluginName != storagePlugin {
		return secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "cannot migrate the storage plugin of existing standalone secret %q", existing.Name)
	}
	return nil
}

func (p *Processor) setStandaloneDeviceLockSecret(req secrets.SetStandaloneDeviceLockSecretRequest) error {
	existing, found, err := p.cat.FindSecret(secrets.StandaloneCollectionName, req.SecretName)
	if err != nil {
		return err
	}
	if err := validateStandaloneWrite(existing, found, req.OwnerApplicationID, true, req.StoragePlugin); err != nil {
		return err
	}
	if err := p.validateCollectionPlugins(req.StoragePlugin, req.EncryptionPlugin); err != nil {
		return err
	}

	key := p.keys.DeviceLockKey()
	row := secrets.Secret{
		CollectionName:       secrets.StandaloneCollectionName,
		Name:                 req.SecretName,
		OwnerApplicationID:   req.OwnerApplicationID,
		UsesDeviceLockKey:    true,
		StoragePluginName:    req.StoragePlugin,
		EncryptionPluginName: req.EncryptionPlugin,
		UnlockSemantic:       req.UnlockSemantic,
		AccessControlMode:    req.AccessControlMode,
	}
	hashed := secrets.HashedSecretName(secrets.StandaloneCollectionName, req.SecretName)
	err = p.upsertSecretRow(row, func() error {
		return p.writeSecretBytes(secrets.StandaloneCollectionName, req.StoragePlugin, req.EncryptionPlugin, hashed, req.Data, key, req.StoragePlugin == req.EncryptionPlugin)
	})
	if err != nil {
		return err
	}
	p.cache.PutStandaloneKey(req.SecretName, key, req.UnlockSemantic, 0)
	return nil
}

// applyStandaloneSet is the custom-lock counterpart of
// setStandaloneDeviceLockSecret, shared by its synchronous fast path
// (cache hit) and its post-authentication continuation.
func (p *Processor) applyStandaloneSet(req secrets.SetStandaloneCustomLockSecretRequest, key []byte) error {
	existing, found, err := p.cat.FindSecret(secrets.StandaloneCollectionName, req.SecretName)
	if err != nil {
		return err
	}
	if err := validateStandaloneWrite(existing, found, req.OwnerApplicationID, false, req.StoragePlugin); err != nil {
		return err
	}
	if err := p.validateCollectionPlugins(req.StoragePlugin, req.EncryptionPlugin); err != nil {
		return err
	}

	row := secrets.Secret{
		CollectionName:       secrets.StandaloneCollectionName,
		Name:                 req.SecretName,
		OwnerApplicationID:   req.OwnerApplicationID,
		UsesDeviceLockKey:    false,
		StoragePluginName:    req.StoragePlugin,
		EncryptionPluginName: req.EncryptionPlugin,
		AuthPluginName:       req.AuthPlugin,
		UnlockSemantic:       req.UnlockSemantic,
		CustomLockTimeoutMs:  req.CustomLockTimeoutMs,
		AccessControlMode:    req.AccessControlMode,
	}
	hashed := secrets.HashedSecretName(secrets.StandaloneCollectionName, req.SecretName)
	return p.upsertSecretRow(row, func() error {
		return p.writeSecretBytes(secrets.StandaloneCollectionName, req.StoragePlugin, req.EncryptionPlugin, hashed, req.Data, key, req.StoragePlugin == req.EncryptionPlugin)
	})
}

func (p *Processor) handleSetStandaloneCustomLockSecret(req *queue.RequestData, params *secrets.SetStandaloneCustomLockSecretRequest) (secrets.Result, bool) {
	existing, found, err := p.cat.FindSecret(secrets.StandaloneCollectionName, params.SecretName)
	if err != nil {
		return secrets.FromError(err), true
	}

	var key []byte
	var suspend bool
	if found && !existing.UsesDeviceLockKey {
		key, suspend, err = p.resolveStandaloneKeyOrSuspend(req, existing, params.UIMode, params.UIServiceAddress)
	} else {
		key, suspend, err = p.resolveStandaloneKeyOrSuspend(req, secrets.Secret{
			Name:               params.SecretName,
			OwnerApplicationID: params.OwnerApplicationID,
			AuthPluginName:     params.AuthPlugin,
		}, params.UIMode, params.UIServiceAddress)
	}
	if err != nil {
		return secrets.FromError(err), true
	}
	if suspend {
		p.registerPending(req.ID, &PendingRequest{Kind: pendingSetStandaloneCustomLockSecret, SetStandaloneSecret: params})
		return secrets.PendingResult(), false
	}

	if err := p.applyStandaloneSet(*params, key); err != nil {
		return secrets.FromError(err), true
	}
	p.cache.PutStandaloneKey(params.SecretName, key, params.UnlockSemantic, params.CustomLockTimeoutMs)
	return secrets.Ok(), true
}

func (p *Processor) handleGetStandaloneSecret(req *queue.RequestData, params *secrets.GetStandaloneSecretRequest) (secrets.Result, bool) {
	existing, found, err := p.cat.FindSecret(secrets.StandaloneCollectionName, params.SecretName)
	if err != nil {
		return secrets.FromError(err), true
	}
	if !found {
		return secrets.FromError(secrets.NewErrorf(secrets.ErrInvalidSecret, "standalone secret %q not found", params.SecretName)), true
	}
	if existing.OwnerApplicationID != params.OwnerApplicationID {
		return secrets.FromError(secrets.NewErrorf(secrets.ErrPermissions, "application %q does not own standalone secret %q", params.OwnerApplicationID, params.SecretName)), true
	}

	key, suspend, err := p.resolveStandaloneKeyOrSuspend(req, existing, params.UIMode, params.UIServiceAddress)
	if err != nil {
		return secrets.FromError(err), true
	}
	if suspend {
		p.registerPending(req.ID, &PendingRequest{Kind: pendingGetStandaloneSecret, GetStandaloneSecret: params})
		return secrets.PendingResult(), false
	}

	hashed := secrets.HashedSecretName(secrets.StandaloneCollectionName, params.SecretName)
	data, err := p.readSecretBytes(secrets.StandaloneCollectionName, existing.StoragePluginName, existing.EncryptionPluginName, hashed, key, existing.StoragePluginName == existing.EncryptionPluginName)
	if err != nil {
		return secrets.FromError(err), true
	}
	params.Data = data
	p.applyRelockSemantics(params.SecretName, existing.UnlockSemantic, true)
	return secrets.Ok(), true
}

// deleteStandaloneSecret implements DeleteStandaloneSecret (§4.5).
// Removal never needs the secret's key: encrypted-storage plugins remove
// by hashed name alone, and split storage plugins never decrypt to
// delete.
func (p *Processor) deleteStandaloneSecret(req secrets.DeleteStandaloneSecretRequest) error {
	existing, found, err := p.cat.FindSecret(secrets.StandaloneCollectionName, req.SecretName)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if existing.OwnerApplicationID != req.OwnerApplicationID {
		return secrets.NewErrorf(secrets.ErrPermissions, "application %q does not own standalone secret %q", req.OwnerApplicationID, req.SecretName)
	}
	hashed := secrets.HashedSecretName(secrets.StandaloneCollectionName, req.SecretName)
	if err := p.deleteSecretBytes(secrets.StandaloneCollectionName, existing.StoragePluginName, hashed, existing.StoragePluginName == existing.EncryptionPluginName); err != nil {
		return err
	}
	if err := p.cat.DeleteSecret(secrets.StandaloneCollectionName, req.SecretName); err != nil {
		return err
	}
	p.cache.EvictStandaloneKey(req.SecretName)
	return nil
}
