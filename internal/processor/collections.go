package processor

import (
	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
)

// createDeviceLockCollection implements CreateDeviceLockCollection
// (§4.5): reject reserved name, validate plugins, insert-then-plugin,
// cache the DeviceLockKey unless the collection is encrypted-storage
// (in which case the plugin itself holds the key).
func (p *Processor) createDeviceLockCollection(req secrets.CreateDeviceLockCollectionRequest) error {
	return p.createCollectionWithKey(req.Name, req.OwnerApplicationID, req.StoragePlugin, req.EncryptionPlugin,
		req.UnlockSemantic, req.AccessControlMode, true, p.keys.DeviceLockKey(), 0)
}

// createCollectionWithKey is shared by the device-lock path and by the
// custom-lock continuation once a key has been obtained.
func (p *Processor) createCollectionWithKey(
	name, owner, storageName, encryptionName string,
	unlockSemantic secrets.UnlockSemantic, accessMode secrets.AccessControlMode,
	usesDeviceLockKey bool, key []byte, customLockTimeoutMs int64,
) error {
	if secrets.IsReservedName(name) {
		return secrets.NewErrorf(secrets.ErrInvalidCollection, "collection name %q is reserved", name)
	}
	if err := p.validateCollectionPlugins(storageName, encryptionName); err != nil {
		return err
	}
	if _, found, err := p.cat.FindCollection(name); err != nil {
		return err
	} else if found {
		return secrets.NewErrorf(secrets.ErrCollectionAlreadyExists, "collection %q already exists", name)
	}

	col := secrets.Collection{
		Name:                 name,
		OwnerApplicationID:   owner,
		UsesDeviceLockKey:    usesDeviceLockKey,
		StoragePluginName:    storageName,
		EncryptionPluginName: encryptionName,
		UnlockSemantic:       unlockSemantic,
		CustomLockTimeoutMs:  customLockTimeoutMs,
		AccessControlMode:    accessMode,
	}

	pluginCall := func() error {
		if col.UsesEncryptedStoragePlugin() {
			esp, _ := p.plugins.EncryptedStorage(storageName)
			return esp.CreateCollection(name, key)
		}
		sp, _ := p.plugins.Storage(storageName)
		return sp.CreateCollection(name)
	}
	compensate := func() error { return p.cat.DeleteCollection(name) }

	if err := p.cat.InsertCollection(col); err != nil {
		return err
	}
	if err := pluginCall(); err != nil {
		if cErr := compensate(); cErr != nil {
			p.ledger.Flag(RowKindCollection, name, cErr)
		}
		return err
	}

	if !col.UsesEncryptedStoragePlugin() {
		p.cache.PutCollectionKey(name, key, unlockSemantic, customLockTimeoutMs)
	}
	return nil
}

// handleCreateCustomLockCollection implements CreateCustomLockCollection
// (§4.5): validate the auth plugin's interaction requirements, launch
// BeginAuthentication, and suspend the request as a PendingRequest until
// the plugin's completion callback resumes it via
// createCollectionWithAuthenticationKey.
func (p *Processor) handleCreateCustomLockCollection(req *queue.RequestData, params *secrets.CreateCustomLockCollectionRequest) (secrets.Result, bool) {
	if secrets.IsReservedName(params.Name) {
		return secrets.FromError(secrets.NewErrorf(secrets.ErrInvalidCollection, "collection name %q is reserved", params.Name)), true
	}
	if err := p.validateCollectionPlugins(params.StoragePlugin, params.EncryptionPlugin); err != nil {
		return secrets.FromError(err), true
	}
	if _, found, err := p.cat.FindCollection(params.Name); err != nil {
		return secrets.FromError(err), true
	} else if found {
		return secrets.FromError(secrets.NewErrorf(secrets.ErrCollectionAlreadyExists, "collection %q already exists", params.Name)), true
	}

	authPlugin, ok := p.plugins.Auth(params.AuthPlugin)
	if !ok {
		return secrets.FromError(secrets.NewErrorf(secrets.ErrInvalidExtensionPlugin, "no authentication plugin named %q", params.AuthPlugin)), true
	}
	if err := p.checkInteractionAllowed(authPlugin, params.UIMode); err != nil {
		return secrets.FromError(err), true
	}

	result := authPlugin.BeginAuthentication(authRequestFor(req, params.OwnerApplicationID, params.Name, "", params.UIServiceAddress))
	if result.Code == secrets.Failed {
		return result, true
	}

	p.registerPending(req.ID, &PendingRequest{
		Kind:           pendingCreateCustomLockCollection,
		CreateCollection: params,
	})
	return secrets.PendingResult(), false
}

// deleteCollection implements DeleteCollection (§4.5): idempotent on a
// missing collection, plugin delete first then catalogue row, cached
// key and timer dropped.
func (p *Processor) deleteCollection(name string) error {
	if secrets.IsReservedName(name) {
		return secrets.NewErrorf(secrets.ErrInvalidCollection, "collection name %q is reserved", name)
	}

	col, found, err := p.cat.FindCollection(name)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if col.UsesEncryptedStoragePlugin() {
		esp, ok := p.plugins.EncryptedStorage(col.StoragePluginName)
		if ok {
			if err := esp.RemoveCollection(name); err != nil {
				return err
			}
		}
	} else {
		sp, ok := p.plugins.Storage(col.StoragePluginName)
		if ok {
			if err := sp.RemoveCollection(name); err != nil {
				return err
			}
		}
	}

	if err := p.cat.DeleteSecretsInCollection(name); err != nil {
		return err
	}
	if err := p.cat.DeleteCollection(name); err != nil {
		return err
	}
	p.cache.EvictCollectionKey(name)
	return nil
}
