package processor

import (
	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/queue"
)

// cryptoOp names one of the crypto helper surface's bookkeeping methods
// (§4.5: "Crypto helper surface"). The separate crypto API this surface
// ultimately serves (sign/encrypt-with-a-managed-key) is out of scope
// (§1 Non-goals); only the bookkeeping it depends on — key-entry CRUD and
// storing/retrieving/deleting the key material itself as an ordinary
// secret — is implemented here.
type cryptoOp int

const (
	cryptoStoragePluginNames cryptoOp = iota
	cryptoKeyEntryIdentifiers
	cryptoKeyEntry
	cryptoAddKeyEntry
	cryptoRemoveKeyEntry
	cryptoStoreKey
	cryptoStoredKey
	cryptoDeleteStoredKey
)

// cryptoHelperRequest is the internal request type the crypto helper
// surface dispatches through the same Handle switch as every client verb
// (grounded on requestqueue.cpp's handleRequest(pid_t, cryptoRequestId,
// ...) overload, which reuses the same request-handling machinery for
// crypto-originated requests). It is never constructed by api.Facade —
// only by the crypto helper methods themselves.
type cryptoHelperRequest struct {
	Op                cryptoOp
	CollectionName    string
	KeyName           string
	CryptoPluginName  string
	StoragePluginName string
	Data              []byte
	OwnerApplicationID string
	UIMode             secrets.UIMode
	UIServiceAddress   string

	StoragePluginNames []string
	Entries            []secrets.KeyEntry
	Entry              secrets.KeyEntry
	Found              bool
	KeyData            []byte
}

func (p *Processor) handleCryptoHelperRequest(req *queue.RequestData, params *cryptoHelperRequest) (secrets.Result, bool) {
	switch params.Op {
	case cryptoStoragePluginNames:
		snap := p.plugins.Snapshot()
		names := make([]string, 0, len(snap.StoragePlugins)+len(snap.EncryptedStoragePlugins))
		for _, d := range snap.StoragePlugins {
			names = append(names, d.Name)
		}
		for _, d := range snap.EncryptedStoragePlugins {
			names = append(names, d.Name)
		}
		params.StoragePluginNames = names
		return secrets.Ok(), true

	case cryptoKeyEntryIdentifiers:
		entries, err := p.cat.KeyEntryIdentifiers()
		params.Entries = entries
		return secrets.FromError(err), true

	case cryptoKeyEntry:
		entry, found, err := p.cat.FindKeyEntry(params.CollectionName, params.KeyName)
		params.Entry = entry
		params.Found = found
		return secrets.FromError(err), true

	case cryptoAddKeyEntry:
		err := p.cat.InsertKeyEntry(secrets.KeyEntry{
			CollectionName:    params.CollectionName,
			KeyName:           params.KeyName,
			CryptoPluginName:  params.CryptoPluginName,
			StoragePluginName: params.StoragePluginName,
		})
		return secrets.FromError(err), true

	case cryptoRemoveKeyEntry:
		return secrets.FromError(p.cat.DeleteKeyEntry(params.CollectionName, params.KeyName)), true

	case cryptoStoreKey:
		return secrets.FromError(p.storeKey(req, params)), true

	case cryptoStoredKey:
		return secrets.FromError(p.storedKey(req, params)), true

	case cryptoDeleteStoredKey:
		return secrets.FromError(p.deleteStoredKey(params)), true

	default:
		return secrets.FromError(secrets.NewError(secrets.ErrDaemonError, "unrecognised crypto helper operation")), true
	}
}

// storeKey writes key material as an ordinary collection secret and
// catalogues its KeyEntry row, compensating the secret write if the
// KeyEntry insert fails. It requires the target collection's key to
// already be resolvable without launching a fresh authentication flow:
// the crypto helper surface always operates on a collection a client has
// already unlocked via an ordinary verb in the same session, so a
// suspend here is treated as a failure rather than queued — there is no
// client-facing UI to resume it.
func (p *Processor) storeKey(req *queue.RequestData, params *cryptoHelperRequest) error {
	col, err := p.accessibleCollection(params.CollectionName, params.OwnerApplicationID)
	if err != nil {
		return err
	}
	key, suspend, err := p.resolveCollectionKeyOrSuspend(req, col, params.UIMode, params.UIServiceAddress)
	if err != nil {
		return err
	}
	if suspend {
		return secrets.NewErrorf(secrets.ErrOperationRequiresUserInteraction, "collection %q must already be unlocked to store a key", col.Name)
	}
	if err := p.applyKeyedSetCollectionSecret(col, params.KeyName, params.Data, key); err != nil {
		return err
	}
	if err := p.cat.InsertKeyEntry(secrets.KeyEntry{
		CollectionName:    params.CollectionName,
		KeyName:           params.KeyName,
		CryptoPluginName:  params.CryptoPluginName,
		StoragePluginName: params.StoragePluginName,
	}); err != nil {
		if cErr := p.applyKeyedDeleteCollectionSecret(col, params.KeyName, key); cErr != nil {
			p.ledger.Flag(RowKindSecret, col.Name+"/"+params.KeyName, cErr)
		}
		return err
	}
	return nil
}

func (p *Processor) storedKey(req *queue.RequestData, params *cryptoHelperRequest) error {
	col, err := p.accessibleCollection(params.CollectionName, params.OwnerApplicationID)
	if err != nil {
		return err
	}
	key, suspend, err := p.resolveCollectionKeyOrSuspend(req, col, params.UIMode, params.UIServiceAddress)
	if err != nil {
		return err
	}
	if suspend {
		return secrets.NewErrorf(secrets.ErrOperationRequiresUserInteraction, "collection %q must already be unlocked to retrieve a key", col.Name)
	}
	data, err := p.applyKeyedGetCollectionSecret(col, params.KeyName, key)
	if err != nil {
		return err
	}
	params.KeyData = data
	return nil
}

// deleteStoredKey removes both the key material (as a secret) and its
// KeyEntry row. It passes no key, so it succeeds for split-plugin
// collections and unlocked encrypted-storage collections; on a locked
// encrypted-storage collection the delete fails.
func (p *Processor) deleteStoredKey(params *cryptoHelperRequest) error {
	col, found, err := p.cat.FindCollection(params.CollectionName)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := p.applyKeyedDeleteCollectionSecret(col, params.KeyName, nil); err != nil {
		return err
	}
	return p.cat.DeleteKeyEntry(params.CollectionName, params.KeyName)
}
