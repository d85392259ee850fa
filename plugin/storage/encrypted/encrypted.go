// Package encrypted is an EncryptedStoragePlugin (§4.1): a storage
// backend that manages its own per-collection encryption keys rather
// than relying on the request processor to hold and hand them a key on
// every call. It composes fsplugin for the actual byte storage with an
// in-memory, memguard-protected key table, grounded on the teacher's
// keys.go (its keyEnclaves map keyed by key ID, here keyed by collection
// name instead since each collection has exactly one active key).
package encrypted

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/storage/fsplugin"
)

// Plugin is an EncryptedStoragePlugin over the local filesystem.
type Plugin struct {
	name   string
	isTest bool

	fs  *fsplugin.Plugin
	enc plugin.EncryptionPlugin

	mu   sync.Mutex
	keys map[string]*memguard.Enclave
}

// New constructs a Plugin rooted at basePath, encrypting with enc.
func New(name string, isTest bool, basePath string, enc plugin.EncryptionPlugin) (*Plugin, error) {
	fs, err := fsplugin.New(name, isTest, basePath)
	if err != nil {
		return nil, err
	}
	return &Plugin{name: name, isTest: isTest, fs: fs, enc: enc, keys: make(map[string]*memguard.Enclave)}, nil
}

func (p *Plugin) Name() string { return p.name }
func (p *Plugin) IsTest() bool { return p.isTest }

// CreateCollection creates the backing directory and unlocks it with
// key in the same step, since a freshly created collection has nothing
// to unlock from.
func (p *Plugin) CreateCollection(name string, key []byte) error {
	if err := p.fs.CreateCollection(name); err != nil {
		return err
	}
	return p.SetEncryptionKey(name, key)
}

func (p *Plugin) RemoveCollection(name string) error {
	if err := p.fs.RemoveCollection(name); err != nil {
		return err
	}
	p.evict(name)
	return nil
}

// IsLocked reports whether collection has no key currently held.
func (p *Plugin) IsLocked(collection string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.keys[collection]
	return !ok, nil
}

// SetEncryptionKey unlocks collection with key, or evicts any
// previously-held key when key is empty — the request processor uses an
// empty key to wipe an attempted key that turned out not to unlock the
// collection (internal/processor/secrets.go's unlockEncryptedStorageCollection).
func (p *Plugin) SetEncryptionKey(collection string, key []byte) error {
	if len(key) == 0 {
		p.evict(collection)
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	// NewEnclave wipes its argument, so it seals a copy and the caller's
	// key stays usable.
	p.keys[collection] = memguard.NewEnclave(append([]byte(nil), key...))
	return nil
}

func (p *Plugin) evict(collection string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.keys, collection)
}

func (p *Plugin) collectionKey(collection string) ([]byte, error) {
	p.mu.Lock()
	enclave, ok := p.keys[collection]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("encrypted: collection %q is locked", collection)
	}
	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("encrypted: open key enclave: %w", err)
	}
	defer buf.Destroy()
	out := make([]byte, buf.Size())
	copy(out, buf.Bytes())
	return out, nil
}

func (p *Plugin) SetSecret(collection, hashedName string, data []byte) error {
	key, err := p.collectionKey(collection)
	if err != nil {
		return err
	}
	ciphertext, err := p.enc.Encrypt(data, key)
	if err != nil {
		return fmt.Errorf("encrypted: encrypt: %w", err)
	}
	return p.fs.SetSecret(collection, hashedName, ciphertext)
}

func (p *Plugin) GetSecret(collection, hashedName string) ([]byte, error) {
	key, err := p.collectionKey(collection)
	if err != nil {
		return nil, err
	}
	ciphertext, err := p.fs.GetSecret(collection, hashedName)
	if err != nil {
		return nil, err
	}
	plaintext, err := p.enc.Decrypt(ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("encrypted: decrypt: %w", err)
	}
	return plaintext, nil
}

// RemoveSecret never needs the collection's key: removal does not
// decrypt.
func (p *Plugin) RemoveSecret(collection, hashedName string) error {
	return p.fs.RemoveSecret(collection, hashedName)
}

// SetStandaloneSecret encrypts and writes with key supplied directly,
// since standalone secrets carry no persistent unlock state.
func (p *Plugin) SetStandaloneSecret(collection, hashedName string, data, key []byte) error {
	ciphertext, err := p.enc.Encrypt(data, key)
	if err != nil {
		return fmt.Errorf("encrypted: encrypt: %w", err)
	}
	return p.fs.SetSecret(collection, hashedName, ciphertext)
}

func (p *Plugin) AccessStandaloneSecret(collection, hashedName string, key []byte) ([]byte, error) {
	ciphertext, err := p.fs.GetSecret(collection, hashedName)
	if err != nil {
		return nil, err
	}
	plaintext, err := p.enc.Decrypt(ciphertext, key)
	if err != nil {
		return nil, fmt.Errorf("encrypted: decrypt: %w", err)
	}
	return plaintext, nil
}

func (p *Plugin) ReencryptSecrets(target plugin.ReencryptTarget, oldKey, newKey []byte) error {
	return p.fs.ReencryptSecrets(target, oldKey, newKey, p.enc)
}

var _ plugin.EncryptedStoragePlugin = (*Plugin)(nil)
