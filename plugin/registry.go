package plugin

import "sync"

// Factory constructs a plugin instance and reports which capability sets
// it implements. Concrete backends (plugin/storage/fsplugin,
// plugin/storage/s3plugin, plugin/crypto, plugin/auth/...) each provide one
// of these to be handed to Discover or registered directly with a
// Manager — real plugin discovery in this daemon is static Go
// registration rather than filesystem shared-library scanning, since Go
// has no stable plugin ABI across builds; a directory-scan Factory that
// shells out to sidecar processes could be added later without changing
// Manager's public shape.
type Factory struct {
	Storage        StoragePlugin
	Encryption     EncryptionPlugin
	EncryptedStore EncryptedStoragePlugin
	Auth           AuthenticationPlugin
}

// Manager holds the daemon's live plugin set, categorised by capability,
// and reports the GetPluginInfo snapshot (§6). A plugin with an empty or
// duplicate name is skipped, and any plugin whose IsTest() does not match
// the daemon's mode is skipped (§9 open question 4) — both checks happen
// once, in Register/Discover.
type Manager struct {
	mu sync.RWMutex

	autotestMode bool

	storage        map[string]StoragePlugin
	encryption     map[string]EncryptionPlugin
	encryptedStore map[string]EncryptedStoragePlugin
	auth           map[string]AuthenticationPlugin
}

// NewManager creates an empty plugin registry. autotestMode must match the
// is_test flag of every plugin that should be accepted; plugins built for
// the other mode are silently skipped by Discover.
func NewManager(autotestMode bool) *Manager {
	return &Manager{
		autotestMode:   autotestMode,
		storage:        map[string]StoragePlugin{},
		encryption:     map[string]EncryptionPlugin{},
		encryptedStore: map[string]EncryptedStoragePlugin{},
		auth:           map[string]AuthenticationPlugin{},
	}
}

// Discover registers every factory whose plugins pass the name and
// is_test checks, skipping the rest. It returns the number of plugins
// actually registered, across all four capability sets.
func (m *Manager) Discover(factories []Factory) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	registered := 0
	for _, f := range factories {
		if f.Storage != nil && m.acceptLocked(f.Storage) && m.storage[f.Storage.Name()] == nil {
			m.storage[f.Storage.Name()] = f.Storage
			registered++
		}
		if f.Encryption != nil && m.acceptLocked(f.Encryption) && m.encryption[f.Encryption.Name()] == nil {
			m.encryption[f.Encryption.Name()] = f.Encryption
			registered++
		}
		if f.EncryptedStore != nil && m.acceptLocked(f.EncryptedStore) && m.encryptedStore[f.EncryptedStore.Name()] == nil {
			m.encryptedStore[f.EncryptedStore.Name()] = f.EncryptedStore
			registered++
		}
		if f.Auth != nil && m.acceptLocked(f.Auth) && m.auth[f.Auth.Name()] == nil {
			m.auth[f.Auth.Name()] = f.Auth
			registered++
		}
	}
	return registered
}

func (m *Manager) acceptLocked(n Named) bool {
	if n.Name() == "" {
		return false
	}
	if n.IsTest() != m.autotestMode {
		return false
	}
	return true
}

// Reload re-scans the given factories, replacing the current registry.
// Nothing in the Non-goals excludes re-scanning at runtime; the daemon
// exposes this for operators who add plugins without a restart.
func (m *Manager) Reload(factories []Factory) int {
	m.mu.Lock()
	m.storage = map[string]StoragePlugin{}
	m.encryption = map[string]EncryptionPlugin{}
	m.encryptedStore = map[string]EncryptedStoragePlugin{}
	m.auth = map[string]AuthenticationPlugin{}
	m.mu.Unlock()
	return m.Discover(factories)
}

func (m *Manager) Storage(name string) (StoragePlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.storage[name]
	return p, ok
}

func (m *Manager) Encryption(name string) (EncryptionPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.encryption[name]
	return p, ok
}

func (m *Manager) EncryptedStorage(name string) (EncryptedStoragePlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.encryptedStore[name]
	return p, ok
}

func (m *Manager) Auth(name string) (AuthenticationPlugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.auth[name]
	return p, ok
}

// IsEncryptedStorage reports whether name identifies a registered
// encrypted-storage plugin, used by the request processor to decide which
// two-phase mutation path a collection takes.
func (m *Manager) IsEncryptedStorage(name string) bool {
	_, ok := m.EncryptedStorage(name)
	return ok
}

// Info is the GetPluginInfo (§6) snapshot: four ordered sequences of
// {name, is_test} descriptors, one per capability set.
type Info struct {
	StoragePlugins        []Descriptor
	EncryptionPlugins     []Descriptor
	EncryptedStoragePlugins []Descriptor
	AuthenticationPlugins []Descriptor
}

// Snapshot returns the current GetPluginInfo view. It is pure and
// synchronous (§4.5): no plugin is invoked.
func (m *Manager) Snapshot() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := Info{}
	for _, p := range m.storage {
		info.StoragePlugins = append(info.StoragePlugins, describe(p))
	}
	for _, p := range m.encryption {
		info.EncryptionPlugins = append(info.EncryptionPlugins, describe(p))
	}
	for _, p := range m.encryptedStore {
		info.EncryptedStoragePlugins = append(info.EncryptedStoragePlugins, describe(p))
	}
	for _, p := range m.auth {
		info.AuthenticationPlugins = append(info.AuthenticationPlugins, describe(p))
	}
	return info
}
