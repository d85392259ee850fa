// Package keycache is the in-memory authentication-key table (§4.3, C3):
// two maps (collection keys, standalone-secret keys) plus two timer maps
// for CustomLockTimeoutRelock eviction. It is touched from the
// request-queue dispatcher goroutine (§4.4), from authentication plugins'
// completion goroutines (through the request processor's
// AuthenticationCompleted) and from the relock timers, so a single mutex
// guards every map access.
package keycache

import (
	"sync"
	"time"

	"github.com/awnumar/memguard"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/mem"
)

// Cache holds cached authentication keys in memguard enclaves, protected
// from swap for as long as any key is cached (internal/mem.Lock).
type Cache struct {
	mu sync.Mutex

	collectionKeys map[string]*memguard.Enclave
	standaloneKeys map[string]*memguard.Enclave

	collectionTimers map[string]*time.Timer
	standaloneTimers map[string]*time.Timer

	protection mem.ProtectionLevel
}

// New constructs an empty Cache and attempts to lock the process's memory
// pages. When the platform refuses or does not implement memory locking,
// the cache is still built and ProtectionLevel reports the reduced
// protection; any other locking error is returned and no Cache is built.
func New() (*Cache, error) {
	level, err := mem.Lock()
	if err != nil {
		return nil, err
	}
	return &Cache{
		collectionKeys:   make(map[string]*memguard.Enclave),
		standaloneKeys:   make(map[string]*memguard.Enclave),
		collectionTimers: make(map[string]*time.Timer),
		standaloneTimers: make(map[string]*time.Timer),
		protection:       level,
	}, nil
}

// ProtectionLevel reports how well the current platform protected the
// cache's memory when it was constructed.
func (c *Cache) ProtectionLevel() mem.ProtectionLevel {
	return c.protection
}

// relockFunc is scheduled against a CustomLockTimeoutRelock key; it calls
// back into the cache to evict exactly the key it was scheduled for.
type relockFunc func()

func (c *Cache) scheduleTimer(timers map[string]*time.Timer, name string, timeoutMs int64, evict relockFunc) {
	if existing, ok := timers[name]; ok {
		existing.Stop()
	}
	if timeoutMs <= 0 {
		delete(timers, name)
		return
	}
	timers[name] = time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, evict)
}

func (c *Cache) stopTimer(timers map[string]*time.Timer, name string) {
	if t, ok := timers[name]; ok {
		t.Stop()
		delete(timers, name)
	}
}

// PutCollectionKey inserts (or replaces) the cached key for a collection,
// following a successful unlock or creation (§4.3). When semantic is
// CustomLockTimeoutRelock, a relock timer of timeoutMs is armed; any
// other semantic cancels a pending timer, since re-arming is the
// request processor's job on the next access under *AccessRelock.
func (c *Cache) PutCollectionKey(name string, key []byte, semantic secrets.UnlockSemantic, timeoutMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.collectionKeys[name] = memguard.NewEnclave(key)

	if semantic == secrets.CustomLockTimeoutRelock {
		c.scheduleTimer(c.collectionTimers, name, timeoutMs, func() { c.EvictCollectionKey(name) })
	} else {
		c.stopTimer(c.collectionTimers, name)
	}
}

// PutStandaloneKey inserts (or replaces) the cached key for a standalone
// secret, identified by its secret name (standalone secrets never share
// a collection-scoped key).
func (c *Cache) PutStandaloneKey(secretName string, key []byte, semantic secrets.UnlockSemantic, timeoutMs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.standaloneKeys[secretName] = memguard.NewEnclave(key)

	if semantic == secrets.CustomLockTimeoutRelock {
		c.scheduleTimer(c.standaloneTimers, secretName, timeoutMs, func() { c.EvictStandaloneKey(secretName) })
	} else {
		c.stopTimer(c.standaloneTimers, secretName)
	}
}

// CollectionKey opens the cached key for name, if present. The caller
// must call Destroy on the returned buffer once done with it. A miss
// means the request processor must fall back to a fresh authentication
// flow (§4.3): "its absence forces a new authentication flow."
func (c *Cache) CollectionKey(name string) (*memguard.LockedBuffer, bool) {
	c.mu.Lock()
	enclave, ok := c.collectionKeys[name]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	buf, err := enclave.Open()
	if err != nil {
		return nil, false
	}
	return buf, true
}

// StandaloneKey opens the cached key for a standalone secret, if present.
func (c *Cache) StandaloneKey(secretName string) (*memguard.LockedBuffer, bool) {
	c.mu.Lock()
	enclave, ok := c.standaloneKeys[secretName]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	buf, err := enclave.Open()
	if err != nil {
		return nil, false
	}
	return buf, true
}

// EvictCollectionKey removes a cached collection key and cancels any
// pending relock timer for it. Called on explicit delete of the
// collection, or by a CustomLockTimeoutRelock timer firing.
func (c *Cache) EvictCollectionKey(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.collectionKeys, name)
	c.stopTimer(c.collectionTimers, name)
}

// EvictStandaloneKey removes a cached standalone-secret key and cancels
// any pending relock timer for it.
func (c *Cache) EvictStandaloneKey(secretName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.standaloneKeys, secretName)
	c.stopTimer(c.standaloneTimers, secretName)
}

// EvictAll clears every cached key and timer, used on daemon-wide relock.
// The external device-lock observer that would trigger this is out of
// scope (§4.3); this method exists so that surface is ready to be wired
// in without further changes to the cache itself.
func (c *Cache) EvictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, t := range c.collectionTimers {
		t.Stop()
		delete(c.collectionTimers, name)
	}
	for name, t := range c.standaloneTimers {
		t.Stop()
		delete(c.standaloneTimers, name)
	}
	c.collectionKeys = make(map[string]*memguard.Enclave)
	c.standaloneKeys = make(map[string]*memguard.Enclave)
}

// Close evicts every key and releases the memory lock taken by New.
func (c *Cache) Close() error {
	c.EvictAll()
	return mem.Unlock()
}
