// Package plugin defines the abstract contracts (§4.1) between the
// daemon's request processor and the pluggable storage, encryption,
// encrypted-storage, and authentication backends it delegates to.
//
// The four capability sets are deliberately kept as separate interfaces
// rather than unified by embedding: StoragePlugin and EncryptedStoragePlugin
// have distinct method sets (an encrypted-storage plugin holds its own
// per-collection keys and never hands raw ciphertext to a caller-supplied
// EncryptionPlugin), so a plugin's capability is detected at load time
// (see Discover) rather than resolved through a type hierarchy.
package plugin

import "github.com/aleksey-mikhaylov/sailfish-secrets"

// Named is the base capability every plugin exposes: a stable name used to
// address it from Collection/Secret rows, and a flag reporting whether it
// is a test double. A plugin whose IsTest() does not match the daemon's
// own mode is skipped at discovery time (§6, §9 open question 4) — this is
// checked once, at Discover, not on every call.
type Named interface {
	Name() string
	IsTest() bool
}

// ReencryptTarget names what a ReencryptSecrets call should re-key: either
// every secret in a named collection, or an explicit list of standalone
// secrets (identified by their already-hashed names). Exactly one of the
// two fields should be populated.
type ReencryptTarget struct {
	CollectionName  string
	HashedStandaloneNames []string
}

// StoragePlugin persists opaque, already-encrypted secret bytes keyed by
// their hashed name (§3, §4.1). It never sees plaintext and never sees the
// literal secret name.
type StoragePlugin interface {
	Named

	CreateCollection(name string) error
	RemoveCollection(name string) error
	SetSecret(collection, hashedName string, data []byte) error
	GetSecret(collection, hashedName string) ([]byte, error)
	RemoveSecret(collection, hashedName string) error

	// ReencryptSecrets re-keys every secret named by target from oldKey to
	// newKey using enc, in place. Used for key rotation (§9 design note).
	ReencryptSecrets(target ReencryptTarget, oldKey, newKey []byte, enc EncryptionPlugin) error
}

// EncryptionPlugin performs authenticated-enough symmetric encryption over
// caller-supplied key material. The reference implementation in this
// module (plugin/crypto) is AES-256-CBC with a fixed 16-byte IV and a
// 32-byte key formed by truncating or zero-padding the supplied key, per
// §4.1 — a deliberately narrow reference scheme, not a recommendation.
type EncryptionPlugin interface {
	Named

	Encrypt(plaintext, key []byte) ([]byte, error)
	Decrypt(ciphertext, key []byte) ([]byte, error)
}

// EncryptedStoragePlugin combines storage and encryption behind a single
// backend that manages its own per-collection keys. Regular
// collection secrets are written and read through SetSecret/GetSecret once
// the collection has been unlocked with SetEncryptionKey; standalone
// secrets carry their key on every call since there is no persistent
// per-collection unlock state for them.
type EncryptedStoragePlugin interface {
	Named

	CreateCollection(name string, key []byte) error
	RemoveCollection(name string) error
	IsLocked(collection string) (bool, error)
	SetEncryptionKey(collection string, key []byte) error

	SetSecret(collection, hashedName string, data []byte) error
	GetSecret(collection, hashedName string) ([]byte, error)
	RemoveSecret(collection, hashedName string) error

	// SetSecret/AccessSecret standalone variants supply the key directly,
	// since standalone secrets have no persistent unlock state to rely on.
	SetStandaloneSecret(collection, hashedName string, data, key []byte) error
	AccessStandaloneSecret(collection, hashedName string, key []byte) ([]byte, error)

	ReencryptSecrets(target ReencryptTarget, oldKey, newKey []byte) error
}

// AuthType distinguishes authentication plugins that must run their UI in
// the calling application's own process from those mediated by the system
// (§4.1, §4.5).
type AuthType int

const (
	ApplicationSpecific AuthType = iota
	SystemMediated
)

// AuthRequest carries everything an AuthenticationPlugin needs to begin an
// authentication flow (§4.1).
type AuthRequest struct {
	CallerPID       int
	RequestID       uint64
	ApplicationID   string
	CollectionName  string
	SecretName      string
	UIServiceAddress string
}

// AuthenticationCompletion is delivered asynchronously once a begun
// authentication flow resolves, via CompletionSink.
type AuthenticationCompletion struct {
	RequestID uint64
	Result    secrets.Result
	Key       []byte
}

// CompletionSink receives AuthenticationCompletion events. The request
// processor implements this; cmd/secretsd registers it with every
// AuthenticationPlugin once the processor is built, so it can resume the
// matching PendingRequest continuation.
type CompletionSink interface {
	AuthenticationCompleted(AuthenticationCompletion)
}

// AuthenticationPlugin begins a (possibly asynchronous) user-facing
// authentication flow and eventually reports its outcome to a registered
// CompletionSink rather than returning the key synchronously (§4.1, §4.5).
type AuthenticationPlugin interface {
	Named

	AuthenticationType() AuthType

	// BeginAuthentication starts the flow. It returns a Pending result if
	// the flow was launched successfully (the eventual key arrives via the
	// registered CompletionSink) or a Failed result if it could not even
	// be started.
	BeginAuthentication(req AuthRequest) secrets.Result

	RegisterCompletionSink(sink CompletionSink)
}

// Descriptor is the {name, is_test} snapshot returned by GetPluginInfo
// (§6) for each of the four plugin kinds.
type Descriptor struct {
	Name   string
	IsTest bool
}

func describe(n Named) Descriptor {
	return Descriptor{Name: n.Name(), IsTest: n.IsTest()}
}
