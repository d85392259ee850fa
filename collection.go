package secrets

import "strings"

// StandaloneCollectionName is the reserved, notional collection under
// which standalone secrets are catalogued. It is never created or deleted
// through CreateCollection/DeleteCollection; the catalogue seeds a row for
// it once at startup (see internal/catalogue) so that per-secret rows
// always have a valid parent.
const StandaloneCollectionName = "standalone"

// IsReservedName reports whether name collides, compared
// case-insensitively, with the reserved standalone collection name. Other
// collection names are matched case-sensitively by the catalogue, so
// "Wallet" and "wallet" are distinct collections.
func IsReservedName(name string) bool {
	return strings.EqualFold(name, StandaloneCollectionName)
}

// UnlockSemantic controls when and how a collection re-locks after use.
type UnlockSemantic int

const (
	// DeviceLockKeepUnlocked collections stay unlocked once the device is
	// unlocked; they only re-lock when the device itself locks.
	DeviceLockKeepUnlocked UnlockSemantic = iota
	// DeviceLockRelock collections re-lock immediately after each access,
	// even while the device stays unlocked.
	DeviceLockRelock
	// CustomLockKeepUnlocked collections use a custom-lock key and, once
	// unlocked via authentication, stay unlocked for the daemon's lifetime
	// (or until explicitly locked).
	CustomLockKeepUnlocked
	// CustomLockDeviceLockRelock collections use a custom-lock key but
	// re-lock whenever the device locks.
	CustomLockDeviceLockRelock
	// CustomLockTimeoutRelock collections use a custom-lock key and
	// automatically re-lock CustomLockTimeoutMs after a successful unlock.
	CustomLockTimeoutRelock
	// CustomLockAccessRelock collections use a custom-lock key and
	// re-lock immediately after every access.
	CustomLockAccessRelock
)

// AccessControlMode governs which callers may operate on a collection or
// standalone secret. SystemControlled (fine-grained cross-application
// access control) is a stubbed Non-goal (§1): the daemon accepts the value
// but every verb that would need to consult it fails fast with
// OperationNotSupported.
type AccessControlMode int

const (
	OwnerOnly AccessControlMode = iota
	SystemControlled
)

// Collection is a named container for secrets sharing a lock and access
// policy. Collections are never mutated in place: CreateCollection inserts
// a new catalogue row, and DeleteCollection removes it; there is no update
// verb.
type Collection struct {
	Name                string
	OwnerApplicationID  string
	UsesDeviceLockKey   bool
	StoragePluginName   string
	EncryptionPluginName string
	AuthPluginName      string
	UnlockSemantic      UnlockSemantic
	CustomLockTimeoutMs int64
	AccessControlMode   AccessControlMode
}

// UsesEncryptedStoragePlugin reports whether this collection's storage and
// encryption capability are provided by a single combined plugin, as
// opposed to a separate storage plugin and encryption plugin.
func (c Collection) UsesEncryptedStoragePlugin() bool {
	return c.StoragePluginName == c.EncryptionPluginName
}

// Validate checks the invariants from §3 of the specification that can be
// checked from the struct fields alone (plugin existence/kind is checked
// against the live plugin registry by the request processor, not here).
func (c Collection) Validate() error {
	if IsReservedName(c.Name) {
		return NewErrorf(ErrInvalidCollection, "collection name %q is reserved", c.Name)
	}
	if c.OwnerApplicationID == "" {
		return NewError(ErrInvalidCollection, "collection must have a non-empty owner")
	}
	if c.StoragePluginName == "" || c.EncryptionPluginName == "" {
		return NewError(ErrInvalidExtensionPlugin, "collection must name a storage and an encryption plugin")
	}
	return nil
}
