package secrets

// UIMode tells a verb whether, and how, it may prompt for user
// interaction if a custom-lock authentication flow is needed (§4.5,
// §6). It corresponds to the wire "ui-mode" argument.
type UIMode int

const (
	// NoUserInteraction forbids launching an authentication flow; a verb
	// that would need one fails with OperationRequiresUserInteraction.
	NoUserInteraction UIMode = iota
	// SystemMediatedUI lets the system's own UI service handle
	// authentication; UIServiceAddress is ignored.
	SystemMediatedUI
	// InProcessUI requires the caller to host the authentication UI
	// itself, at UIServiceAddress; ApplicationSpecific authentication
	// plugins require this mode (§4.5).
	InProcessUI
)

// Each *Request type below doubles as the queue.RequestData.Params value
// and as an in/out parameter block: the request processor fills in the
// zero-valued output field(s) — Data, Info — before the request
// completes, and the caller (which retains the same pointer it passed to
// the queue) reads them back after draining the reply channel. This
// avoids threading a second payload type through the queue for the
// handful of verbs that return more than a bare Result.

// GetPluginInfoRequest carries no input; Info is filled with the current
// plugin snapshot (§6).
type GetPluginInfoRequest struct {
	Info PluginInfoSnapshot
}

// PluginDescriptor mirrors plugin.Descriptor without importing the
// plugin package (which itself imports this one).
type PluginDescriptor struct {
	Name   string
	IsTest bool
}

// PluginInfoSnapshot mirrors plugin.Info for the same reason.
type PluginInfoSnapshot struct {
	StoragePlugins          []PluginDescriptor
	EncryptionPlugins       []PluginDescriptor
	EncryptedStoragePlugins []PluginDescriptor
	AuthenticationPlugins   []PluginDescriptor
}

// CreateDeviceLockCollectionRequest creates a collection unlocked by the
// daemon-global DeviceLockKey.
type CreateDeviceLockCollectionRequest struct {
	Name               string
	OwnerApplicationID string
	StoragePlugin      string
	EncryptionPlugin   string
	UnlockSemantic     UnlockSemantic
	AccessControlMode  AccessControlMode
}

// CreateCustomLockCollectionRequest creates a collection unlocked by a
// key obtained from AuthPlugin.
type CreateCustomLockCollectionRequest struct {
	Name                string
	OwnerApplicationID  string
	StoragePlugin       string
	EncryptionPlugin    string
	AuthPlugin          string
	UnlockSemantic      UnlockSemantic
	CustomLockTimeoutMs int64
	AccessControlMode   AccessControlMode
	UIMode              UIMode
	UIServiceAddress    string
}

// DeleteCollectionRequest removes a collection and everything catalogued
// under it.
type DeleteCollectionRequest struct {
	Name   string
	UIMode UIMode
}

// SetCollectionSecretRequest writes (inserting or updating) a secret
// under an existing collection.
type SetCollectionSecretRequest struct {
	CollectionName     string
	SecretName         string
	Data               []byte
	OwnerApplicationID string
	UIMode             UIMode
	UIServiceAddress   string
}

// GetCollectionSecretRequest reads a secret from a collection. Data is
// the output field.
type GetCollectionSecretRequest struct {
	CollectionName     string
	SecretName         string
	OwnerApplicationID string
	UIMode             UIMode
	UIServiceAddress   string

	Data []byte
}

// DeleteCollectionSecretRequest removes a single secret from a
// collection without deleting the collection itself.
type DeleteCollectionSecretRequest struct {
	CollectionName     string
	SecretName         string
	OwnerApplicationID string
	UIMode             UIMode
	UIServiceAddress   string
}

// SetStandaloneDeviceLockSecretRequest writes a standalone secret keyed
// by the daemon-global DeviceLockKey.
type SetStandaloneDeviceLockSecretRequest struct {
	SecretName         string
	Data               []byte
	OwnerApplicationID string
	StoragePlugin      string
	EncryptionPlugin   string
	UnlockSemantic     UnlockSemantic
	AccessControlMode  AccessControlMode
	UIMode             UIMode
}

// SetStandaloneCustomLockSecretRequest writes a standalone secret keyed
// by a custom-lock key obtained from AuthPlugin.
type SetStandaloneCustomLockSecretRequest struct {
	SecretName          string
	Data                []byte
	OwnerApplicationID  string
	StoragePlugin       string
	EncryptionPlugin    string
	AuthPlugin          string
	UnlockSemantic      UnlockSemantic
	CustomLockTimeoutMs int64
	AccessControlMode   AccessControlMode
	UIMode              UIMode
	UIServiceAddress    string
}

// GetStandaloneSecretRequest reads a standalone secret. Data is the
// output field.
type GetStandaloneSecretRequest struct {
	SecretName         string
	OwnerApplicationID string
	UIMode             UIMode
	UIServiceAddress   string

	Data []byte
}

// DeleteStandaloneSecretRequest removes a standalone secret.
type DeleteStandaloneSecretRequest struct {
	SecretName         string
	OwnerApplicationID string
	UIMode             UIMode
}
