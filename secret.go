package secrets

import (
	"encoding/base64"

	"golang.org/x/crypto/sha3"
)

// hashRounds is the number of SHA3-256 rounds applied when deriving a
// hashed secret name (§3). The plaintext secret name never appears in
// plugin storage; only this derived, one-way identifier does.
const hashRounds = 100

// Secret is a named opaque byte blob under a collection (or under the
// reserved standalone collection). Attributes mirror the owning
// collection's, except that standalone secrets carry their own copy of
// each attribute since they have no owning Collection row to inherit
// from.
type Secret struct {
	CollectionName      string
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

// IsStandalone reports whether this secret lives under the reserved
// standalone collection rather than a user-visible collection.
func (s Secret) IsStandalone() bool {
	return IsReservedName(s.CollectionName)
}

// HashedSecretName derives the opaque storage key for a secret: 100 rounds
// of SHA3-256 over collectionName||secretName, base64-encoded. This is the
// only form of the secret's identity that ever reaches a StoragePlugin.
func HashedSecretName(collectionName, secretName string) string {
	digest := []byte(collectionName + secretName)
	for i := 0; i < hashRounds; i++ {
		sum := sha3.Sum256(digest)
		digest = sum[:]
	}
	return base64.StdEncoding.EncodeToString(digest)
}
