package catalogue_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	secrets "github.com/aleksey-mikhaylov/sailfish-secrets"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/catalogue"
	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/catalogue/sqlitecatalogue"
)

func newTestCatalogue(t *testing.T) *catalogue.Catalogue {
	t.Helper()
	backend, err := sqlitecatalogue.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	cat, err := catalogue.New(backend)
	require.NoError(t, err)
	return cat
}

func TestCatalogueSeedsStandaloneCollection(t *testing.T) {
	cat := newTestCatalogue(t)

	names, err := cat.CollectionNames()
	require.NoError(t, err)
	assert.Contains(t, names, secrets.StandaloneCollectionName)
}

func TestCollectionLifecycle(t *testing.T) {
	cat := newTestCatalogue(t)

	col := secrets.Collection{
		Name:                 "wallet",
		OwnerApplicationID:   "com.example.app",
		StoragePluginName:    "fsplugin",
		EncryptionPluginName: "aescbc",
		UnlockSemantic:       secrets.DeviceLockKeepUnlocked,
		AccessControlMode:    secrets.OwnerOnly,
	}
	require.NoError(t, cat.InsertCollection(col))

	found, ok, err := cat.FindCollection("wallet")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, col.OwnerApplicationID, found.OwnerApplicationID)
	assert.Equal(t, col.AccessControlMode, found.AccessControlMode)

	require.NoError(t, cat.DeleteCollection("wallet"))
	_, ok, err = cat.FindCollection("wallet")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSecretLifecycle(t *testing.T) {
	cat := newTestCatalogue(t)

	s := secrets.Secret{
		CollectionName:       secrets.StandaloneCollectionName,
		Name:                 "api-token",
		OwnerApplicationID:   "com.example.app",
		StoragePluginName:    "fsplugin",
		EncryptionPluginName: "aescbc",
		AccessControlMode:    secrets.OwnerOnly,
	}
	require.NoError(t, cat.InsertSecret(s))

	names, err := cat.SecretNames(secrets.StandaloneCollectionName)
	require.NoError(t, err)
	assert.Contains(t, names, "api-token")

	found, ok, err := cat.FindSecret(secrets.StandaloneCollectionName, "api-token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.StoragePluginName, found.StoragePluginName)

	require.NoError(t, cat.DeleteSecret(secrets.StandaloneCollectionName, "api-token"))
	_, ok, err = cat.FindSecret(secrets.StandaloneCollectionName, "api-token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyEntryLifecycle(t *testing.T) {
	cat := newTestCatalogue(t)

	k := secrets.KeyEntry{
		CollectionName:    "wallet",
		KeyName:           "signing-key",
		CryptoPluginName:  "aescbc",
		StoragePluginName: "fsplugin",
	}
	require.NoError(t, cat.InsertKeyEntry(k))

	found, ok, err := cat.FindKeyEntry("wallet", "signing-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, k, found)

	ids, err := cat.KeyEntryIdentifiers()
	require.NoError(t, err)
	assert.Len(t, ids, 1)
	assert.Equal(t, "wallet/signing-key", ids[0].ID())

	require.NoError(t, cat.DeleteKeyEntry("wallet", "signing-key"))
	_, ok, err = cat.FindKeyEntry("wallet", "signing-key")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSequentialMutationsEachCommit(t *testing.T) {
	cat := newTestCatalogue(t)

	// InsertCollection followed by InsertSecret under the same catalogue,
	// with no barrier between them: each call starts from its own
	// context.Background(), so each opens and commits its own top-level
	// WithTransaction scope, and the second sees the first's row.
	require.NoError(t, cat.InsertCollection(secrets.Collection{
		Name:                 "nested",
		OwnerApplicationID:   "com.example.app",
		StoragePluginName:    "fsplugin",
		EncryptionPluginName: "aescbc",
	}))
	require.NoError(t, cat.InsertSecret(secrets.Secret{
		CollectionName:       "nested",
		Name:                 "s1",
		OwnerApplicationID:   "com.example.app",
		StoragePluginName:    "fsplugin",
		EncryptionPluginName: "aescbc",
	}))

	_, ok, err := cat.FindCollection("nested")
	require.NoError(t, err)
	assert.True(t, ok)

	names, err := cat.SecretNames("nested")
	require.NoError(t, err)
	assert.Contains(t, names, "s1")
}
