package encrypted_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/crypto"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/storage/encrypted"
)

func newTestPlugin(t *testing.T) *encrypted.Plugin {
	t.Helper()
	p, err := encrypted.New("esp", true, t.TempDir(), crypto.New("aescbc", true))
	require.NoError(t, err)
	return p
}

func TestCreateCollectionUnlocksIt(t *testing.T) {
	p := newTestPlugin(t)
	key := []byte("a-thirty-two-byte-long-key-value")

	locked, err := p.IsLocked("coll")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, p.CreateCollection("coll", key))

	locked, err = p.IsLocked("coll")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestSetGetSecretRoundTrips(t *testing.T) {
	p := newTestPlugin(t)
	key := []byte("a-thirty-two-byte-long-key-value")
	require.NoError(t, p.CreateCollection("coll", key))

	require.NoError(t, p.SetSecret("coll", "hashed", []byte("hunter2")))

	data, err := p.GetSecret("coll", "hashed")
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), data)
}

func TestSetSecretOnLockedCollectionFails(t *testing.T) {
	p := newTestPlugin(t)
	key := []byte("a-thirty-two-byte-long-key-value")
	require.NoError(t, p.CreateCollection("coll", key))
	require.NoError(t, p.SetEncryptionKey("coll", nil))

	locked, err := p.IsLocked("coll")
	require.NoError(t, err)
	assert.True(t, locked)

	err = p.SetSecret("coll", "hashed", []byte("hunter2"))
	assert.Error(t, err)
}

func TestSetEncryptionKeyRelocksWithEmptyKey(t *testing.T) {
	p := newTestPlugin(t)
	key := []byte("a-thirty-two-byte-long-key-value")
	require.NoError(t, p.CreateCollection("coll", key))
	require.NoError(t, p.SetSecret("coll", "hashed", []byte("hunter2")))

	require.NoError(t, p.SetEncryptionKey("coll", nil))
	_, err := p.GetSecret("coll", "hashed")
	assert.Error(t, err)

	require.NoError(t, p.SetEncryptionKey("coll", key))
	data, err := p.GetSecret("coll", "hashed")
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), data)
}

func TestRemoveCollectionEvictsKey(t *testing.T) {
	p := newTestPlugin(t)
	key := []byte("a-thirty-two-byte-long-key-value")
	require.NoError(t, p.CreateCollection("coll", key))
	require.NoError(t, p.RemoveCollection("coll"))

	locked, err := p.IsLocked("coll")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestRemoveSecretDoesNotRequireUnlock(t *testing.T) {
	p := newTestPlugin(t)
	key := []byte("a-thirty-two-byte-long-key-value")
	require.NoError(t, p.CreateCollection("coll", key))
	require.NoError(t, p.SetSecret("coll", "hashed", []byte("hunter2")))
	require.NoError(t, p.SetEncryptionKey("coll", nil))

	assert.NoError(t, p.RemoveSecret("coll", "hashed"))
}

func TestStandaloneSecretRoundTrips(t *testing.T) {
	p := newTestPlugin(t)
	key := []byte("a-thirty-two-byte-long-key-value")
	require.NoError(t, p.SetStandaloneSecret("standalone", "hashed", []byte("hunter2"), key))

	data, err := p.AccessStandaloneSecret("standalone", "hashed", key)
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), data)
}

func TestReencryptSecretsRewrapsUnderNewKey(t *testing.T) {
	p := newTestPlugin(t)
	oldKey := []byte("old-key-that-is-32-bytes-long!!")
	newKey := []byte("new-key-that-is-32-bytes-long!!")
	require.NoError(t, p.CreateCollection("coll", oldKey))
	require.NoError(t, p.SetSecret("coll", "hashed", []byte("hunter2")))

	require.NoError(t, p.ReencryptSecrets(plugin.ReencryptTarget{CollectionName: "coll"}, oldKey, newKey))
	require.NoError(t, p.SetEncryptionKey("coll", newKey))

	data, err := p.GetSecret("coll", "hashed")
	require.NoError(t, err)
	assert.Equal(t, []byte("hunter2"), data)
}
