package fsplugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/crypto"
	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/storage/fsplugin"
)

func TestCreateSetGetRemoveSecret(t *testing.T) {
	p, err := fsplugin.New("fs", true, t.TempDir())
	require.NoError(t, err)

	require.NoError(t, p.CreateCollection("coll"))
	require.NoError(t, p.SetSecret("coll", "hashed/name+with/slash", []byte("ciphertext")))

	data, err := p.GetSecret("coll", "hashed/name+with/slash")
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), data)

	require.NoError(t, p.RemoveSecret("coll", "hashed/name+with/slash"))
	_, err = p.GetSecret("coll", "hashed/name+with/slash")
	assert.Error(t, err)
}

func TestRemoveSecretIsIdempotent(t *testing.T) {
	p, err := fsplugin.New("fs", true, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, p.CreateCollection("coll"))
	assert.NoError(t, p.RemoveSecret("coll", "never-written"))
}

func TestRemoveCollectionDeletesItsSecrets(t *testing.T) {
	p, err := fsplugin.New("fs", true, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, p.CreateCollection("coll"))
	require.NoError(t, p.SetSecret("coll", "s1", []byte("data")))

	require.NoError(t, p.RemoveCollection("coll"))
	_, err = p.GetSecret("coll", "s1")
	assert.Error(t, err)
}

func TestReencryptSecretsRewrapsUnderNewKey(t *testing.T) {
	p, err := fsplugin.New("fs", true, t.TempDir())
	require.NoError(t, err)
	enc := crypto.New("aescbc", true)
	oldKey := []byte("old-key-that-is-32-bytes-long!!")
	newKey := []byte("new-key-that-is-32-bytes-long!!")

	require.NoError(t, p.CreateCollection("coll"))
	ciphertext, err := enc.Encrypt([]byte("plaintext"), oldKey)
	require.NoError(t, err)
	require.NoError(t, p.SetSecret("coll", "s1", ciphertext))

	require.NoError(t, p.ReencryptSecrets(plugin.ReencryptTarget{CollectionName: "coll"}, oldKey, newKey, enc))

	rewrapped, err := p.GetSecret("coll", "s1")
	require.NoError(t, err)
	assert.NotEqual(t, ciphertext, rewrapped)

	plaintext, err := enc.Decrypt(rewrapped, newKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("plaintext"), plaintext)
}
