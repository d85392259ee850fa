package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin/crypto"
)

func TestAESCBCRoundTrip(t *testing.T) {
	p := crypto.New("aescbc", true)
	key := []byte("a-thirty-two-byte-long-key-value")
	plaintext := []byte("hunter2")

	ciphertext, err := p.Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := p.Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESCBCShortKeyIsPadded(t *testing.T) {
	p := crypto.New("aescbc", true)
	plaintext := []byte("short key material")

	ciphertext, err := p.Encrypt(plaintext, []byte("short"))
	require.NoError(t, err)
	decrypted, err := p.Decrypt(ciphertext, []byte("short"))
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESCBCRejectsCorruptCiphertext(t *testing.T) {
	p := crypto.New("aescbc", true)
	_, err := p.Decrypt([]byte("not a multiple of 16"), []byte("key"))
	assert.Error(t, err)
}

func TestAEADRoundTrip(t *testing.T) {
	p := crypto.NewAEAD("aead", true)
	key := []byte("another-thirty-two-byte-key-val")
	plaintext := []byte("hunter2")

	ciphertext, err := p.Encrypt(plaintext, key)
	require.NoError(t, err)

	decrypted, err := p.Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAEADDetectsTampering(t *testing.T) {
	p := crypto.NewAEAD("aead", true)
	key := []byte("another-thirty-two-byte-key-val")

	ciphertext, err := p.Encrypt([]byte("hunter2"), key)
	require.NoError(t, err)
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = p.Decrypt(ciphertext, key)
	assert.Error(t, err)
}

func TestAEADDifferentNoncesProduceDifferentCiphertext(t *testing.T) {
	p := crypto.NewAEAD("aead", true)
	key := []byte("another-thirty-two-byte-key-val")

	c1, err := p.Encrypt([]byte("hunter2"), key)
	require.NoError(t, err)
	c2, err := p.Encrypt([]byte("hunter2"), key)
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}
