package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

// AEADPlugin is an alternative EncryptionPlugin (§4.1 allows multiple
// named encryption plugins to be registered side by side) using
// ChaCha20-Poly1305 authenticated encryption: a random nonce per call,
// prefixed to the sealed output, with the key cache's key, truncated or
// zero-padded to 32 bytes by padKey, used as the AEAD key directly rather than a master key passed through a
// key ID, since it holds no rotation history of its own.
type AEADPlugin struct {
	name   string
	isTest bool
}

// NewAEAD constructs a ChaCha20-Poly1305 EncryptionPlugin under the
// given name.
func NewAEAD(name string, isTest bool) *AEADPlugin {
	return &AEADPlugin{name: name, isTest: isTest}
}

func (p *AEADPlugin) Name() string { return p.name }
func (p *AEADPlugin) IsTest() bool { return p.isTest }

// Encrypt seals plaintext under key with a fresh random nonce, returning
// nonce||ciphertext||tag.
func (p *AEADPlugin) Encrypt(plaintext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(padKey(key))
	if err != nil {
		return nil, fmt.Errorf("aeadcrypto: new cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("aeadcrypto: generate nonce: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	out := make([]byte, 0, len(nonce)+len(sealed))
	out = append(out, nonce...)
	out = append(out, sealed...)
	return out, nil
}

// Decrypt reverses Encrypt, verifying the authentication tag.
func (p *AEADPlugin) Decrypt(ciphertext, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(padKey(key))
	if err != nil {
		return nil, fmt.Errorf("aeadcrypto: new cipher: %w", err)
	}
	nonceSize := aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("aeadcrypto: ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("aeadcrypto: open: %w", err)
	}
	return plaintext, nil
}

var _ plugin.EncryptionPlugin = (*AEADPlugin)(nil)
