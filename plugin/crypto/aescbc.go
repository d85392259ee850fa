// Package crypto provides the reference EncryptionPlugin implementation
// mandated by §4.1: AES-256-CBC with a fixed 16-byte IV and a 32-byte key
// formed by truncating or zero-padding whatever key material is supplied.
// This is intentionally the narrow, source-faithful scheme from the
// original opensslcryptoplugin (EVP_aes_256_cbc with a caller-supplied
// IV and a padded key) — not a recommendation for new deployments.
package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

const (
	keySize = 32
	ivSize  = 16
)

// fixedIV is the reference plugin's fixed initialisation vector. Reusing
// an IV across encryptions of different plaintext under the same key is a
// known weakness of CBC mode; this mirrors the original daemon's reference
// plugin faithfully rather than fixing it, since callers are expected to
// use distinct keys per collection/secret (via key rotation) rather than
// rely on IV uniqueness.
var fixedIV = [ivSize]byte{}

// AESCBCPlugin is the daemon's built-in EncryptionPlugin.
type AESCBCPlugin struct {
	name   string
	isTest bool
}

// New constructs an AES-256-CBC EncryptionPlugin under the given name.
func New(name string, isTest bool) *AESCBCPlugin {
	return &AESCBCPlugin{name: name, isTest: isTest}
}

func (p *AESCBCPlugin) Name() string  { return p.name }
func (p *AESCBCPlugin) IsTest() bool  { return p.isTest }

func padKey(key []byte) []byte {
	padded := make([]byte, keySize)
	n := copy(padded, key)
	_ = n // zero-padding: any unfilled tail bytes remain zero
	if len(key) > keySize {
		copy(padded, key[:keySize])
	}
	return padded
}

// Encrypt PKCS#7-pads plaintext to the AES block size and encrypts it with
// AES-256-CBC using the fixed IV and the padded key.
func (p *AESCBCPlugin) Encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(padKey(key))
	if err != nil {
		return nil, fmt.Errorf("aescbc: new cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(block, fixedIV[:])
	mode.CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt reverses Encrypt. It returns an error if the ciphertext is not a
// multiple of the block size or the PKCS#7 padding is malformed.
func (p *AESCBCPlugin) Decrypt(ciphertext, key []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("aescbc: ciphertext is not a multiple of the block size")
	}
	block, err := aes.NewCipher(padKey(key))
	if err != nil {
		return nil, fmt.Errorf("aescbc: new cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(block, fixedIV[:])
	mode.CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("aescbc: empty plaintext")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("aescbc: invalid padding")
	}
	return data[:len(data)-padLen], nil
}

var _ plugin.EncryptionPlugin = (*AESCBCPlugin)(nil)
