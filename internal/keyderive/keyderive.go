// Package keyderive sources the daemon's fixed DeviceLockKey and
// SystemEncryptionKey placeholders (§9 design note: "the reference uses
// placeholder constant bytes. An implementation MUST source these from a
// platform-appropriate secure keystore at first boot").
//
// This module has no access to a real hardware-backed keystore (the
// secure peripheral is a stubbed Non-goal, §1); instead it derives both
// keys from an operator-supplied bootstrap passphrase and a persisted
// random salt using Argon2id, in the style of the teacher's
// internal/crypto passphrase-derivation helpers.
package keyderive

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/misc"
)

// saltSize is twice misc.SaltSize: this salt seeds two independently
// derived keys (DeviceLockKey and SystemEncryptionKey) from the same
// bootstrap passphrase, so it carries more entropy than a single-key
// derivation needs.
const saltSize = 2 * misc.SaltSize

// NewSalt generates fresh, cryptographically random derivation salt. It
// must be persisted (e.g. alongside the catalogue file) and reused on
// every subsequent daemon start; losing it makes previously derived keys
// unrecoverable.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keyderive: generate salt: %w", err)
	}
	return salt, nil
}

// DeviceLockKey derives the daemon-global key that unlocks
// device-lock-protected collections and standalone secrets, from the
// bootstrap passphrase and persisted salt.
func DeviceLockKey(passphrase string, salt []byte) []byte {
	return derive(passphrase, salt, "device-lock")
}

// SystemEncryptionKey derives the daemon's system encryption key from the
// bootstrap passphrase and persisted salt. cmd/secretsd exposes it through
// its KeySource; no component in this module encrypts with it.
func SystemEncryptionKey(passphrase string, salt []byte) []byte {
	return derive(passphrase, salt, "system-encryption")
}

func derive(passphrase string, salt []byte, label string) []byte {
	info := append(append([]byte{}, salt...), []byte(label)...)
	return argon2.IDKey([]byte(passphrase), info, misc.ArgonTime, misc.ArgonMemory, misc.ArgonThreads, misc.ArgonKeyLen)
}
