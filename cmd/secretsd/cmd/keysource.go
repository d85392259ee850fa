package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/aleksey-mikhaylov/sailfish-secrets/internal/keyderive"
)

const saltFileName = "keyderive.salt"

type keySource struct {
	deviceLockKey       []byte
	systemEncryptionKey []byte
}

func (k keySource) DeviceLockKey() []byte       { return k.deviceLockKey }
func (k keySource) SystemEncryptionKey() []byte { return k.systemEncryptionKey }

// loadKeySource reads (or, on first run, generates and persists) the
// derivation salt under dataDir, then derives both fixed keys from
// passphrase and that salt via keyderive. Losing the salt file makes
// every previously derived key unrecoverable, so it is written with the
// same atomic-rename discipline plugin/storage/fsplugin uses for secret
// data.
func loadKeySource(dataDir, passphrase string) (keySource, error) {
	saltPath := filepath.Join(dataDir, saltFileName)

	salt, err := os.ReadFile(saltPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return keySource{}, fmt.Errorf("read derivation salt: %w", err)
		}
		salt, err = keyderive.NewSalt()
		if err != nil {
			return keySource{}, fmt.Errorf("generate derivation salt: %w", err)
		}
		if err := writeSaltFile(saltPath, salt); err != nil {
			return keySource{}, err
		}
	}

	return keySource{
		deviceLockKey:       keyderive.DeviceLockKey(passphrase, salt),
		systemEncryptionKey: keyderive.SystemEncryptionKey(passphrase, salt),
	}, nil
}

func writeSaltFile(path string, salt []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-salt-*")
	if err != nil {
		return fmt.Errorf("create temp salt file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(salt); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp salt file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp salt file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp salt file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp salt file: %w", err)
	}
	return nil
}
