// Package fsplugin is a StoragePlugin backend over the local filesystem
// (§4.1): one directory per collection, one file per hashed secret name,
// written atomically via a temp-file-then-rename sequence. It is
// grounded on the teacher's persist.FileSystemStore, adapted from a
// single-tenant vault-file layout to a collection/secret tree and
// stripped of the teacher's optimistic-concurrency versioning (the
// catalogue already serializes writes through the dispatcher, so no
// second concurrency-control layer is needed here).
package fsplugin

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aleksey-mikhaylov/sailfish-secrets/plugin"
)

const (
	filePermissions os.FileMode = 0600
	dirPermissions  os.FileMode = 0700
)

// Plugin is a StoragePlugin rooted at a base directory.
type Plugin struct {
	name     string
	isTest   bool
	basePath string
}

// New constructs a Plugin rooted at basePath, creating it if necessary.
func New(name string, isTest bool, basePath string) (*Plugin, error) {
	if err := os.MkdirAll(basePath, dirPermissions); err != nil {
		return nil, fmt.Errorf("fsplugin: create base directory: %w", err)
	}
	return &Plugin{name: name, isTest: isTest, basePath: basePath}, nil
}

func (p *Plugin) Name() string { return p.name }
func (p *Plugin) IsTest() bool { return p.isTest }

func (p *Plugin) collectionDir(collection string) string {
	return filepath.Join(p.basePath, hex.EncodeToString([]byte(collection)))
}

// secretPath encodes the hashed name as hex rather than trusting it
// directly as a path element: hashedName is base64-encoded upstream
// (secrets.HashedSecretName) and may contain '/'.
func (p *Plugin) secretPath(collection, hashedName string) string {
	return filepath.Join(p.collectionDir(collection), hex.EncodeToString([]byte(hashedName))+".secret")
}

func (p *Plugin) CreateCollection(name string) error {
	if err := os.MkdirAll(p.collectionDir(name), dirPermissions); err != nil {
		return fmt.Errorf("fsplugin: create collection directory: %w", err)
	}
	return nil
}

func (p *Plugin) RemoveCollection(name string) error {
	if err := os.RemoveAll(p.collectionDir(name)); err != nil {
		return fmt.Errorf("fsplugin: remove collection directory: %w", err)
	}
	return nil
}

func (p *Plugin) SetSecret(collection, hashedName string, data []byte) error {
	return writeSecureFile(p.secretPath(collection, hashedName), data)
}

func (p *Plugin) GetSecret(collection, hashedName string) ([]byte, error) {
	data, err := os.ReadFile(p.secretPath(collection, hashedName))
	if err != nil {
		return nil, fmt.Errorf("fsplugin: read secret: %w", err)
	}
	return data, nil
}

func (p *Plugin) RemoveSecret(collection, hashedName string) error {
	if err := os.Remove(p.secretPath(collection, hashedName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsplugin: remove secret: %w", err)
	}
	return nil
}

// ReencryptSecrets decrypts every targeted secret under oldKey and
// rewrites it under newKey, in place (§9 design note on key rotation).
func (p *Plugin) ReencryptSecrets(target plugin.ReencryptTarget, oldKey, newKey []byte, enc plugin.EncryptionPlugin) error {
	var paths []string
	if target.CollectionName != "" {
		entries, err := os.ReadDir(p.collectionDir(target.CollectionName))
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return fmt.Errorf("fsplugin: list collection directory: %w", err)
		}
		for _, e := range entries {
			paths = append(paths, filepath.Join(p.collectionDir(target.CollectionName), e.Name()))
		}
	} else {
		for _, hashed := range target.HashedStandaloneNames {
			paths = append(paths, p.secretPath("standalone", hashed))
		}
	}

	for _, path := range paths {
		ciphertext, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("fsplugin: read %s: %w", path, err)
		}
		plaintext, err := enc.Decrypt(ciphertext, oldKey)
		if err != nil {
			return fmt.Errorf("fsplugin: decrypt %s: %w", path, err)
		}
		rewrapped, err := enc.Encrypt(plaintext, newKey)
		if err != nil {
			return fmt.Errorf("fsplugin: encrypt %s: %w", path, err)
		}
		if err := writeSecureFile(path, rewrapped); err != nil {
			return err
		}
	}
	return nil
}

// writeSecureFile writes data atomically via a temp file in the same
// directory followed by a rename, matching the teacher's
// persist.writeSecureFile sequence.
func writeSecureFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("fsplugin: create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("fsplugin: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsplugin: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsplugin: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsplugin: close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, filePermissions); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsplugin: chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("fsplugin: rename temp file: %w", err)
	}
	return nil
}

var _ plugin.StoragePlugin = (*Plugin)(nil)
