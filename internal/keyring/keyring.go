// Package keyring loads the process-wide audit MAC key from a local
// secret file. The key authenticates the audit chain and is never written
// into the log itself; rotating it invalidates verification of entries
// appended under the old key unless that key is retained out-of-band.
package keyring

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
)

// KeySize is the MAC key length in bytes.
const KeySize = 32

// Load reads the key file at path. The file must contain exactly KeySize
// raw bytes and must not be readable by other users.
func Load(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("keyring: stat key file: %w", err)
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return nil, fmt.Errorf("keyring: key file %s has mode %04o; must not be accessible to group or others", path, mode)
	}

	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyring: read key file: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("keyring: key file %s holds %d bytes, want %d", path, len(key), KeySize)
	}
	return key, nil
}

// LoadOrCreate loads the key file, generating a fresh random key at path
// (mode 0600) if it does not exist yet.
func LoadOrCreate(path string) ([]byte, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("keyring: stat key file: %w", err)
	}

	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keyring: generate key: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("keyring: create directory: %w", err)
	}

	// Write via a same-directory temp file so a crash never leaves a
	// truncated key behind.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, key, 0600); err != nil {
		return nil, fmt.Errorf("keyring: write key file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return nil, fmt.Errorf("keyring: install key file: %w", err)
	}
	return key, nil
}
