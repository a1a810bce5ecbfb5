package infra

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

const (
	journalKeyName = "journal.key"
	keySize        = 32 // 256-bit SQLCipher key
)

// JournalKeyFile stores the journal's SQLCipher key next to journal.db,
// base64 encoded and readable only by its owner.
type JournalKeyFile struct {
	dataDir string
}

// NewJournalKeyFile returns the key file for the journal in dataDir.
func NewJournalKeyFile(dataDir string) *JournalKeyFile {
	return &JournalKeyFile{dataDir: dataDir}
}

// Path returns the key file location.
func (k *JournalKeyFile) Path() string {
	return filepath.Join(k.dataDir, journalKeyName)
}

// LoadKey reads and decodes the key.
func (k *JournalKeyFile) LoadKey() ([]byte, error) {
	encoded, err := os.ReadFile(k.Path())
	if err != nil {
		return nil, fmt.Errorf("failed to read journal key: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(encoded)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrJournalKeyCorrupt, k.Path(), err)
	}
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: %s holds %d bytes, want %d", domain.ErrJournalKeyCorrupt, k.Path(), len(key), keySize)
	}
	return key, nil
}

// StoreKey writes a new key. It fails if a key file is already present so
// two daemons starting together cannot overwrite each other's key.
func (k *JournalKeyFile) StoreKey(key []byte) error {
	if len(key) != keySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	if err := os.MkdirAll(k.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	f, err := os.OpenFile(k.Path(), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create journal key: %w", err)
	}
	if _, err := f.WriteString(base64.StdEncoding.EncodeToString(key)); err != nil {
		f.Close()
		os.Remove(k.Path())
		return fmt.Errorf("failed to write journal key: %w", err)
	}
	return f.Close()
}

// KeyExists reports whether a key file is present.
func (k *JournalKeyFile) KeyExists() bool {
	_, err := os.Stat(k.Path())
	return err == nil
}

// GenerateKey creates a new random 256-bit encryption key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}
	return key, nil
}

// EnsureJournalKey returns the key for the journal in dataDir, generating
// one for a fresh data directory. A journal whose key file is gone gets
// ErrJournalKeyMissing rather than a new key, which could never decrypt it.
func EnsureJournalKey(dataDir string) ([]byte, error) {
	keys := NewJournalKeyFile(dataDir)
	if keys.KeyExists() {
		return keys.LoadKey()
	}

	dbPath := filepath.Join(dataDir, journalDBName)
	if _, err := os.Stat(dbPath); err == nil {
		return nil, fmt.Errorf("%w: %s has no %s", domain.ErrJournalKeyMissing, dbPath, journalKeyName)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := keys.StoreKey(key); err != nil {
		// Lost a race with another process creating the key.
		if errors.Is(err, os.ErrExist) {
			return keys.LoadKey()
		}
		return nil, err
	}
	return key, nil
}

// OpenJournal opens the encrypted journal in dataDir with its key.
func OpenJournal(dataDir string) (*EncryptedJournal, error) {
	key, err := EnsureJournalKey(dataDir)
	if err != nil {
		return nil, err
	}
	return NewEncryptedJournal(dataDir, key)
}

var _ domain.KeyProvider = (*JournalKeyFile)(nil)
