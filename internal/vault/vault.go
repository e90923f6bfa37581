package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gander-tools/owntracks-dataviewer/internal/crypto"
)

var (
	ErrLocked              = errors.New("vault is locked")
	ErrNoStoredCredentials = errors.New("no stored credentials")
	// ErrIncorrectPassword covers both a wrong master password and a
	// corrupted blob. The two are deliberately not distinguished.
	ErrIncorrectPassword = errors.New("incorrect password or corrupt vault")
)

// Credentials is everything needed to reach the remote store and
// decrypt its payloads. Either fully populated (vault unlocked) or not
// held at all (vault locked); never persisted unencrypted.
type Credentials struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	DecryptPassword string `json:"decrypt_password"`
	URL             string `json:"url"`
	Namespace       string `json:"namespace"`
	Database        string `json:"database"`
	Table           string `json:"table"`
}

// BlobStore persists one opaque encrypted blob. Empty string means no
// stored credentials.
type BlobStore interface {
	Get() (string, error)
	Set(blob string) error
	Delete() error
}

// Vault owns the persisted encrypted blob and the decrypted in-memory
// credential set. Both are mutated only through Vault methods.
type Vault struct {
	mu    sync.RWMutex
	blobs BlobStore
	creds *Credentials
}

// New creates a locked vault over the given blob store.
func New(blobs BlobStore) *Vault {
	return &Vault{blobs: blobs}
}

// Save serializes the credentials, encrypts them under the master
// password, persists the blob and unlocks the vault with the given set.
func (v *Vault) Save(creds Credentials, masterPassword string) error {
	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("vault: serialize credentials: %w", err)
	}
	blob, err := crypto.Encrypt(string(payload), masterPassword)
	if err != nil {
		return fmt.Errorf("vault: encrypt credentials: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.blobs.Set(blob); err != nil {
		return fmt.Errorf("vault: persist blob: %w", err)
	}
	v.creds = &creds
	return nil
}

// Load decrypts the persisted blob and unlocks the vault. A decrypt or
// parse failure reports ErrIncorrectPassword and leaves any previously
// unlocked credential set untouched.
func (v *Vault) Load(masterPassword string) (Credentials, error) {
	blob, err := v.blobs.Get()
	if err != nil {
		return Credentials{}, fmt.Errorf("vault: read blob: %w", err)
	}
	if blob == "" {
		return Credentials{}, ErrNoStoredCredentials
	}

	plaintext, err := crypto.Decrypt(blob, masterPassword)
	if err != nil {
		return Credentials{}, ErrIncorrectPassword
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(plaintext), &creds); err != nil {
		return Credentials{}, ErrIncorrectPassword
	}

	v.mu.Lock()
	v.creds = &creds
	v.mu.Unlock()
	return creds, nil
}

// Clear blanks the in-memory credentials and deletes the persisted
// blob. Idempotent; memory is blanked even if the delete fails.
func (v *Vault) Clear() error {
	v.mu.Lock()
	v.creds = nil
	v.mu.Unlock()
	if err := v.blobs.Delete(); err != nil {
		return fmt.Errorf("vault: delete blob: %w", err)
	}
	return nil
}

// HasStoredCredentials reports whether a non-empty blob is persisted,
// independent of lock state.
func (v *Vault) HasStoredCredentials() bool {
	blob, err := v.blobs.Get()
	return err == nil && blob != ""
}

// Unlocked reports whether a credential set is held in memory.
func (v *Vault) Unlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.creds != nil
}

// Credentials returns a copy of the in-memory set, or ErrLocked.
// Downstream consumers must go through here rather than caching the
// set, so a locked vault blocks them.
func (v *Vault) Credentials() (Credentials, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.creds == nil {
		return Credentials{}, ErrLocked
	}
	return *v.creds, nil
}
