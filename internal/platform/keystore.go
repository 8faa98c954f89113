package platform

import (
	"crypto/rand"
	"fmt"
	"sync"
)

// Keystore abstracts the platform-level secret store. The Entitlement
// Manager is its sole caller, holding the integrity-signing secret under
// the "offline_billing_integrity_key" service name.
type Keystore interface {
	Get(service string) ([]byte, bool, error)
	Set(service string, value []byte) error
}

// OfflineBillingIntegrityKeyService is the keystore entry name for the
// entitlement HS256 signing secret.
const OfflineBillingIntegrityKeyService = "offline_billing_integrity_key"

// IntegrityKeySize is the length, in bytes, of a freshly generated
// signing secret.
const IntegrityKeySize = 32

// MemoryKeystore is an in-process Keystore used for tests and for hosts
// without a native secure-storage binding.
type MemoryKeystore struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryKeystore returns an empty MemoryKeystore.
func NewMemoryKeystore() *MemoryKeystore {
	return &MemoryKeystore{values: make(map[string][]byte)}
}

// Get returns the stored value for service, if any.
func (k *MemoryKeystore) Get(service string) ([]byte, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.values[service]
	return v, ok, nil
}

// Set stores value under service, overwriting any prior value.
func (k *MemoryKeystore) Set(service string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	k.values[service] = cp
	return nil
}

// EnsureIntegrityKey fetches the signing secret from ks, generating and
// persisting a fresh random one on first use.
func EnsureIntegrityKey(ks Keystore) ([]byte, error) {
	if existing, ok, err := ks.Get(OfflineBillingIntegrityKeyService); err != nil {
		return nil, err
	} else if ok && len(existing) == IntegrityKeySize {
		return existing, nil
	}

	key := make([]byte, IntegrityKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("keystore: generate integrity key: %w", err)
	}
	if err := ks.Set(OfflineBillingIntegrityKeyService, key); err != nil {
		return nil, fmt.Errorf("keystore: persist integrity key: %w", err)
	}
	return key, nil
}
