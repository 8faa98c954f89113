package storage

import (
	"log"
	"sync"

	"github.com/enjuguna-bit/bulksms-sub001/internal/apperrors"
)

// newDegradedEngine builds an Engine running the degraded key-value
// emulation used when the native sqlite driver cannot be loaded. The
// fallback is explicitly logged and surfaces a distinct error
// (apperrors.ErrNativeDependencyMissing) rather than silently
// succeeding for anything beyond a trivial lookup.
func newDegradedEngine(logger *log.Logger) *Engine {
	logger.Printf("WARNING: running in degraded key-value emulation; " +
		"non-trivial queries will fail")
	return &Engine{degraded: true, logger: logger, kv: newDegradedStore()}
}

// degradedStore is a trivial in-memory key-value map. It exists only so
// that Engine.Degraded() callers have somewhere to put simple
// configuration reads/writes; it never attempts to emulate SQL.
type degradedStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newDegradedStore() *degradedStore {
	return &degradedStore{values: make(map[string]string)}
}

// Get returns a trivially stored value.
func (d *degradedStore) Get(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[key]
	return v, ok
}

// Set stores a trivial value.
func (d *degradedStore) Set(key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[key] = value
}

// KV exposes the trivial key-value emulation for degraded-mode callers.
// Any caller needing real relational semantics must check Degraded()
// first and fail with apperrors.ErrNativeDependencyMissing.
func (e *Engine) KV() (get func(string) (string, bool), set func(string, string), ok bool) {
	if !e.degraded || e.kv == nil {
		return nil, nil, false
	}
	return e.kv.Get, e.kv.Set, true
}

// DegradedQuery always fails: the degraded emulation rejects all
// non-trivial queries with a distinct error kind rather than silently
// returning empty results.
func (e *Engine) DegradedQuery() error {
	if !e.degraded {
		return nil
	}
	return apperrors.ErrNativeDependencyMissing
}
