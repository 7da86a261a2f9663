// Package keymutex provides mutual exclusion keyed by an arbitrary
// comparable value, used to serialize chain appends per tenant without
// blocking writers of other tenants.
package keymutex

import "sync"

// KeyMutex hands out one mutex per key. Mutexes are created lazily and kept
// for the life of the registry; the key space (tenants) is small and stable,
// so no eviction is needed.
type KeyMutex[K comparable] struct {
	mu    sync.Mutex
	locks map[K]*sync.Mutex
}

func New[K comparable]() *KeyMutex[K] {
	return &KeyMutex[K]{locks: make(map[K]*sync.Mutex)}
}

// Lock acquires the mutex for key, blocking while another holder owns it.
func (m *KeyMutex[K]) Lock(key K) {
	m.lockFor(key).Lock()
}

// Unlock releases the mutex for key. Must follow a matching Lock.
func (m *KeyMutex[K]) Unlock(key K) {
	m.lockFor(key).Unlock()
}

func (m *KeyMutex[K]) lockFor(key K) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	return lock
}
