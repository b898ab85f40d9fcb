package orchestrator

import "sync"

// keyLock provides a mutex per stack key. The deploy and destroy paths hold the
// key's lock across their read-guard-then-write sequence, closing the race where
// two concurrent requests for the same key both observe a passable state and
// both trigger remote operations.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the given key, creating it on first use.
// Locks are never removed; the key space is bounded by the number of
// (tenant, environment) pairs the process has touched.
func (k *keyLock) Lock(key string) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()
	m.Lock()
}

// Unlock releases the mutex for the given key.
func (k *keyLock) Unlock(key string) {
	k.mu.Lock()
	m := k.locks[key]
	k.mu.Unlock()
	if m != nil {
		m.Unlock()
	}
}
