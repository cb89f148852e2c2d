package common

import (
	"sync"
)

type refMutex struct {
	sync.Mutex
	refs int
}

// KeyMutex hands out one mutex per key. The buffer pool uses it so that only one goroutine loads a given page
// from disk at a time while the pool-wide lock stays free for other pages. A key's mutex is dropped from the map
// as soon as nobody holds or waits for it, so the map does not grow with every key ever locked.
type KeyMutex[T comparable] struct {
	mu      sync.Mutex
	mutexes map[T]*refMutex
}

// Lock acquires a lock for the given key and returns a releaser function. Caller should call releaser after
// it is done with the lock.
func (m *KeyMutex[T]) Lock(key T) func() {
	m.mu.Lock()
	if m.mutexes == nil {
		m.mutexes = make(map[T]*refMutex)
	}

	mtx, ok := m.mutexes[key]
	if !ok {
		mtx = &refMutex{}
		m.mutexes[key] = mtx
	}
	mtx.refs++
	m.mu.Unlock()

	mtx.Lock()
	return func() {
		mtx.Unlock()

		m.mu.Lock()
		mtx.refs--
		if mtx.refs == 0 {
			delete(m.mutexes, key)
		}
		m.mu.Unlock()
	}
}

// Len returns the number of keys that are currently locked or waited for.
func (m *KeyMutex[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mutexes)
}
