// Package keylock provides mutual exclusion keyed by string.
//
// Used to serialize syncs of the same package and geocode lookups of the
// same normalized location; different keys proceed in parallel.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *KeyLock {
	return &KeyLock{locks: map[string]*entry{}}
}

// Lock blocks until the key is exclusively held and returns the unlock
// function. Entries are reference-counted and removed once the last
// holder/waiter is gone, so the map does not grow with the key space.
func (k *KeyLock) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
