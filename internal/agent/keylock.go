package agent

import "sync"

// KeyedLock serializes work per key. The webhook handler processes events for
// different phones concurrently, but two events for the same phone must not
// interleave their read-modify-write on the session row; the database CAS
// would reject one of them and the user would see a dropped reply. Entries
// are reference counted and removed when the last holder unlocks, so the map
// does not grow with the number of phones ever seen.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedLock creates an empty KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{entries: make(map[string]*lockEntry)}
}

// Lock acquires the lock for key, blocking until it is available. The
// returned function releases it and must be called exactly once.
func (k *KeyedLock) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()

		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
