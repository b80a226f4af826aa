// Package userlock serializes all mutating ledger, position, and order
// operations for a single user. Locks span the whole read-check-write
// sequence of an operation; cross-user work proceeds in parallel.
package userlock

import "sync"

type Keyed struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func New() *Keyed {
	return &Keyed{locks: make(map[string]*entry)}
}

// Lock acquires the mutex for userID, creating it on first use. Entries are
// reference counted so idle users do not accumulate in the map.
func (k *Keyed) Lock(userID string) {
	k.mu.Lock()
	e, ok := k.locks[userID]
	if !ok {
		e = &entry{}
		k.locks[userID] = e
	}
	e.refs++
	k.mu.Unlock()
	e.mu.Lock()
}

func (k *Keyed) Unlock(userID string) {
	k.mu.Lock()
	e, ok := k.locks[userID]
	if !ok {
		k.mu.Unlock()
		panic("userlock: unlock of unheld user lock")
	}
	e.refs--
	if e.refs == 0 {
		delete(k.locks, userID)
	}
	k.mu.Unlock()
	e.mu.Unlock()
}

// With runs fn while holding the user's lock.
func (k *Keyed) With(userID string, fn func() error) error {
	k.Lock(userID)
	defer k.Unlock(userID)
	return fn()
}
