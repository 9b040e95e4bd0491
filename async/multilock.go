package async

import (
	lock "github.com/atedja/go-multilock"
)

// Multilock is a collection of named locks acquired together. Callers
// serializing on one entity pass a single key; callers that need several
// entities at once pass them all and acquisition is deadlock-free.
type Multilock struct {
	lock *lock.Lock
}

// NewMultilock returns a multilock for the given keys.
func NewMultilock(keys ...string) *Multilock {
	return &Multilock{lock: lock.New(keys...)}
}

// Lock blocks until every key is held.
func (m *Multilock) Lock() {
	m.lock.Lock()
}

// Unlock releases every key.
func (m *Multilock) Unlock() {
	m.lock.Unlock()
}
