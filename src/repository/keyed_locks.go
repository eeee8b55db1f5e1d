package repository

import "sync"

// keyedLocks provides a process-wide mutual-exclusion lock per order id.
// The lock is held for the full duration of one logical mutation of the
// order, so no two units of work for the same id may interleave, even
// while one of them is waiting on an external collaborator.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the lock for key is held and returns the unlock
// function. Lock entries are never removed; the set of live order ids is
// bounded by the orders the process has touched.
func (k *keyedLocks) Acquire(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// orderLocks is shared by every OrderRepository instance so that
// repositories created independently still serialize on the same order.
var orderLocks = newKeyedLocks()
