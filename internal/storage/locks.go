package storage

import (
	"hash/fnv"
	"sync"
)

// keyLockStripes bounds memory: identity keys hash onto a fixed set of
// mutexes instead of one mutex per key ever seen.
const keyLockStripes = 256

// KeyedLock serializes the find/classify/persist sequence per identity key
// so concurrent receipts of the same alert never lose updates. Keys on
// different stripes proceed in parallel.
type KeyedLock struct {
	stripes [keyLockStripes]sync.Mutex
}

// NewKeyedLock creates a KeyedLock.
func NewKeyedLock() *KeyedLock {
	return &KeyedLock{}
}

// KeyedLockHandle is a held or holdable lock for one identity key.
type KeyedLockHandle struct {
	mu *sync.Mutex
}

// Handle returns the lock handle for an identity key.
func (l *KeyedLock) Handle(environment, resource, event string) *KeyedLockHandle {
	h := fnv.New32a()
	h.Write([]byte(environment))
	h.Write([]byte{0})
	h.Write([]byte(resource))
	h.Write([]byte{0})
	h.Write([]byte(event))
	return &KeyedLockHandle{mu: &l.stripes[h.Sum32()%keyLockStripes]}
}

// Lock acquires the key's serialization point.
func (h *KeyedLockHandle) Lock() {
	h.mu.Lock()
}

// Unlock releases the key's serialization point.
func (h *KeyedLockHandle) Unlock() {
	h.mu.Unlock()
}
