package service

import (
	"sync"

	"github.com/google/uuid"
)

// keyedMutex serializes work per key without a global lock: distinct trips
// (or vehicles) proceed in parallel, while all processing for one key is
// strictly ordered. Entries are reference-counted and dropped when idle.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[uuid.UUID]*keyedEntry)}
}

func (k *keyedMutex) Lock(id uuid.UUID) {
	k.mu.Lock()
	e, ok := k.entries[id]
	if !ok {
		e = &keyedEntry{}
		k.entries[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
}

func (k *keyedMutex) Unlock(id uuid.UUID) {
	k.mu.Lock()
	e := k.entries[id]
	e.refs--
	if e.refs == 0 {
		delete(k.entries, id)
	}
	k.mu.Unlock()

	e.mu.Unlock()
}
