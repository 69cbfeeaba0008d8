package service

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := newKeyedMutex()
	id := uuid.New()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock(id)
			defer km.Unlock(id)
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedMutexDistinctKeysIndependent(t *testing.T) {
	km := newKeyedMutex()
	a, b := uuid.New(), uuid.New()

	km.Lock(a)

	// A second key must not be blocked by the first.
	acquired := make(chan struct{})
	go func() {
		km.Lock(b)
		close(acquired)
		km.Unlock(b)
	}()

	<-acquired
	km.Unlock(a)
}

func TestKeyedMutexDropsIdleEntries(t *testing.T) {
	km := newKeyedMutex()
	id := uuid.New()

	km.Lock(id)
	km.Unlock(id)

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.entries)
}
