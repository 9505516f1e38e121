// Package lock serializes mutations of one study group across goroutines and,
// with Redis, across server processes.
//
// Locks only order writers. Every mutation still goes through the store's
// version check, so a lock that expires mid-write cannot corrupt a group.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a lock could not be acquired within the wait limit.
var ErrTimeout = errors.New("lock: timed out waiting for lock")

// Unlock releases a held lock. Calling it more than once is safe.
type Unlock func()

// Locker acquires exclusive locks by key.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// KeyedMutex is an in-process Locker. Entries are reference counted and dropped
// once no goroutine holds or waits on them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
	wait  time.Duration
}

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex. Lock gives up with ErrTimeout after
// wait; zero waits as long as the context allows.
func NewKeyedMutex(wait time.Duration) *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry), wait: wait}
}

// Lock blocks until key is free, the wait limit passes or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, key string) (Unlock, error) {
	var expired <-chan time.Time
	if k.wait > 0 {
		t := time.NewTimer(k.wait)
		defer t.Stop()
		expired = t.C
	}

	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{sem: make(chan struct{}, 1)}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	case <-expired:
		k.release(key, e)
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			k.release(key, e)
		})
	}, nil
}

func (k *KeyedMutex) release(key string, e *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.locks, key)
	}
}

// Len returns the number of keys currently held or waited on.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
