package orchestrator

import (
	"context"
	"sync"
)

// keyLocks serializes Issue per (case, document type) within the process.
// Entries are dropped once nobody holds or waits for them.
type keyLocks struct {
	mu    sync.Mutex
	locks map[docKey]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[docKey]*keyLock)}
}

// acquire blocks until k is free or ctx ends.
func (l *keyLocks) acquire(ctx context.Context, k docKey) (release func(), err error) {
	l.mu.Lock()
	kl, ok := l.locks[k]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[k] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		return func() {
			<-kl.ch
			l.drop(k, kl)
		}, nil
	case <-ctx.Done():
		l.drop(k, kl)
		return nil, ctx.Err()
	}
}

func (l *keyLocks) drop(k docKey, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, k)
	}
}

func (l *keyLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
