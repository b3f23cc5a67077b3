// Package ownerlock provides in-process advisory locks keyed by owner id.
// Locks are not persisted; conditional store updates keep a restart during
// a mutation safe.
package ownerlock

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/lead-intel/internal/apperr"
)

// DefaultWait is how long Acquire waits when no wait is configured.
const DefaultWait = 5 * time.Second

type entry struct {
	ch   chan struct{}
	refs int
}

// Locker hands out one lock per owner id.
type Locker struct {
	wait time.Duration

	mu      sync.Mutex
	entries map[int64]*entry
}

// New returns a Locker that waits up to wait for a held lock.
func New(wait time.Duration) *Locker {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Locker{wait: wait, entries: make(map[int64]*entry)}
}

// Acquire locks ownerID, waiting up to the configured duration. It fails
// with a concurrent modification error when the wait runs out, or with
// ctx's error when ctx ends first. The returned func releases the lock and
// is safe to call more than once.
func (l *Locker) Acquire(ctx context.Context, ownerID int64) (func(), error) {
	e := l.ref(ownerID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
	case <-timer.C:
		l.unref(ownerID)
		return nil, apperr.ConcurrentModification(ownerID)
	case <-ctx.Done():
		l.unref(ownerID)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(ownerID)
		})
	}, nil
}

// TryAcquire locks ownerID only if it is free.
func (l *Locker) TryAcquire(ownerID int64) (func(), bool) {
	e := l.ref(ownerID)
	select {
	case e.ch <- struct{}{}:
	default:
		l.unref(ownerID)
		return nil, false
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.unref(ownerID)
		})
	}, true
}

// Held returns the number of owners with a held or awaited lock.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Locker) ref(id int64) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	return e
}

func (l *Locker) unref(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[id]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}
