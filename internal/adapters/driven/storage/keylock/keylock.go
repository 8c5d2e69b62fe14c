// Package keylock provides mutual exclusion per string key.
//
// Locks for different keys never contend. Entries are reference counted
// and removed once no goroutine holds or waits for them, so the table
// stays proportional to the number of keys in flight.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Locker hands out per-key locks. The zero value is ready to use.
type Locker struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates a Locker.
func New() *Locker {
	return &Locker{entries: make(map[string]*entry)}
}

// Lock blocks until the lock for key is held and returns its release func.
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*entry)
	}
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()

			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.entries, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently locked or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
