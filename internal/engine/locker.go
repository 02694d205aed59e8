package engine

import "sync"

// keyedLocker serializes work per conversation id. Distinct ids proceed in
// parallel; entries are reference counted so the map does not grow with the
// total number of conversations ever seen.
type keyedLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocker() *keyedLocker {
	return &keyedLocker{locks: make(map[string]*lockEntry)}
}

func (l *keyedLocker) lock(id string) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &lockEntry{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

func (l *keyedLocker) unlock(id string) {
	l.mu.Lock()
	entry := l.locks[id]
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
