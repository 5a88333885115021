package projector

import "sync"

// pathLocks serializes work per path. Entries are reference counted and
// dropped when the last holder unlocks, so the map only holds active paths.
type pathLocks struct {
	mu    sync.Mutex
	paths map[string]*pathLock
}

type pathLock struct {
	sync.Mutex
	refs int
}

func newPathLocks() *pathLocks {
	return &pathLocks{paths: make(map[string]*pathLock)}
}

// Lock blocks until path is free and returns the matching unlock
func (l *pathLocks) Lock(path string) func() {
	l.mu.Lock()
	pl, ok := l.paths[path]
	if !ok {
		pl = &pathLock{}
		l.paths[path] = pl
	}
	pl.refs++
	l.mu.Unlock()

	pl.Lock()
	return func() {
		pl.Unlock()
		l.mu.Lock()
		if pl.refs--; pl.refs == 0 {
			delete(l.paths, path)
		}
		l.mu.Unlock()
	}
}

func (l *pathLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.paths)
}
