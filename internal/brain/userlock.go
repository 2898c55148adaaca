package brain

import "sync"

// userLocks serializes turns per user. Entries are reference counted and
// removed when no turn holds or waits on them, so the table cannot grow
// with the number of users ever seen.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	sem  chan struct{}
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// acquire blocks until the user's lock is held and returns the release func.
func (ul *userLocks) acquire(userID string) func() {
	ul.mu.Lock()
	l, ok := ul.locks[userID]
	if !ok {
		l = &userLock{sem: make(chan struct{}, 1)}
		ul.locks[userID] = l
	}
	l.refs++
	ul.mu.Unlock()

	l.sem <- struct{}{}

	return func() {
		<-l.sem
		ul.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(ul.locks, userID)
		}
		ul.mu.Unlock()
	}
}

// size returns the number of tracked keys (tests).
func (ul *userLocks) size() int {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	return len(ul.locks)
}
