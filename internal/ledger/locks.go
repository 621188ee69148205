package ledger

import "sync"

type userLock struct {
	sync.Mutex
	holders int
}

// userLocks hands out one mutex per user id. An entry lives only while someone
// holds or waits on it.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[string]*userLock)}
}

// lock acquires the user's mutex and returns its release func.
func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	m, ok := l.locks[userID]
	if !ok {
		m = &userLock{}
		l.locks[userID] = m
	}
	m.holders++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.holders--
		if m.holders == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
