package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

// DealLocker serializes mutations per deal. Each deal gets its own mutex,
// created on first use and dropped once no goroutine holds or waits on it.
type DealLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*dealLock
}

type dealLock struct {
	mu   sync.Mutex
	refs int
}

// NewDealLocker creates an empty DealLocker
func NewDealLocker() *DealLocker {
	return &DealLocker{locks: make(map[uuid.UUID]*dealLock)}
}

// Lock blocks until the deal's lock is held and returns the release function
func (l *DealLocker) Lock(dealID uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[dealID]
	if !ok {
		lock = &dealLock{}
		l.locks[dealID] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, dealID)
		}
		l.mu.Unlock()
	}
}

// WithDeal runs fn while holding the deal's lock
func (l *DealLocker) WithDeal(dealID uuid.UUID, fn func() error) error {
	unlock := l.Lock(dealID)
	defer unlock()
	return fn()
}

// Held returns the number of deals currently locked or awaited
func (l *DealLocker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
