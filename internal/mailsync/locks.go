package mailsync

import (
	"context"
	"sync"
)

// AccountLocks hands out one lease per account at a time
type AccountLocks struct {
	mu     sync.Mutex
	leases map[int64]chan struct{}
}

// NewAccountLocks creates an empty lock table
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{leases: make(map[int64]chan struct{})}
}

// Acquire waits for the account lease
func (l *AccountLocks) Acquire(ctx context.Context, accountID int64) (func(), error) {
	for {
		release, held := l.TryAcquire(accountID)
		if release != nil {
			return release, nil
		}

		select {
		case <-held:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryAcquire takes the lease if it is free. When it is not, the returned
// channel closes once the current holder releases it.
func (l *AccountLocks) TryAcquire(accountID int64) (release func(), held <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ch, busy := l.leases[accountID]; busy {
		return nil, ch
	}

	ch := make(chan struct{})
	l.leases[accountID] = ch

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.leases, accountID)
			l.mu.Unlock()
			close(ch)
		})
	}, nil
}

// Busy reports whether a lease is held for the account
func (l *AccountLocks) Busy(accountID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, busy := l.leases[accountID]
	return busy
}
