package services

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type accountLock struct {
	ch   chan struct{}
	refs int
}

// accountLocks serializes ledger units per account. Entries are dropped once nobody holds or waits
// on them.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*accountLock)}
}

func (l *accountLocks) acquire(ctx context.Context, accountID string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[accountID]
	if !ok {
		lk = &accountLock{ch: make(chan struct{}, 1)}
		l.locks[accountID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case lk.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-lk.ch
				l.release(accountID, lk)
			})
		}, nil
	case <-ctx.Done():
		l.release(accountID, lk)
		return nil, fmt.Errorf("%w: account %s: %v", ErrLockTimeout, accountID, ctx.Err())
	}
}

func (l *accountLocks) release(accountID string, lk *accountLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, accountID)
	}
}
