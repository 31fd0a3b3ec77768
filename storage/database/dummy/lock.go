package dummydb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/feedback/core/feedback"
)

// Locker is an in-process feedback.Locker.
type Locker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	wait time.Duration
}

var _ feedback.Locker = (*Locker)(nil)

func NewLocker(wait time.Duration) *Locker {
	return &Locker{held: make(map[string]chan struct{}), wait: wait}
}

func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	for {
		l.mu.Lock()
		ch, busy := l.held[key]
		if !busy {
			release := make(chan struct{})
			l.held[key] = release
			l.mu.Unlock()

			var once sync.Once
			return func() {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(release)
				})
			}, nil
		}
		l.mu.Unlock()

		select {
		case <-ch:
		case <-timer.C:
			return nil, feedback.ErrLockTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
