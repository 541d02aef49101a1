package coordinator

import (
	"context"
	"sync"
)

// Locker serializes work per key. Different keys never contend and idle keys
// are released from memory once their last holder or waiter leaves.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocker builds an empty Locker.
func NewLocker() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done. The returned func releases
// the key and must be called exactly once.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	s := l.acquire(key)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

// Len reports how many keys are currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *Locker) acquire(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *Locker) release(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
