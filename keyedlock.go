package costbasis

import (
	"context"
	"sync"
)

// KeyedLock serializes allocations per asset key. Both the in-memory store
// and the sqlite store use it to guarantee that two disposals of the same
// (owner, token, chain) never interleave their select-then-mutate cycles.
type KeyedLock struct {
	mu    sync.Mutex
	locks map[AssetKey]chan struct{}
}

func NewKeyedLock() *KeyedLock {
	return &KeyedLock{locks: make(map[AssetKey]chan struct{})}
}

func (k *KeyedLock) lock(key AssetKey) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = make(chan struct{}, 1)
		k.locks[key] = l
	}
	return l
}

// Acquire takes the exclusive lock for key, blocking until it is available
// or ctx is done. The returned release function must be called exactly once.
func (k *KeyedLock) Acquire(ctx context.Context, key AssetKey) (release func(), err error) {
	l := k.lock(key)
	select {
	case l <- struct{}{}:
		return func() { <-l }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the lock only if it is immediately available.
func (k *KeyedLock) TryAcquire(key AssetKey) (release func(), ok bool) {
	l := k.lock(key)
	select {
	case l <- struct{}{}:
		return func() { <-l }, true
	default:
		return nil, false
	}
}
