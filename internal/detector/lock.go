package detector

import (
	"sync"
	"sync/atomic"
)

// ingestLock provides non-blocking lock semantics using atomic operations,
// so a second ingest for the same payer fails fast instead of queueing.
type ingestLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

// TryAcquire attempts to acquire the lock without blocking.
// Returns true if the lock was successfully acquired, false otherwise.
func (l *ingestLock) TryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

// Release releases the lock.
// Must only be called by the goroutine that successfully acquired the lock.
func (l *ingestLock) Release() {
	l.state.Store(0)
}

// lockRegistry hands out one ingestLock per payer.
type lockRegistry struct {
	mu    sync.Mutex
	locks map[int64]*ingestLock
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{locks: make(map[int64]*ingestLock)}
}

func (r *lockRegistry) forPayer(payerID int64) *ingestLock {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[payerID]
	if !ok {
		lock = &ingestLock{}
		r.locks[payerID] = lock
	}
	return lock
}
