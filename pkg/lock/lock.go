package lock

import (
	"context"
	"sync"
	"time"
)

// Lock serializes destructive index operations against concurrent writers.
// Index recreation acquires the index's lock before deleting history.
type Lock interface {
	// TryLock attempts to acquire the named lock for ttl. Returns false
	// without blocking if another holder owns it.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Unlock releases the named lock if this instance holds it.
	Unlock(ctx context.Context, key string) error
}

// LocalLock is a process-local Lock for single-instance deployments and
// tests. Multi-instance deployments use RedisLock.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]time.Time
}

// NewLocalLock creates an in-process lock.
func NewLocalLock() *LocalLock {
	return &LocalLock{held: make(map[string]time.Time)}
}

var _ Lock = (*LocalLock)(nil)

func (l *LocalLock) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if expiry, ok := l.held[key]; ok && time.Now().Before(expiry) {
		return false, nil
	}
	l.held[key] = time.Now().Add(ttl)
	return true, nil
}

func (l *LocalLock) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
