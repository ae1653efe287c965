package lock

import (
	"context"
	"sync"

	"github.com/erp/stocksync/internal/domain/integration"
)

// InMemoryRunLocker only excludes runs within this process
type InMemoryRunLocker struct {
	mu sync.Mutex
}

// NewInMemoryRunLocker creates an unlocked in-process locker
func NewInMemoryRunLocker() *InMemoryRunLocker {
	return &InMemoryRunLocker{}
}

// TryLock implements integration.RunLocker
func (l *InMemoryRunLocker) TryLock(_ context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, integration.ErrSyncInProgress
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

var _ integration.RunLocker = (*InMemoryRunLocker)(nil)
