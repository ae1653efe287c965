package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/erp/stocksync/internal/domain/integration"
)

// FileRunLocker holds an exclusive advisory lock on a file for the duration
// of a run. The kernel releases it if the process dies.
type FileRunLocker struct {
	path string
}

// NewFileRunLocker creates a locker on path, creating its directory if needed
func NewFileRunLocker(path string) (*FileRunLocker, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create lock directory: %w", err)
		}
	}
	return &FileRunLocker{path: path}, nil
}

// TryLock implements integration.RunLocker
func (l *FileRunLocker) TryLock(_ context.Context) (func(), error) {
	fl := flock.New(l.path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", l.path, err)
	}
	if !locked {
		return nil, integration.ErrSyncInProgress
	}
	return func() { _ = fl.Unlock() }, nil
}

var _ integration.RunLocker = (*FileRunLocker)(nil)
