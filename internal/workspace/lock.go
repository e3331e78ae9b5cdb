package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// lockFileName is the advisory lock file kept inside the tool clone.
const lockFileName = ".autofix.lock"

// Lock is an exclusive advisory lock on a workspace directory. One process
// holds it for the whole batch so concurrent invocations never share the
// working tree.
type Lock struct {
	file *os.File
	path string
}

// AcquireLock takes the workspace lock, blocking until it is held. A zero
// timeout blocks indefinitely; otherwise acquisition polls and gives up
// after the timeout.
func AcquireLock(dir string, timeout time.Duration) (*Lock, error) {
	path := filepath.Join(dir, lockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}

	if timeout <= 0 {
		if err := flockExclusive(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		return &Lock{file: f, path: path}, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, err := flockTry(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}
		if ok {
			return &Lock{file: f, path: path}, nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("lock %s: timed out after %s", path, timeout)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Release drops the lock. The lock file itself is left in place.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	if err := flockUnlock(l.file); err != nil {
		l.file.Close()
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	err := l.file.Close()
	l.file = nil
	return err
}
