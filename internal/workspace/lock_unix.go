//go:build !windows
// +build !windows

package workspace

import (
	"os"
	"syscall"
)

// flockExclusive acquires an exclusive advisory lock, blocking until held.
func flockExclusive(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_EX)
}

// flockTry attempts the lock without blocking. Returns false when another
// process holds it.
func flockTry(f *os.File) (bool, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == syscall.EWOULDBLOCK {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// flockUnlock releases the lock.
func flockUnlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}
