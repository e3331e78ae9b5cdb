//go:build windows
// +build windows

package workspace

import "os"

// Advisory file locks are not available on Windows; the lock file still gets
// created so concurrent runs are at least visible.
func flockExclusive(f *os.File) error {
	return nil
}

func flockTry(f *os.File) (bool, error) {
	return true, nil
}

func flockUnlock(f *os.File) error {
	return nil
}
