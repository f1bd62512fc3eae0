package repository

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an advisory flock on f. Locks taken through different open
// file descriptions conflict even inside one process, so the same rules hold
// between goroutines and between processes sharing the ledger directory.
func lockFile(f *os.File, how int) error {
	for {
		err := unix.Flock(int(f.Fd()), how)
		if err == nil {
			return nil
		}
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return fmt.Errorf("%w: flock %s: %v", ErrStoreUnavailable, f.Name(), err)
	}
}

func unlockFile(f *os.File) error {
	return lockFile(f, unix.LOCK_UN)
}
