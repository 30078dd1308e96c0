//go:build unix

package secret

import (
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

func allocate(size int) ([]byte, bool, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, false, fmt.Errorf("secret: mmap: %w", err)
	}
	// mlock is bounded by RLIMIT_MEMLOCK; an unlocked region is still
	// zeroed on close.
	locked := unix.Mlock(data) == nil
	excludeFromDump(data)
	return data, locked, nil
}

func release(data []byte, locked bool) error {
	var err error
	if locked {
		err = multierr.Append(err, wrap("munlock", unix.Munlock(data)))
	}
	return multierr.Append(err, wrap("munmap", unix.Munmap(data)))
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("secret: %s: %w", op, err)
}
