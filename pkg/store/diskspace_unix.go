//go:build !windows

package store

import (
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// CheckDiskSpace verifies there is enough free space on the filesystem
// holding the database for a mutating operation. The database file may
// not exist yet (init), so the parent directory is consulted as a
// fallback.
func (s *Store) CheckDiskSpace() error {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.path, &stat); err != nil {
		if err := unix.Statfs(filepath.Dir(s.path), &stat); err != nil {
			return fmt.Errorf("store: failed to get disk stats: %w", err)
		}
	}

	available := stat.Bavail * uint64(stat.Bsize)
	if available < MinDiskSpaceBytes {
		return fmt.Errorf("%w: %d bytes available, %d required",
			ErrInsufficientDisk, available, MinDiskSpaceBytes)
	}
	return nil
}
