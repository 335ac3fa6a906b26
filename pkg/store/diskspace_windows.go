//go:build windows

package store

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/windows"
)

// CheckDiskSpace verifies there is enough free space on the volume
// holding the database for a mutating operation. The database file may
// not exist yet (init), so the parent directory is consulted as a
// fallback.
func (s *Store) CheckDiskSpace() error {
	path := s.path
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = filepath.Dir(path)
	}

	pathPtr, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return fmt.Errorf("store: failed to convert path: %w", err)
	}

	var freeBytesAvailable, totalBytes, totalFreeBytes uint64
	if err := windows.GetDiskFreeSpaceEx(pathPtr, &freeBytesAvailable, &totalBytes, &totalFreeBytes); err != nil {
		return fmt.Errorf("store: failed to get disk stats: %w", err)
	}

	if freeBytesAvailable < MinDiskSpaceBytes {
		return fmt.Errorf("%w: %d bytes available, %d required",
			ErrInsufficientDisk, freeBytesAvailable, MinDiskSpaceBytes)
	}
	return nil
}
