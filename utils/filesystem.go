package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// GetDiskUsageStats walks the tree rooted at path and reports total bytes
// used by regular files and the number of inodes (files and directories,
// excluding the root itself) found under it.
func GetDiskUsageStats(path string) (uint64, uint64, error) {
	if err := IsDirectory(path); err != nil {
		return 0, 0, err
	}

	var bytes, inodes uint64
	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == path {
			return nil
		}
		inodes++
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			bytes += uint64(info.Size())
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("walking %q: %w", path, err)
	}
	return bytes, inodes, nil
}

// IsDirectory returns nil if path exists and is a directory, and an error
// otherwise.
func IsDirectory(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%q is not a directory", path)
	}
	return nil
}
