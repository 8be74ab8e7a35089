package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the space taken by a set of files.
type Usage struct {
	Bytes int64 `json:"bytes"`
	Files int   `json:"files"`
}

// DiskUsage sums the regular files under each path. A path may be a file or a
// directory; missing and empty paths count as zero.
func DiskUsage(paths ...string) (Usage, error) {
	var u Usage
	for _, p := range paths {
		if p == "" {
			continue
		}
		err := filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == p && errors.Is(err, os.ErrNotExist) {
					return filepath.SkipAll
				}
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			if err != nil {
				return err
			}
			u.Bytes += info.Size()
			u.Files++
			return nil
		})
		if err != nil {
			return Usage{}, err
		}
	}
	return u, nil
}
