package cache

import (
	"errors"
	"fmt"
)

// ErrStorage matches every *StorageError with errors.Is.
var ErrStorage = errors.New("cache storage error")

// StorageError reports a failed filesystem operation of a DiskCache.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("cache %s %s", e.Op, e.Path)
	}
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// errOutsideRoot is wrapped by StorageError when a path escapes the cache root.
var errOutsideRoot = errors.New("path does not live under the cache root")

func storageErr(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}
