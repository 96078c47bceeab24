package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Depth is the number of single-character shard directories above each entry.
const Depth = 3

const tempPattern = ".tmp-*"

var errNotDirectory = errors.New("exists but is not a directory")

// DiskCache implements GenericCache on a local directory tree:
//
//	root/<h0>/<h1>/<h2>/<sha256 hex of key>
//
// Entry files hold the raw payload and their modification time is the
// entry timestamp. Writes go through a temp file in the shard directory
// and a rename, so readers see either the old or the new payload.
type DiskCache struct {
	root string
	now  func() time.Time
}

// NewDisk creates a disk cache rooted at root, creating the directory if needed.
// An empty root selects DefaultRoot().
func NewDisk(root string) (*DiskCache, error) {
	if root == "" {
		root = DefaultRoot()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, storageErr("resolve root", root, err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, storageErr("create root", abs, err)
	}

	// Resolve symlinks once so containment checks compare real paths
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, storageErr("resolve root", abs, err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, storageErr("stat root", resolved, err)
	}
	if !info.IsDir() {
		return nil, storageErr("create root", resolved, errNotDirectory)
	}

	logrus.Debugf("Using cache root %s", resolved)
	return &DiskCache{
		root: resolved,
		now:  time.Now,
	}, nil
}

// Root returns the resolved cache directory.
func (d *DiskCache) Root() string {
	return d.root
}

// Path returns the file that holds the entry for key.
func (d *DiskCache) Path(key string) string {
	sum := sha256.Sum256([]byte(key))
	digest := hex.EncodeToString(sum[:])

	parts := make([]string, 0, Depth+2)
	parts = append(parts, d.root)
	for _, c := range digest[:Depth] {
		parts = append(parts, string(c))
	}
	parts = append(parts, digest)

	return filepath.Join(parts...)
}

// Get reads the payload stored for key
func (d *DiskCache) Get(key string) ([]byte, bool, error) {
	path := d.Path(key)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, storageErr("stat", path, err)
	}
	if info.IsDir() {
		return nil, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		// Removed between stat and read
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, storageErr("read", path, err)
	}

	return data, true, nil
}

// LastModified returns the modification time of the entry file for key
func (d *DiskCache) LastModified(key string) (time.Time, bool, error) {
	path := d.Path(key)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, storageErr("stat", path, err)
	}
	if info.IsDir() {
		return time.Time{}, false, nil
	}

	return info.ModTime(), true, nil
}

// Set stores value for key. The payload is fully written and synced to a
// temp file next to the target before being renamed over it.
func (d *DiskCache) Set(key string, value []byte) error {
	path := d.Path(key)
	if err := d.checkPath("set", path); err != nil {
		return err
	}

	dir, err := d.ensureShard(path)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return storageErr("create temp", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			if err := os.Remove(tmpName); err != nil && !errors.Is(err, fs.ErrNotExist) {
				logrus.Warnf("Failed to remove temp cache file %s: %v", tmpName, err)
			}
		}
	}()

	if err := writeAll(tmp, value); err != nil {
		return storageErr("write", tmpName, err)
	}

	modTime := d.nextModTime(path)
	if err := os.Chtimes(tmpName, modTime, modTime); err != nil {
		return storageErr("set time", tmpName, err)
	}

	// os.Rename replaces an existing target in one step on every supported platform
	if err := os.Rename(tmpName, path); err != nil {
		return storageErr("rename", path, err)
	}
	committed = true

	logrus.Debugf("Cached %d bytes for key at %s", len(value), path)
	return nil
}

// Remove deletes the entry for key if it exists
func (d *DiskCache) Remove(key string) error {
	path := d.Path(key)
	if err := d.checkPath("remove", path); err != nil {
		return err
	}

	// Resolve the shard so a symlinked level cannot point the removal outside root
	dir := filepath.Dir(path)
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return storageErr("resolve shard", dir, err)
	}
	if !d.within(resolved) {
		return storageErr("remove", path, fmt.Errorf("%w: %s", errOutsideRoot, resolved))
	}

	if err := os.Remove(filepath.Join(resolved, filepath.Base(path))); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return storageErr("remove", path, err)
	}

	logrus.Debugf("Removed cache entry %s", path)
	return nil
}

func writeAll(f *os.File, value []byte) error {
	if _, err := f.Write(value); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Chmod(0644); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// nextModTime returns the timestamp for a new write of path, strictly after
// the current entry's timestamp even when the clock has not advanced.
func (d *DiskCache) nextModTime(path string) time.Time {
	now := d.now()
	if info, err := os.Stat(path); err == nil && !now.After(info.ModTime()) {
		return info.ModTime().Add(time.Microsecond)
	}
	return now
}

// ensureShard creates the shard directories of path one level at a time,
// refusing any level that is not a directory or that resolves outside root.
func (d *DiskCache) ensureShard(path string) (string, error) {
	rel, err := filepath.Rel(d.root, filepath.Dir(path))
	if err != nil {
		return "", storageErr("create shard", path, err)
	}

	dir := d.root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, part)

		if err := os.Mkdir(dir, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
			return "", storageErr("create shard", dir, err)
		}

		resolved, err := filepath.EvalSymlinks(dir)
		if err != nil {
			return "", storageErr("resolve shard", dir, err)
		}
		if !d.within(resolved) {
			return "", storageErr("create shard", dir, fmt.Errorf("%w: %s", errOutsideRoot, resolved))
		}

		info, err := os.Stat(resolved)
		if err != nil {
			return "", storageErr("stat shard", dir, err)
		}
		if !info.IsDir() {
			return "", storageErr("create shard", dir, errNotDirectory)
		}
	}

	return dir, nil
}

func (d *DiskCache) checkPath(op, path string) error {
	if !d.within(path) {
		return storageErr(op, path, errOutsideRoot)
	}
	return nil
}

// within reports whether path is strictly below the cache root
func (d *DiskCache) within(path string) bool {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	if rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
