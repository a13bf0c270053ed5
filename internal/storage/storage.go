// Package storage persists assets on the local filesystem.
// All coordination state is the filesystem itself: publication is a
// single atomic rename, so concurrent readers never observe a partially
// written file and concurrent writes to the same path are a
// last-writer-wins race with no torn state.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrTooLarge is returned by WriteAtomic when the stream exceeds the
// size cap. The temp file is already cleaned up when this is returned.
var ErrTooLarge = errors.New("stream exceeds maximum allowed size")

// LocalStorage stores assets under a base directory on the local
// filesystem. Paths passed to its methods are relative to that base.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a LocalStorage rooted at basePath.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{
		basePath: basePath,
	}
}

func (s *LocalStorage) fullPath(relPath string) string {
	return filepath.Join(s.basePath, relPath)
}

// WriteAtomic streams r into a temporary file next to relPath and, on
// success, renames it over relPath. Returns the number of bytes written.
//
// Bytes are counted while streaming; the moment the count exceeds
// maxSize the copy is aborted, the temp file removed and ErrTooLarge
// returned, so an oversized stream is never fully consumed or buffered.
// Any read or write error mid-copy likewise removes the temp file, so a
// client closing the connection never leaves an orphaned temp file and a
// crash mid-write never corrupts a previously published asset.
func (s *LocalStorage) WriteAtomic(relPath string, r io.Reader, maxSize int64) (int64, error) {
	full := s.fullPath(relPath)
	dir := filepath.Dir(full)

	// MkdirAll treats already-existing directories as success, so
	// concurrent first-uploads into a brand-new course cannot race-fail
	// each other on directory creation.
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	// Temp file lives in the target directory so the final rename stays
	// on one filesystem and is a single atomic operation.
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	// Reading one byte past the cap distinguishes "exactly maxSize"
	// from "too large" without consuming the rest of the stream.
	written, err := io.Copy(tmp, io.LimitReader(r, maxSize+1))
	if err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to write stream: %w", err)
	}
	if written > maxSize {
		cleanup()
		return 0, ErrTooLarge
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to publish file: %w", err)
	}

	return written, nil
}

// Open opens a stored asset for reading.
func (s *LocalStorage) Open(relPath string) (io.ReadCloser, error) {
	return os.Open(s.fullPath(relPath))
}

// OpenFile opens a stored asset as *os.File for use with
// http.ServeContent, which needs Seek for range requests.
func (s *LocalStorage) OpenFile(relPath string) (*os.File, error) {
	return os.Open(s.fullPath(relPath))
}

// Remove deletes a single stored asset.
func (s *LocalStorage) Remove(relPath string) error {
	return os.Remove(s.fullPath(relPath))
}

// RemoveDir deletes an entity's directory subtree and everything below
// it. A missing directory is not an error: cascade deletion of an
// entity that never had assets is a no-op.
func (s *LocalStorage) RemoveDir(relDir string) error {
	if relDir == "" || relDir == "." {
		return fmt.Errorf("refusing to remove storage root")
	}
	return os.RemoveAll(s.fullPath(relDir))
}
