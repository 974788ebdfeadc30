// Package storage defines the Backend interface for the file-management
// operations and the error kinds shared by every implementation.
package storage

import (
	"context"
	"io"
	"time"
)

// Entry is one child of a listed directory.
type Entry struct {
	Name    string
	Size    int64
	IsDir   bool
	ModTime time.Time
	// ContentType is empty for directories.
	ContentType string
}

// Usage reports the capacity of the volume holding the root.
type Usage struct {
	Total uint64
	Free  uint64
}

// Backend is the interface for filesystem backends.
// All paths are client-supplied and relative to the backend's root;
// implementations confine them before touching storage.
type Backend interface {
	// List returns the direct children of a directory. Order is whatever the
	// backend produces; callers must not rely on it.
	List(ctx context.Context, path string) ([]Entry, error)

	// Stat describes the entry at path. The root itself can be described.
	Stat(ctx context.Context, path string) (Entry, error)

	// CreateDir creates exactly one directory level. The parent must exist.
	CreateDir(ctx context.Context, path string) error

	// RemoveDir deletes a directory and everything below it.
	RemoveDir(ctx context.Context, path string) error

	// RemoveFile deletes a single file.
	RemoveFile(ctx context.Context, path string) error

	// Move renames from to to. to must not exist.
	Move(ctx context.Context, from, to string) error

	// Copy duplicates a file or a directory tree. to must not exist.
	Copy(ctx context.Context, from, to string) error

	// Upload streams body into a new file at path and returns the number of
	// bytes written. A failed upload leaves nothing behind.
	Upload(ctx context.Context, path string, body io.Reader) (int64, error)

	// Download opens a file for streaming. The caller must Close it or range
	// over its Chunks to the end.
	Download(ctx context.Context, path string) (*Download, error)

	// Usage reports capacity of the underlying volume.
	Usage(ctx context.Context) (Usage, error)

	// Type returns the backend type identifier ("local").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}
