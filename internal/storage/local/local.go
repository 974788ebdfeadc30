// Package local provides the local filesystem storage backend.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fruitsalade/fileroot/internal/pathutil"
	"github.com/fruitsalade/fileroot/internal/storage"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath string `json:"root_path"`
}

// LocalBackend implements storage.Backend on a directory tree. Every path is
// confined to the root before any filesystem call is made.
type LocalBackend struct {
	resolver *pathutil.Resolver
}

var _ storage.Backend = (*LocalBackend)(nil)

// New creates a new local filesystem backend. The root must already exist and
// be a directory.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	resolver, err := pathutil.NewResolver(cfg.RootPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(resolver.Root())
	if err != nil {
		return nil, fmt.Errorf("stat root path %s: %w", resolver.Root(), err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", resolver.Root())
	}

	return &LocalBackend{resolver: resolver}, nil
}

// Root returns the absolute root directory.
func (b *LocalBackend) Root() string {
	return b.resolver.Root()
}

// List returns the direct children of the directory at path. A failure to
// read any single entry fails the whole listing.
func (b *LocalBackend) List(ctx context.Context, path string) ([]storage.Entry, error) {
	const op = "list"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := b.resolver.Resolve(path)
	if err != nil {
		return nil, fail(op, path, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fail(op, path, classify(err))
	}
	if !info.IsDir() {
		return nil, fail(op, path, storage.ErrNotADirectory)
	}

	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fail(op, path, fmt.Errorf("read directory: %w", err))
	}

	entries := make([]storage.Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			return nil, fail(op, path, fmt.Errorf("read metadata of %s: %w", de.Name(), err))
		}
		entry := storage.Entry{
			Name:    de.Name(),
			Size:    info.Size(),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		}
		if !entry.IsDir {
			entry.ContentType = storage.ContentType(de.Name())
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Stat describes the entry at path, following symlinks.
func (b *LocalBackend) Stat(ctx context.Context, path string) (storage.Entry, error) {
	const op = "stat"
	if err := ctx.Err(); err != nil {
		return storage.Entry{}, err
	}

	p, err := b.resolver.Resolve(path)
	if err != nil {
		return storage.Entry{}, fail(op, path, err)
	}
	info, err := os.Stat(p)
	if err != nil {
		return storage.Entry{}, fail(op, path, classify(err))
	}

	entry := storage.Entry{
		Name:    filepath.Base(p),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime(),
	}
	if !entry.IsDir {
		entry.ContentType = storage.ContentType(entry.Name)
	}
	return entry, nil
}

// CreateDir creates a single directory. Missing parents are not created.
func (b *LocalBackend) CreateDir(ctx context.Context, path string) error {
	const op = "mkdir"
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := b.resolver.ResolveMutable(path)
	if err != nil {
		return fail(op, path, err)
	}
	if err := mustNotExist(p); err != nil {
		return fail(op, path, err)
	}

	// Mkdir itself fails with EEXIST if a concurrent request got here first.
	if err := os.Mkdir(p, dirPerm); err != nil {
		return fail(op, path, classify(err))
	}
	return nil
}

// RemoveDir deletes a directory and its entire contents. A symlink is not a
// directory here, even when it points at one.
func (b *LocalBackend) RemoveDir(ctx context.Context, path string) error {
	const op = "rmdir"
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := b.resolver.ResolveMutable(path)
	if err != nil {
		return fail(op, path, err)
	}

	info, err := os.Lstat(p)
	if err != nil {
		return fail(op, path, classify(err))
	}
	if !info.IsDir() {
		return fail(op, path, storage.ErrNotADirectory)
	}

	if err := os.RemoveAll(p); err != nil {
		return fail(op, path, err)
	}
	return nil
}

// RemoveFile deletes exactly one regular file.
func (b *LocalBackend) RemoveFile(ctx context.Context, path string) error {
	const op = "rm"
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := b.resolver.ResolveMutable(path)
	if err != nil {
		return fail(op, path, err)
	}

	info, err := os.Stat(p)
	if err != nil {
		return fail(op, path, classify(err))
	}
	if !info.Mode().IsRegular() {
		return fail(op, path, storage.ErrNotAFile)
	}

	if err := os.Remove(p); err != nil {
		return fail(op, path, classify(err))
	}
	return nil
}

// Move renames from to to with a single rename call. The rename is atomic
// only within one volume; a cross-volume move fails instead of degrading to
// copy and delete.
func (b *LocalBackend) Move(ctx context.Context, from, to string) error {
	const op = "mv"
	if err := ctx.Err(); err != nil {
		return err
	}

	src, dst, err := b.resolvePair(from, to)
	if err != nil {
		return fail(op, from, err)
	}
	if _, err := os.Stat(src); err != nil {
		return fail(op, from, classify(err))
	}
	if err := mustNotExist(dst); err != nil {
		return fail(op, to, err)
	}
	if pathutil.Contains(src, dst) {
		return fail(op, to, fmt.Errorf("destination inside source: %w", storage.ErrInvalidPath))
	}

	// The source was just seen, so a missing path here is the destination's
	// parent.
	if err := renameNoReplace(src, dst); err != nil {
		if errors.Is(err, syscall.EXDEV) {
			return fail(op, to, fmt.Errorf("cross-device move is not supported: %w", err))
		}
		return fail(op, to, classify(err))
	}
	return nil
}

// Usage reports capacity of the volume holding the root.
func (b *LocalBackend) Usage(ctx context.Context) (storage.Usage, error) {
	if err := ctx.Err(); err != nil {
		return storage.Usage{}, err
	}
	total, free, err := diskUsage(b.resolver.Root())
	if err != nil {
		return storage.Usage{}, fmt.Errorf("disk usage: %w", err)
	}
	return storage.Usage{Total: total, Free: free}, nil
}

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }

func (b *LocalBackend) resolvePair(from, to string) (string, string, error) {
	src, err := b.resolver.ResolveMutable(from)
	if err != nil {
		return "", "", err
	}
	dst, err := b.resolver.ResolveMutable(to)
	if err != nil {
		return "", "", err
	}
	return src, dst, nil
}

// mustNotExist returns ErrAlreadyExists if anything, including a dangling
// symlink, is present at p.
func mustNotExist(p string) error {
	_, err := os.Lstat(p)
	if err == nil {
		return storage.ErrAlreadyExists
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return classify(err)
}

// classify maps well-known os errors onto storage kinds. Anything else is
// returned unchanged and surfaces as an internal error.
func classify(err error) error {
	switch {
	case errors.Is(err, fs.ErrExist):
		return storage.ErrAlreadyExists
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return storage.ErrNotFound
	default:
		return err
	}
}

func fail(op, path string, err error) error {
	return &storage.PathError{Op: op, Path: path, Err: err}
}
