package local

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/fruitsalade/fileroot/internal/storage"
)

// Upload streams body into a new file at path. The file is created
// exclusively, so of two racing uploads to the same path only one can win.
// On any failure the partial file is removed; a failed removal is ignored.
// A nil error means every byte reached stable storage.
func (b *LocalBackend) Upload(ctx context.Context, path string, body io.Reader) (int64, error) {
	const op = "upload"
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p, err := b.resolver.ResolveMutable(path)
	if err != nil {
		return 0, fail(op, path, err)
	}
	if err := mustNotExist(p); err != nil {
		return 0, fail(op, path, err)
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return 0, fail(op, path, classify(err))
	}

	n, err := storage.Pump(ctx, f, body, make([]byte, storage.ChunkSize))
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(p)
		return n, fail(op, path, err)
	}
	return n, nil
}

// Download opens the regular file at path for streaming. The caller must
// drain Chunks or call Close.
func (b *LocalBackend) Download(ctx context.Context, path string) (*storage.Download, error) {
	const op = "download"
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := b.resolver.Resolve(path)
	if err != nil {
		return nil, fail(op, path, err)
	}

	// Stat before opening so a FIFO or device is never opened.
	info, err := os.Stat(p)
	if err != nil {
		return nil, fail(op, path, classify(err))
	}
	if !info.Mode().IsRegular() {
		return nil, fail(op, path, storage.ErrNotAFile)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, fail(op, path, classify(err))
	}
	info, err = f.Stat()
	if err != nil {
		f.Close()
		return nil, fail(op, path, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fail(op, path, storage.ErrNotAFile)
	}

	name := filepath.Base(p)
	return storage.NewDownload(f, name, info.Size(), info.ModTime(), storage.ContentType(name)), nil
}
