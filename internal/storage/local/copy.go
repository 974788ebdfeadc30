package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fruitsalade/fileroot/internal/pathutil"
	"github.com/fruitsalade/fileroot/internal/storage"
)

// pendingDir is a source directory whose children still have to be copied
// into an already created destination directory.
type pendingDir struct {
	src, dst string
}

// Copy duplicates the file or directory tree at from into to. There is no
// rollback: if the copy fails part way, whatever was already written stays.
func (b *LocalBackend) Copy(ctx context.Context, from, to string) error {
	const op = "cp"
	if err := ctx.Err(); err != nil {
		return err
	}

	src, dst, err := b.resolvePair(from, to)
	if err != nil {
		return fail(op, from, err)
	}

	info, err := os.Stat(src)
	if err != nil {
		return fail(op, from, classify(err))
	}
	if err := mustNotExist(dst); err != nil {
		return fail(op, to, err)
	}

	buf := make([]byte, storage.ChunkSize)
	switch {
	case info.Mode().IsRegular():
		if err := copyFile(ctx, src, dst, buf); err != nil {
			return fail(op, to, err)
		}
	case info.IsDir():
		if pathutil.Contains(src, dst) {
			return fail(op, to, fmt.Errorf("destination inside source: %w", storage.ErrInvalidPath))
		}
		if err := copyTree(ctx, src, dst, info.Mode().Perm(), buf); err != nil {
			return fail(op, to, err)
		}
	default:
		return fail(op, from, storage.ErrInvalidSource)
	}
	return nil
}

// copyTree walks src depth first with an explicit stack. Each destination
// directory is created, with its source's permission bits, before its
// children are visited. Symlinks are never descended into; a link to a
// regular file is copied as that file's content.
func copyTree(ctx context.Context, src, dst string, perm fs.FileMode, buf []byte) error {
	if err := mkdirPerm(dst, perm); err != nil {
		return classify(err)
	}

	stack := []pendingDir{{src: src, dst: dst}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(dir.src)
		if err != nil {
			return fmt.Errorf("read directory: %w", err)
		}
		for _, e := range entries {
			s := filepath.Join(dir.src, e.Name())
			d := filepath.Join(dir.dst, e.Name())

			switch t := e.Type(); {
			case t.IsDir():
				info, err := e.Info()
				if err != nil {
					return fmt.Errorf("read metadata of %s: %w", e.Name(), err)
				}
				if err := mkdirPerm(d, info.Mode().Perm()); err != nil {
					return err
				}
				stack = append(stack, pendingDir{src: s, dst: d})
			case t.IsRegular():
				if err := copyFile(ctx, s, d, buf); err != nil {
					return err
				}
			case t&fs.ModeSymlink != 0:
				target, err := os.Stat(s)
				if err != nil || !target.Mode().IsRegular() {
					return fmt.Errorf("%s: unsupported symlink: %w", e.Name(), storage.ErrInvalidSource)
				}
				if err := copyFile(ctx, s, d, buf); err != nil {
					return err
				}
			default:
				return fmt.Errorf("%s: unsupported file type %s: %w", e.Name(), t, storage.ErrInvalidSource)
			}
		}
	}
	return nil
}

// copyFile copies one file into a newly created dst. A failed copy removes
// its own partial output.
func copyFile(ctx context.Context, src, dst string, buf []byte) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("source vanished: %w", storage.ErrInvalidSource)
		}
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return classify(err)
	}

	_, err = storage.Pump(ctx, out, in, buf)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return err
	}
	return nil
}

// mkdirPerm creates dir and then applies perm exactly, since Mkdir is subject
// to the umask. The owner always keeps write access so children can be added.
func mkdirPerm(dir string, perm fs.FileMode) error {
	if err := os.Mkdir(dir, dirPerm); err != nil {
		return err
	}
	return os.Chmod(dir, perm|0o700)
}
