package storage

import (
	"io"
	"iter"
	"sync"
	"time"
)

// Download is an open file being streamed to a client.
type Download struct {
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string

	r         io.ReadCloser
	closeOnce sync.Once
	closeErr  error
}

// NewDownload wraps an open reader. Backends call this after validating the
// path; the Download owns r from then on.
func NewDownload(r io.ReadCloser, name string, size int64, modTime time.Time, contentType string) *Download {
	return &Download{
		Name:        name,
		Size:        size,
		ModTime:     modTime,
		ContentType: contentType,
		r:           r,
	}
}

// Chunks yields the content in order, at most ChunkSize bytes at a time.
// The sequence can be ranged once. The underlying file is closed when it is
// exhausted, when a read fails, or when the consumer stops early. A yielded
// slice is only valid until the next iteration.
func (d *Download) Chunks() iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer d.Close()
		buf := make([]byte, ChunkSize)
		for {
			n, err := d.r.Read(buf)
			if n > 0 {
				if !yield(buf[:n], nil) {
					return
				}
			}
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

// Close releases the file. It is safe to call more than once.
func (d *Download) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.r.Close()
	})
	return d.closeErr
}
