package storage

import (
	"context"
	"io"
)

// ChunkSize is the fixed buffer size used for every streamed transfer.
const ChunkSize = 64 * 1024

// Pump copies src to dst one buffer at a time until src is exhausted,
// a read or write fails, or ctx is done. The whole payload is never held in
// memory: at most len(buf) bytes are in flight.
func Pump(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, ChunkSize)
	}
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if werr != nil {
				return written, werr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}
