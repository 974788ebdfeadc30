package storage

import (
	"errors"

	"github.com/fruitsalade/fileroot/internal/pathutil"
)

// Error kinds. Backends wrap these in a *PathError; handlers test for them
// with errors.Is and map them to a response status. Any other error is an
// unexpected I/O failure.
var (
	// ErrInvalidPath: the path escapes the root, or targets the root where
	// that is not allowed.
	ErrInvalidPath = pathutil.ErrInvalidPath

	// ErrAlreadyExists: the target of a create, move, copy or upload is taken.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound: the path (or a required parent) does not exist, or is not
	// of the type the operation needs.
	ErrNotFound = errors.New("not found")

	// ErrNotADirectory: List was pointed at something other than a directory.
	ErrNotADirectory = errors.New("not a directory")

	// ErrNotAFile: a file operation was pointed at something other than a
	// regular file.
	ErrNotAFile = errors.New("not a file")

	// ErrInvalidSource: a copy source is neither a regular file nor a directory.
	ErrInvalidSource = errors.New("invalid source")
)

// PathError records an error and the operation and client path that caused
// it. Path is always the client-relative form, never the on-disk location.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// IsClientError reports whether err is one of the kinds caused by the
// request rather than by the server.
func IsClientError(err error) bool {
	for _, kind := range []error{
		ErrInvalidPath, ErrAlreadyExists, ErrNotFound,
		ErrNotADirectory, ErrNotAFile, ErrInvalidSource,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
