// Package pathutil confines client-supplied relative paths to a root directory.
package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for paths that escape the root, target the root
// where that is not allowed, or cannot name a file at all.
var ErrInvalidPath = errors.New("invalid path")

// Resolver joins relative paths against an immutable root.
// Resolution is purely lexical: nothing on disk is consulted, so it works for
// paths that do not exist yet.
type Resolver struct {
	root string
}

// NewResolver returns a Resolver for root. Root is made absolute and cleaned;
// whether it exists is the caller's concern.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		return nil, fmt.Errorf("root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps rel to an absolute path inside the root. The root itself is
// accepted, which is what listing needs.
func (r *Resolver) Resolve(rel string) (string, error) {
	if strings.IndexByte(rel, 0) >= 0 {
		return "", fmt.Errorf("%q: %w", rel, ErrInvalidPath)
	}
	// Join cleans, so "." and ".." are collapsed here. A leading separator in
	// rel is just another segment under root.
	p := filepath.Join(r.root, filepath.FromSlash(rel))
	if !Contains(r.root, p) {
		return "", fmt.Errorf("%q escapes root: %w", rel, ErrInvalidPath)
	}
	return p, nil
}

// ResolveMutable is Resolve for operations that create, delete or overwrite:
// the root itself is rejected as well.
func (r *Resolver) ResolveMutable(rel string) (string, error) {
	p, err := r.Resolve(rel)
	if err != nil {
		return "", err
	}
	if p == r.root {
		return "", fmt.Errorf("%q targets root: %w", rel, ErrInvalidPath)
	}
	return p, nil
}

// Contains reports whether child equals parent or lies below it. The test is
// per path segment, so /data does not contain /database. Both paths must be
// absolute and clean.
func Contains(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	if filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
