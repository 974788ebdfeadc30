//go:build !linux

package local

import "os"

func renameNoReplace(src, dst string) error {
	return os.Rename(src, dst)
}
