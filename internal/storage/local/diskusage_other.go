//go:build !linux && !darwin && !windows

package local

import "errors"

func diskUsage(string) (uint64, uint64, error) {
	return 0, 0, errors.ErrUnsupported
}
