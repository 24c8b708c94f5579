package storage

import (
	"errors"
	"strings"
	"syscall"
)

// isDiskFull reports whether err indicates the filesystem is out of
// space, mapped to kerrors.ResourceExhausted.
func isDiskFull(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || strings.Contains(err.Error(), "no space left")
}

// isTooManyOpenFiles reports whether err indicates file-handle exhaustion.
func isTooManyOpenFiles(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) ||
		strings.Contains(err.Error(), "too many open files")
}
