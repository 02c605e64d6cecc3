//go:build !windows

// Package fileutil keeps the index and its home directory private to the
// current user. On Unix this is plain mode bits; on Windows owner-only
// modes also get a DACL naming only the current user.
package fileutil

import (
	"fmt"
	"os"
)

// PrivateDir creates path and missing parents with mode 0700 and tightens
// an existing leaf directory to 0700.
func PrivateDir(path string) error {
	if err := os.MkdirAll(path, DirMode); err != nil {
		return err
	}
	if err := os.Chmod(path, DirMode); err != nil {
		return fmt.Errorf("restrict %s: %w", path, err)
	}
	return nil
}

// RestrictFile sets path to mode 0600. A missing file is not an error.
func RestrictFile(path string) error {
	err := os.Chmod(path, FileMode)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
