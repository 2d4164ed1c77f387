package util

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// AtomicWrite replaces dst with the contents of r. The data is flushed to
// disk before the rename, so dst holds either the old or the new contents
// after a crash.
func AtomicWrite(dst string, r io.Reader) error {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.reposync.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmp := f.Name()

	fail := func(step string, err error) error {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to %s: %w", step, err)
	}

	if _, err := io.Copy(f, r); err != nil {
		return fail("write", err)
	}
	if err := f.Chmod(0644); err != nil {
		return fail("set permissions", err)
	}
	if err := f.Sync(); err != nil {
		return fail("flush", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename: %w", err)
	}

	return nil
}

func RemoveIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}

	return nil
}
