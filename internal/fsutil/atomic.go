// Package fsutil holds small filesystem helpers shared by the writer and the
// archive packager.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile writes to a temporary file next to targetPath, syncs it and
// renames it into place. A reader never observes a partially written target.
// On any failure the temporary file is removed.
func AtomicWriteFile(targetPath, tempPattern string, perm os.FileMode, write func(*os.File) error) error {
	dir := filepath.Dir(targetPath)
	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if err := tempFile.Chmod(perm); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}

	if err := write(tempFile); err != nil {
		return err
	}

	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	success = true
	return nil
}

// TempPattern returns the os.CreateTemp pattern used for name. The leading dot
// and suffix keep temporaries out of chunk and archive listings.
func TempPattern(name string) string {
	return "." + name + ".*.tmp"
}
