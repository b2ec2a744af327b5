package impl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// GetProjectName returns the name of the Go project rooted at rootDir
func GetProjectName(rootDir string) string {
	return filepath.Base(rootDir)
}

// FindProjectRootDir walks upward from the working directory until it finds a directory
// containing go.mod. Tests and 'go run' both execute somewhere inside the module, so a
// go.mod is always found in practice.
func FindProjectRootDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for {
		_, err := os.Stat(filepath.Join(dir, "go.mod"))
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("failed to stat go.mod in %s: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("reached root directory without finding go.mod")
		}
		dir = parent
	}
}
