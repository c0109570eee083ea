// Package workspaceroot locates the root directory of a loom workspace by
// walking up from a starting directory looking for the root manifest file.
package workspaceroot

import (
	"fmt"
	"os"
	"path/filepath"
)

// ManifestName is the reserved file name for the root workspace manifest.
const ManifestName = "loom.json"

// Find walks up from the current working directory looking for ManifestName.
func Find() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return FindFrom(dir)
}

// FindFrom walks up from dir looking for ManifestName, returning the first
// directory that contains it.
func FindFrom(dir string) (string, error) {
	dir = filepath.Clean(dir)
	for {
		if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no %s found in %q or any parent directory", ManifestName, dir)
		}
		dir = parent
	}
}
