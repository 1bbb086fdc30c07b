package testutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/modfile"
)

// ModulePath is the import path declared in araki's go.mod.
const ModulePath = "github.com/schaermu/araki"

// ModuleRoot returns the directory of araki's go.mod, searching upward from
// the working directory. go test runs inside the package directory, so any
// package of the module finds it.
func ModuleRoot() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return moduleRootFrom(wd, ModulePath)
}

// moduleRootFrom skips go.mod files of other modules, such as nested
// fixtures.
func moduleRootFrom(dir, modulePath string) (string, error) {
	start := dir
	for {
		data, err := os.ReadFile(filepath.Join(dir, "go.mod"))
		switch {
		case err == nil:
			if modfile.ModulePath(data) == modulePath {
				return dir, nil
			}
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("failed to read go.mod in %s: %w", dir, err)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod for %s above %s", modulePath, start)
		}
		dir = parent
	}
}
