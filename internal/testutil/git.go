package testutil

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
)

// DefaultSpecFile and DefaultLockFile are the descriptor names fixtures use.
const (
	DefaultSpecFile = "pixi.toml"
	DefaultLockFile = "pixi.lock"
)

// NewBareRemote creates an empty bare repository and returns its path, which
// doubles as the remote URL.
func NewBareRemote(t testing.TB) string {
	t.Helper()

	dir := filepath.Join(t.TempDir(), "remote.git")
	if _, err := gogit.PlainInit(dir, true); err != nil {
		t.Fatalf("failed to init bare remote: %v", err)
	}
	return dir
}

// WriteLockspec writes both descriptor files into dir.
func WriteLockspec(t testing.TB, dir, spec, lock string) {
	t.Helper()

	WriteFile(t, filepath.Join(dir, DefaultSpecFile), spec)
	WriteFile(t, filepath.Join(dir, DefaultLockFile), lock)
}

// WriteFile writes content to path, creating parent directories.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// ReadFile returns the content of path or fails the test.
func ReadFile(t testing.TB, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	return string(data)
}

// Logger returns a logger that only surfaces errors.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
