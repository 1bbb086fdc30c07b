package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// OverrideEnv must be set to 1 for a shim to run the real tool.
const OverrideEnv = "ARAKI_OVERRIDE_SHIM"

// ErrShimBlocked is returned when a shimmed tool is called without override.
var ErrShimBlocked = errors.New("use araki for environment management")

// Runner executes the real tool behind a shim
type Runner struct {
	binDir string
	logger *slog.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// NewRunner creates a runner that hides binDir from the tools it starts
func NewRunner(binDir string, logger *slog.Logger) *Runner {
	return &Runner{
		binDir: binDir,
		logger: logger,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Getenv: os.Getenv,
	}
}

// RunWithAdjustedPath runs tool with args, looked up on PATH without the
// shim directory, so the shim does not call itself.
func (r *Runner) RunWithAdjustedPath(ctx context.Context, tool string, args []string) error {
	if strings.TrimSpace(r.Getenv(OverrideEnv)) != "1" {
		call := strings.TrimSpace(tool + " " + strings.Join(args, " "))
		return fmt.Errorf("%w: unable to run %s. Set %s=1 to run the command anyway", ErrShimBlocked, call, OverrideEnv)
	}

	path := StripPath(r.Getenv("PATH"), r.binDir)
	bin, err := lookPath(tool, path)
	if err != nil {
		return err
	}
	r.logger.Debug("running shimmed tool", "tool", tool, "path", bin)

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Env = append(withoutPath(os.Environ()), "PATH="+path)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", tool, err)
	}
	return nil
}

// StripPath removes every occurrence of dir from a PATH value.
func StripPath(path, dir string) string {
	dir = filepath.Clean(dir)
	var kept []string
	for _, entry := range filepath.SplitList(path) {
		if entry == "" || filepath.Clean(entry) == dir {
			continue
		}
		kept = append(kept, entry)
	}
	return strings.Join(kept, string(os.PathListSeparator))
}

func lookPath(tool, path string) (string, error) {
	if strings.ContainsRune(tool, os.PathSeparator) {
		return tool, nil
	}
	for _, dir := range filepath.SplitList(path) {
		candidate := filepath.Join(dir, tool)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() {
			continue
		}
		if info.Mode().Perm()&0o111 != 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%s: %w", tool, exec.ErrNotFound)
}

func withoutPath(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, "PATH=") {
			out = append(out, kv)
		}
	}
	return out
}
