//go:build integration

package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/araki/internal/testutil"
)

const defaultTimeout = 5 * time.Minute

// Harness builds the araki binary once and runs it on behalf of several
// users, each with their own HOME and environment directory.
type Harness struct {
	t      *testing.T
	binDir string
	binary string
	remote string
}

// User is one person working on a shared environment.
type User struct {
	h    *Harness
	Name string
	Home string
	Dir  string
}

// NewHarness creates a new test harness with an empty bare remote
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	binDir := t.TempDir()
	return &Harness{
		t:      t,
		binDir: binDir,
		binary: filepath.Join(binDir, "araki"),
		remote: testutil.NewBareRemote(t),
	}
}

// Build compiles cmd/araki into the harness bin directory
func (h *Harness) Build(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := testutil.ModuleRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.t.Logf("Building %s", h.binary)
	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/araki")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// Remote returns the path of the shared bare remote
func (h *Harness) Remote() string {
	return h.remote
}

// NewUser creates a user with an empty environment directory and a config
// file carrying their author identity.
func (h *Harness) NewUser(name string) *User {
	h.t.Helper()

	u := &User{
		h:    h,
		Name: name,
		Home: h.t.TempDir(),
		Dir:  filepath.Join(h.t.TempDir(), "env"),
	}
	if err := os.MkdirAll(u.Dir, 0o755); err != nil {
		h.t.Fatalf("mkdir %s: %v", u.Dir, err)
	}

	cfg := fmt.Sprintf(`author:
  name: %q
  email: "%s@example.com"
shims:
  - "true"
`, name, name)
	testutil.WriteFile(h.t, filepath.Join(u.Home, ".config", "araki", "config.yaml"), cfg)
	return u
}

// BinDir is where shell init puts the user's shims
func (u *User) BinDir() string {
	return filepath.Join(u.Home, ".araki", "bin")
}

// Env returns the process environment the user's commands run with
func (u *User) Env(extra ...string) []string {
	env := []string{
		"HOME=" + u.Home,
		"PATH=" + u.h.binDir + string(os.PathListSeparator) + os.Getenv("PATH"),
	}
	return append(env, extra...)
}

// Exec runs araki in the user's environment directory
func (u *User) Exec(ctx context.Context, args ...string) (string, string, int, error) {
	u.h.t.Helper()
	return u.run(ctx, u.h.binary, args, nil)
}

// MustExec runs araki and fails the test if it returns non-zero
func (u *User) MustExec(ctx context.Context, args ...string) (string, string) {
	u.h.t.Helper()
	stdout, stderr, exitCode, err := u.Exec(ctx, args...)
	if err != nil {
		u.h.t.Fatalf("exec failed: %v", err)
	}
	if exitCode != 0 {
		u.h.t.Fatalf("%s: araki %s failed with exit code %d\nstdout: %s\nstderr: %s",
			u.Name, strings.Join(args, " "), exitCode, stdout, stderr)
	}
	return stdout, stderr
}

// Run executes an arbitrary program as the user
func (u *User) Run(ctx context.Context, env []string, name string, args ...string) (string, string, int, error) {
	u.h.t.Helper()
	return u.run(ctx, name, args, env)
}

func (u *User) run(ctx context.Context, name string, args, extraEnv []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = u.Dir
	cmd.Env = u.Env(extraEnv...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", "", 0, fmt.Errorf("exec failed: %w", err)
		}
	}
	return stdout.String(), stderr.String(), exitCode, nil
}

// WriteFile writes a file relative to the user's environment directory
func (u *User) WriteFile(name, content string) {
	u.h.t.Helper()
	testutil.WriteFile(u.h.t, filepath.Join(u.Dir, name), content)
}

// ReadFile reads a file relative to the user's environment directory
func (u *User) ReadFile(name string) string {
	u.h.t.Helper()
	return testutil.ReadFile(u.h.t, filepath.Join(u.Dir, name))
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
