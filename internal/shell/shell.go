// Package shell wires araki into bash and zsh: rc file snippet, PATH shims
// for other package managers and the escape hatch that runs the real tool.
package shell

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Shell is a shell name. Anything other than Bash and Zsh is unsupported.
type Shell string

const (
	Bash Shell = "bash"
	Zsh  Shell = "zsh"
)

// ErrUnsupportedShell is returned for shells araki cannot configure.
var ErrUnsupportedShell = errors.New("unsupported shell")

// Parse maps a process or user supplied name to a Shell. Login shell
// prefixes and directories are ignored.
func Parse(name string) Shell {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "-")
	if name == "" {
		return ""
	}
	name = filepath.Base(name)
	return Shell(strings.ToLower(name))
}

// Supported reports whether s can be configured.
func (s Shell) Supported() bool {
	return s == Bash || s == Zsh
}

func (s Shell) String() string {
	return string(s)
}

func (s Shell) unsupported() error {
	return fmt.Errorf("%w: %q is not one of bash, zsh", ErrUnsupportedShell, string(s))
}

// Detector reports the name of the process that started araki
type Detector interface {
	ParentName() (string, error)
}

// ProcDetector reads the parent process name from procfs
type ProcDetector struct {
	// Root defaults to /proc.
	Root string
}

// ParentName returns the command name of the parent process.
func (d ProcDetector) ParentName() (string, error) {
	root := d.Root
	if root == "" {
		root = "/proc"
	}
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(os.Getppid()), "comm"))
	if err != nil {
		return "", fmt.Errorf("failed to detect shell: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Detect asks d for the parent process and parses it.
func Detect(d Detector) (Shell, error) {
	name, err := d.ParentName()
	if err != nil {
		return "", err
	}
	return Parse(name), nil
}

// ConfigFile returns the rc file of s under home.
func (s Shell) ConfigFile(home string) (string, error) {
	switch s {
	case Bash:
		return filepath.Join(home, ".bashrc"), nil
	case Zsh:
		return filepath.Join(home, ".zshrc"), nil
	default:
		return "", s.unsupported()
	}
}

// Snippet is the rc file block that puts the shims on PATH.
func (s Shell) Snippet() string {
	return fmt.Sprintf("# Araki configuration\neval $(araki shell generate %s)\n", s)
}

// EnsureConfig appends Snippet to the rc file of s unless it is already
// there. It reports whether the file was changed.
func EnsureConfig(s Shell, home string) (bool, error) {
	path, err := s.ConfigFile(home)
	if err != nil {
		return false, err
	}

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	snippet := s.Snippet()
	if strings.Contains(string(existing), snippet) {
		return false, nil
	}
	if len(existing) > 0 && !strings.HasSuffix(string(existing), "\n") {
		snippet = "\n" + snippet
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	if _, err := f.WriteString(snippet); err != nil {
		f.Close()
		return false, fmt.Errorf("failed to update %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("failed to update %s: %w", path, err)
	}
	return true, nil
}

// WriteShims replaces binDir/<tool> for every tool with a script that hands
// the call to araki shim.
func WriteShims(s Shell, binDir string, tools []string) error {
	if !s.Supported() {
		return s.unsupported()
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", binDir, err)
	}

	for _, tool := range tools {
		path := filepath.Join(binDir, tool)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove existing shim %s: %w", path, err)
		}
		script := fmt.Sprintf("#!/bin/%s\naraki shim %s \"$@\"\n", s, tool)
		if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
			return fmt.Errorf("failed to write shim %s: %w", path, err)
		}
	}
	return nil
}

// Env returns the assignment the shell evaluates to put binDir first on PATH.
func Env(s Shell, binDir string) (string, error) {
	if !s.Supported() {
		return "", s.unsupported()
	}
	return fmt.Sprintf("PATH=%s:$PATH", binDir), nil
}
