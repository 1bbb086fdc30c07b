package lockspec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/araki/internal/git"
)

// IgnoreEntry is the .gitignore line that hides the store from a
// surrounding git checkout.
const IgnoreEntry = git.DirName + "/"

// EnsureIgnoreEntry appends IgnoreEntry to dir/.gitignore unless a line
// already ignores the store. It reports whether the file changed.
func EnsureIgnoreEntry(dir string) (bool, error) {
	path := filepath.Join(dir, ".gitignore")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == IgnoreEntry || line == git.DirName || line == "/"+IgnoreEntry || line == "/"+git.DirName {
			return false, nil
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	entry := IgnoreEntry + "\n"
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		entry = "\n" + entry
	}
	if _, err := f.WriteString(entry); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// CopyDirContents copies every entry of from into to. Existing entries in to
// are overwritten. If any entry fails, the entries this call created are
// removed again before the error is returned; entries that existed before
// are left in place.
func CopyDirContents(from, to string) error {
	entries, err := os.ReadDir(from)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", from, err)
	}
	if err := os.MkdirAll(to, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", to, err)
	}

	var created []string
	for _, entry := range entries {
		src := filepath.Join(from, entry.Name())
		dst := filepath.Join(to, entry.Name())
		if _, err := os.Lstat(dst); errors.Is(err, os.ErrNotExist) {
			created = append(created, dst)
		}
		if err := copyTree(src, dst); err != nil {
			_ = removeAll(created)
			return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
		}
	}
	return nil
}

func copyTree(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	switch {
	case info.IsDir():
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return err
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := copyTree(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return err
		}
		_ = os.Remove(dst)
		return os.Symlink(target, dst)
	case info.Mode().IsRegular():
		return copyFile(src, dst)
	default:
		return fmt.Errorf("unsupported file type %s", info.Mode().Type())
	}
}

// copyFile copies a file from src to dst with atomic write
func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = srcFile.Close()
	}()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	return writeAtomic(dst, srcInfo.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, srcFile)
		return err
	})
}

// writeFileAtomic replaces path with data, keeping its permissions.
func writeFileAtomic(path string, data []byte) error {
	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return writeAtomic(path, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func writeAtomic(dst string, perm os.FileMode, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".araki-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}() // cleanup on error

	if err := fill(tmpFile); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	return os.Rename(tmpPath, dst)
}

func removeAll(paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
