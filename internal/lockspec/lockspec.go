package lockspec

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/schaermu/araki/internal/git"
)

// MetadataTable is the spec file table araki owns.
const MetadataTable = "araki"

// ErrMissingDescriptor is returned when a descriptor file is absent.
var ErrMissingDescriptor = errors.New("lockspec descriptor missing")

// LockSpec is a validated environment directory.
type LockSpec struct {
	Path     string
	SpecFile string
	LockFile string
}

// Validate checks that both descriptor files exist in dir.
func Validate(dir, specFile, lockFile string) (*LockSpec, error) {
	ls := &LockSpec{Path: dir, SpecFile: specFile, LockFile: lockFile}

	var missing []string
	for _, name := range ls.Files() {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil || info.IsDir() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: no %v found in %s", ErrMissingDescriptor, missing, dir)
	}

	return ls, nil
}

// Files returns the descriptor names relative to Path, spec file first.
func (l *LockSpec) Files() []string {
	return []string{l.SpecFile, l.LockFile}
}

// SpecPath returns the absolute path of the spec file.
func (l *LockSpec) SpecPath() string {
	return filepath.Join(l.Path, l.SpecFile)
}

// LockPath returns the absolute path of the lock file.
func (l *LockSpec) LockPath() string {
	return filepath.Join(l.Path, l.LockFile)
}

type metadata struct {
	Araki *struct {
		LockspecName string `toml:"lockspec_name"`
	} `toml:"araki"`
}

// EnsureMetadata records name in the spec file's [araki] table. If the table
// already exists the file is left untouched, whatever name it holds. It
// reports whether the file was rewritten.
func (l *LockSpec) EnsureMetadata(name string) (bool, error) {
	path := l.SpecPath()
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to parse %s as toml: %w", path, err)
	}
	if _, ok := doc[MetadataTable]; ok {
		return false, nil
	}

	table, err := toml.Marshal(map[string]any{
		MetadataTable: map[string]string{"lockspec_name": name},
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode araki metadata: %w", err)
	}

	// appending keeps the user's formatting and comments intact
	var buf bytes.Buffer
	buf.Write(data)
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		buf.WriteByte('\n')
	}
	if len(data) > 0 {
		buf.WriteByte('\n')
	}
	buf.Write(table)

	var check map[string]any
	if err := toml.Unmarshal(buf.Bytes(), &check); err != nil {
		return false, fmt.Errorf("araki metadata would corrupt %s: %w", path, err)
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// Name returns the lockspec name recorded in the spec file, or "" when the
// [araki] table is absent.
func (l *LockSpec) Name() (string, error) {
	data, err := os.ReadFile(l.SpecPath())
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", l.SpecPath(), err)
	}
	var md metadata
	if err := toml.Unmarshal(data, &md); err != nil {
		return "", fmt.Errorf("failed to parse %s as toml: %w", l.SpecPath(), err)
	}
	if md.Araki == nil {
		return "", nil
	}
	return md.Araki.LockspecName, nil
}

// RemoveFiles deletes both descriptors and the hidden store. Missing files
// are not an error.
func (l *LockSpec) RemoveFiles() error {
	for _, path := range []string{l.SpecPath(), l.LockPath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	if err := os.RemoveAll(filepath.Join(l.Path, git.DirName)); err != nil {
		return fmt.Errorf("failed to remove %s: %w", git.DirName, err)
	}
	return nil
}
