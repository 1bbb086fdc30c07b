package lockspec

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/schaermu/araki/internal/git"
	"github.com/schaermu/araki/internal/testutil"
)

const (
	specFile = testutil.DefaultSpecFile
	lockFile = testutil.DefaultLockFile
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		wantErr bool
	}{
		{name: "both present", files: []string{specFile, lockFile}},
		{name: "lock missing", files: []string{specFile}, wantErr: true},
		{name: "spec missing", files: []string{lockFile}, wantErr: true},
		{name: "empty directory", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, f := range tt.files {
				testutil.WriteFile(t, filepath.Join(dir, f), "x")
			}

			ls, err := Validate(dir, specFile, lockFile)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingDescriptor) {
					t.Fatalf("expected ErrMissingDescriptor, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if ls.SpecPath() != filepath.Join(dir, specFile) {
				t.Errorf("SpecPath() = %s", ls.SpecPath())
			}
		})
	}
}

func TestValidate_DirectoryIsNotADescriptor(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteFile(t, filepath.Join(dir, specFile), "x")
	if err := os.Mkdir(filepath.Join(dir, lockFile), 0o755); err != nil {
		t.Fatal(err)
	}

	if _, err := Validate(dir, specFile, lockFile); !errors.Is(err, ErrMissingDescriptor) {
		t.Fatalf("expected ErrMissingDescriptor, got %v", err)
	}
}

func TestEnsureMetadata(t *testing.T) {
	dir := t.TempDir()
	original := "# project settings\n[project]\nname = \"demo\"\nchannels = [\"conda-forge\"]"
	testutil.WriteLockspec(t, dir, original, "lock")

	ls, err := Validate(dir, specFile, lockFile)
	if err != nil {
		t.Fatal(err)
	}

	changed, err := ls.EnsureMetadata("demo-env")
	if err != nil {
		t.Fatalf("EnsureMetadata failed: %v", err)
	}
	if !changed {
		t.Fatal("expected first call to write metadata")
	}

	content := testutil.ReadFile(t, ls.SpecPath())
	if !strings.HasPrefix(content, original+"\n") {
		t.Errorf("existing content must be preserved, got:\n%s", content)
	}
	if !strings.Contains(content, "[araki]") {
		t.Errorf("expected [araki] table, got:\n%s", content)
	}

	name, err := ls.Name()
	if err != nil {
		t.Fatal(err)
	}
	if name != "demo-env" {
		t.Errorf("Name() = %q, want demo-env", name)
	}

	// repeated calls, even with another name, leave the file alone
	for _, n := range []string{"demo-env", "other"} {
		changed, err := ls.EnsureMetadata(n)
		if err != nil {
			t.Fatalf("EnsureMetadata(%q) failed: %v", n, err)
		}
		if changed {
			t.Errorf("EnsureMetadata(%q) rewrote the file", n)
		}
		if got := testutil.ReadFile(t, ls.SpecPath()); got != content {
			t.Errorf("EnsureMetadata(%q) changed content:\n%s", n, got)
		}
	}
}

func TestEnsureMetadata_InvalidToml(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLockspec(t, dir, "[project\nname=", "lock")
	ls := &LockSpec{Path: dir, SpecFile: specFile, LockFile: lockFile}

	if _, err := ls.EnsureMetadata("x"); err == nil {
		t.Fatal("expected parse error")
	}
	if got := testutil.ReadFile(t, ls.SpecPath()); got != "[project\nname=" {
		t.Errorf("invalid spec file must not be rewritten, got %q", got)
	}
}

func TestName_Absent(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLockspec(t, dir, "[project]\nname = \"demo\"\n", "lock")
	ls := &LockSpec{Path: dir, SpecFile: specFile, LockFile: lockFile}

	name, err := ls.Name()
	if err != nil {
		t.Fatal(err)
	}
	if name != "" {
		t.Errorf("Name() = %q, want empty", name)
	}
}

func TestRemoveFiles(t *testing.T) {
	dir := t.TempDir()
	testutil.WriteLockspec(t, dir, "spec", "lock")
	testutil.WriteFile(t, filepath.Join(dir, git.DirName, "HEAD"), "ref: refs/heads/main\n")
	testutil.WriteFile(t, filepath.Join(dir, "README.md"), "keep")

	ls := &LockSpec{Path: dir, SpecFile: specFile, LockFile: lockFile}
	if err := ls.RemoveFiles(); err != nil {
		t.Fatalf("RemoveFiles failed: %v", err)
	}
	for _, name := range []string{specFile, lockFile, git.DirName} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still exists", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "README.md")); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}

	// second call on an already clean directory
	if err := ls.RemoveFiles(); err != nil {
		t.Fatalf("RemoveFiles on clean dir failed: %v", err)
	}
}
