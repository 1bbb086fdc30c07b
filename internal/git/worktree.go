package git

import (
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

// ChangeKind classifies a tracked path in the worktree.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Deleted
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Change is a tracked path whose worktree content differs from HEAD.
type Change struct {
	Path string
	Kind ChangeKind
}

// Stage writes each path from the worktree as a blob and records it in the
// index. The index is only persisted once every path has been stored.
func (s *Store) Stage(paths ...string) error {
	idx, err := s.repo.Storer.Index()
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	staged := make(map[string]*index.Entry, len(paths))
	for _, p := range paths {
		p = path.Clean(p)
		info, err := s.worktree.Lstat(p)
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("failed to stage %s: not a regular file", p)
		}
		content, err := util.ReadFile(s.worktree, p)
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", p, err)
		}
		hash, err := s.WriteBlob(content)
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", p, err)
		}
		mode, err := filemode.NewFromOSFileMode(info.Mode())
		if err != nil {
			return fmt.Errorf("failed to stage %s: %w", p, err)
		}
		staged[p] = &index.Entry{
			Name:       p,
			Hash:       hash,
			Mode:       mode,
			Size:       uint32(len(content)),
			ModifiedAt: info.ModTime(),
		}
	}

	for _, e := range staged {
		if existing, err := idx.Entry(e.Name); err == nil {
			*existing = *e
			continue
		}
		idx.Entries = append(idx.Entries, e)
	}
	sortIndex(idx)

	if err := s.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// WriteIndexTree writes the tree currently described by the index.
func (s *Store) WriteIndexTree() (plumbing.Hash, error) {
	idx, err := s.repo.Storer.Index()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to read index: %w", err)
	}
	files := make(map[string]TreeFile, len(idx.Entries))
	for _, e := range idx.Entries {
		files[e.Name] = TreeFile{Hash: e.Hash, Mode: e.Mode}
	}
	return s.WriteTree(files)
}

// Status compares the worktree against HEAD for every path HEAD tracks plus
// any extra paths given. Results are sorted by path.
func (s *Store) Status(extra ...string) ([]Change, error) {
	tracked, err := s.headFiles()
	if err != nil {
		return nil, err
	}

	var changes []Change
	seen := make(map[string]bool, len(tracked))
	for p, f := range tracked {
		seen[p] = true
		hash, ok, err := s.worktreeHash(p)
		if err != nil {
			return nil, err
		}
		switch {
		case !ok:
			changes = append(changes, Change{Path: p, Kind: Deleted})
		case hash != f.Hash:
			changes = append(changes, Change{Path: p, Kind: Modified})
		}
	}
	for _, p := range extra {
		p = path.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, ok, err := s.worktreeHash(p); err != nil {
			return nil, err
		} else if ok {
			changes = append(changes, Change{Path: p, Kind: Added})
		}
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes, nil
}

// Checkout writes the tree of commit into the worktree and rebuilds the index
// from it. Paths tracked by HEAD but absent from commit are removed; untracked
// files are left alone. Unless force is set, it refuses to run over
// un-checkpointed changes. HEAD is not moved.
func (s *Store) Checkout(commit plumbing.Hash, force bool) error {
	if !force {
		if err := s.EnsureClean(); err != nil {
			return err
		}
	}

	target, err := s.Files(commit)
	if err != nil {
		return err
	}
	if err := s.replaceWorktree(target); err != nil {
		return err
	}
	return s.resetIndex(target)
}

// MaterializeMerge writes a merge outcome into the worktree: cleanly merged
// files as they are, conflicting files wrapped in conflict markers. The index
// is left describing HEAD so the conflicts show up as changes.
func (s *Store) MaterializeMerge(res *MergeResult, oursLabel, theirsLabel string) error {
	if err := s.replaceWorktree(res.Files); err != nil {
		return err
	}

	for _, c := range res.Conflicts {
		ours, err := s.sideContent(c.Ours)
		if err != nil {
			return err
		}
		theirs, err := s.sideContent(c.Theirs)
		if err != nil {
			return err
		}
		content := conflictContent(ours, theirs, oursLabel, theirsLabel)
		if err := s.writeWorktreeFile(c.Path, content, filemode.Regular); err != nil {
			return err
		}
	}
	return nil
}

// EnsureClean returns ErrDirtyWorktree listing the tracked paths that differ
// from HEAD.
func (s *Store) EnsureClean() error {
	changes, err := s.Status()
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}
	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	return fmt.Errorf("%w: %s", ErrDirtyWorktree, strings.Join(paths, ", "))
}

func (s *Store) sideContent(f *TreeFile) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return s.readBlob(f.Hash)
}

func (s *Store) replaceWorktree(target map[string]TreeFile) error {
	current, err := s.headFiles()
	if err != nil {
		return err
	}
	for p := range current {
		if _, keep := target[p]; keep {
			continue
		}
		if err := s.worktree.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}

	for p, f := range target {
		content, err := s.readBlob(f.Hash)
		if err != nil {
			return err
		}
		if err := s.writeWorktreeFile(p, content, f.Mode); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeWorktreeFile(p string, content []byte, mode filemode.FileMode) error {
	if dir := path.Dir(p); dir != "." {
		if err := s.worktree.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	perm := os.FileMode(0o644)
	if mode == filemode.Executable {
		perm = 0o755
	}
	if err := util.WriteFile(s.worktree, p, content, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", p, err)
	}
	return nil
}

func (s *Store) resetIndex(files map[string]TreeFile) error {
	idx := &index.Index{Version: 2}
	for p, f := range files {
		e := &index.Entry{Name: p, Hash: f.Hash, Mode: f.Mode}
		if info, err := s.worktree.Lstat(p); err == nil {
			e.Size = uint32(info.Size())
			e.ModifiedAt = info.ModTime()
		}
		idx.Entries = append(idx.Entries, e)
	}
	sortIndex(idx)

	if err := s.repo.Storer.SetIndex(idx); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

func sortIndex(idx *index.Index) {
	sort.Slice(idx.Entries, func(i, j int) bool { return idx.Entries[i].Name < idx.Entries[j].Name })
}

// headFiles returns the files of HEAD, or none while the branch is unborn.
func (s *Store) headFiles() (map[string]TreeFile, error) {
	head, err := s.Head()
	if err != nil {
		if errors.Is(err, ErrRefNotFound) {
			return map[string]TreeFile{}, nil
		}
		return nil, err
	}
	return s.Files(head)
}

func (s *Store) worktreeHash(p string) (plumbing.Hash, bool, error) {
	content, err := util.ReadFile(s.worktree, p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return plumbing.ZeroHash, false, nil
		}
		return plumbing.ZeroHash, false, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return plumbing.ComputeHash(plumbing.BlobObject, content), true, nil
}
