package git

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

const (
	// DirName is the hidden directory holding the object store, relative to
	// the lockspec directory.
	DirName = ".araki-git"
	// DefaultBranch is the branch new stores are initialized with.
	DefaultBranch = "main"
	// MergeHead records the commit being merged while a conflict is pending.
	MergeHead plumbing.ReferenceName = "MERGE_HEAD"
)

// Identity is the author and committer recorded on commits and tags.
type Identity struct {
	Name  string
	Email string
}

// Store is an explicit handle on one araki repository and its worktree.
type Store struct {
	repo     *gogit.Repository
	worktree billy.Filesystem
	branch   string
	now      func() time.Time
}

// New wraps an already opened repository. It is mostly useful with
// in-memory storage and a memfs worktree.
func New(repo *gogit.Repository, worktree billy.Filesystem, branch string) *Store {
	if branch == "" {
		branch = DefaultBranch
	}
	return &Store{
		repo:     repo,
		worktree: worktree,
		branch:   branch,
		now:      time.Now,
	}
}

// Open opens the store kept in dir/.araki-git. The worktree is dir itself.
func Open(dir, branch string) (*Store, error) {
	gitDir := filepath.Join(dir, DirName)
	info, err := os.Stat(gitDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotARepository, dir)
	}

	storage := filesystem.NewStorage(osfs.New(gitDir), cache.NewObjectLRUDefault())
	repo, err := gogit.Open(storage, nil)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotARepository, dir)
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	return New(repo, osfs.New(dir), branch), nil
}

// Init creates an empty store in dir/.araki-git with HEAD pointing at the
// unborn branch.
func Init(dir, branch string) (*Store, error) {
	gitDir := filepath.Join(dir, DirName)
	storage := filesystem.NewStorage(osfs.New(gitDir), cache.NewObjectLRUDefault())
	repo, err := gogit.Init(storage, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize repository: %w", err)
	}

	s := New(repo, osfs.New(dir), branch)
	if err := s.SetHead(s.branch); err != nil {
		return nil, err
	}
	return s, nil
}

// Branch returns the branch this store synchronizes.
func (s *Store) Branch() string {
	return s.branch
}

// BranchRef returns the full reference name of the synchronized branch.
func (s *Store) BranchRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(s.branch)
}

// Worktree returns the filesystem holding the tracked files.
func (s *Store) Worktree() billy.Filesystem {
	return s.worktree
}

// Repository exposes the underlying go-git repository.
func (s *Store) Repository() *gogit.Repository {
	return s.repo
}

// ResolveRef resolves a reference name to the commit it points to.
func (s *Store) ResolveRef(name plumbing.ReferenceName) (plumbing.Hash, error) {
	ref, err := s.repo.Reference(name, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRefNotFound, name)
		}
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	return ref.Hash(), nil
}

// Head returns the commit HEAD points to, or ErrRefNotFound while the
// branch is unborn.
func (s *Store) Head() (plumbing.Hash, error) {
	return s.ResolveRef(plumbing.HEAD)
}

// HeadBranch returns the branch HEAD is attached to. The second return
// value is false when HEAD is detached.
func (s *Store) HeadBranch() (string, bool, error) {
	ref, err := s.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", false, fmt.Errorf("failed to read HEAD: %w", err)
	}
	if ref.Type() != plumbing.SymbolicReference {
		return "", false, nil
	}
	return ref.Target().Short(), true, nil
}

// SetHead attaches HEAD to a branch.
func (s *Store) SetHead(branch string) error {
	ref := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(branch))
	if err := s.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("failed to set HEAD: %w", err)
	}
	return nil
}

// SetHeadDetached points HEAD directly at a commit.
func (s *Store) SetHeadDetached(commit plumbing.Hash) error {
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(plumbing.HEAD, commit)); err != nil {
		return fmt.Errorf("failed to detach HEAD: %w", err)
	}
	return nil
}

// UpdateRef points name at commit, creating the reference if needed.
func (s *Store) UpdateRef(name plumbing.ReferenceName, commit plumbing.Hash) error {
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(name, commit)); err != nil {
		return fmt.Errorf("failed to update %s: %w", name, err)
	}
	return nil
}

// AdvanceHead moves whatever HEAD designates to commit: the attached
// branch, or HEAD itself when detached.
func (s *Store) AdvanceHead(commit plumbing.Hash) error {
	ref, err := s.repo.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return fmt.Errorf("failed to read HEAD: %w", err)
	}
	if ref.Type() == plumbing.SymbolicReference {
		return s.UpdateRef(ref.Target(), commit)
	}
	return s.SetHeadDetached(commit)
}

// PendingMerge returns the commit recorded by a conflicted merge, if any.
func (s *Store) PendingMerge() (plumbing.Hash, bool, error) {
	ref, err := s.repo.Storer.Reference(MergeHead)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, false, nil
		}
		return plumbing.ZeroHash, false, fmt.Errorf("failed to read %s: %w", MergeHead, err)
	}
	return ref.Hash(), true, nil
}

// SetPendingMerge records the commit a conflicted merge is waiting on.
func (s *Store) SetPendingMerge(commit plumbing.Hash) error {
	return s.UpdateRef(MergeHead, commit)
}

// ClearPendingMerge forgets a pending merge. It is a no-op when none exists.
func (s *Store) ClearPendingMerge() error {
	if err := s.repo.Storer.RemoveReference(MergeHead); err != nil {
		return fmt.Errorf("failed to clear %s: %w", MergeHead, err)
	}
	return nil
}

// Commit loads a commit object.
func (s *Store) Commit(hash plumbing.Hash) (*object.Commit, error) {
	c, err := s.repo.CommitObject(hash)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRefNotFound, hash)
		}
		return nil, fmt.Errorf("failed to load commit %s: %w", hash, err)
	}
	return c, nil
}

func (s *Store) signature(id Identity) object.Signature {
	return object.Signature{
		Name:  id.Name,
		Email: id.Email,
		When:  s.now(),
	}
}
