// Package checkpoint records the state of a lockspec as commits and
// annotated tags in the store.
package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/schaermu/araki/internal/git"
)

// ErrUnresolvedConflict is returned when completing a merge while a tracked
// file still holds conflict markers.
var ErrUnresolvedConflict = errors.New("unresolved conflict markers")

// Manager creates checkpoints and tags.
type Manager struct {
	store  *git.Store
	logger *slog.Logger
}

// NewManager creates a new checkpoint manager
func NewManager(store *git.Store, logger *slog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// DefaultTagMessage is the message of a tag created without a description.
func DefaultTagMessage(name string) string {
	return "araki environment tag: " + name
}

// Checkpoint stages paths, commits them on top of HEAD and advances HEAD.
// When a conflicted merge is pending the commit completes it: it gets the
// merged commit as second parent and is refused while conflict markers
// remain. Nothing is committed if any path cannot be staged.
func (m *Manager) Checkpoint(paths []string, message string, author git.Identity) (plumbing.Hash, error) {
	pending, merging, err := m.store.PendingMerge()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if merging {
		if err := m.checkResolved(paths); err != nil {
			return plumbing.ZeroHash, err
		}
	}

	if err := m.store.Stage(paths...); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to stage checkpoint: %w", err)
	}
	tree, err := m.store.WriteIndexTree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to write tree: %w", err)
	}

	var parents []plumbing.Hash
	head, err := m.store.Head()
	switch {
	case err == nil:
		parents = append(parents, head)
	case errors.Is(err, git.ErrRefNotFound):
		m.logger.Debug("creating root checkpoint")
	default:
		return plumbing.ZeroHash, err
	}
	if merging {
		parents = append(parents, pending)
	}

	commit, err := m.store.CreateCommit(tree, parents, message, author)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := m.store.AdvanceHead(commit); err != nil {
		return plumbing.ZeroHash, err
	}
	if merging {
		if err := m.store.ClearPendingMerge(); err != nil {
			return plumbing.ZeroHash, err
		}
		m.logger.Info("merge completed", "commit", commit, "merged", pending)
	}

	m.logger.Debug("checkpoint created", "commit", commit, "parents", len(parents))
	return commit, nil
}

// TagCheckpoint creates an annotated tag on commit. An empty description
// yields DefaultTagMessage.
func (m *Manager) TagCheckpoint(commit plumbing.Hash, name, description string, tagger git.Identity) (plumbing.Hash, error) {
	message := description
	if message == "" {
		message = DefaultTagMessage(name)
	}

	tag, err := m.store.CreateTag(name, commit, message, true, tagger)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	m.logger.Debug("tag created", "tag", name, "commit", commit)
	return tag, nil
}

// Changed reports whether a checkpoint of paths would record anything new:
// a tracked file differs from HEAD, HEAD is unborn, or a merge is pending.
func (m *Manager) Changed(paths []string) (bool, error) {
	if _, merging, err := m.store.PendingMerge(); err != nil {
		return false, err
	} else if merging {
		return true, nil
	}
	if _, err := m.store.Head(); errors.Is(err, git.ErrRefNotFound) {
		return true, nil
	} else if err != nil {
		return false, err
	}

	changes, err := m.store.Status(paths...)
	if err != nil {
		return false, err
	}
	return len(changes) > 0, nil
}

func (m *Manager) checkResolved(paths []string) error {
	var unresolved []string
	for _, p := range paths {
		data, err := util.ReadFile(m.store.Worktree(), p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		if git.HasConflictMarkers(data) {
			unresolved = append(unresolved, p)
		}
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("%w in %v: edit the files, then checkpoint again or run araki merge --abort", ErrUnresolvedConflict, unresolved)
	}
	return nil
}
