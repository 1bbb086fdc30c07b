// Package revision resolves names to checkpoints and moves the working
// directory between them.
package revision

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/schaermu/araki/internal/config"
	"github.com/schaermu/araki/internal/git"
)

// Latest always names the tip of the branch.
const Latest = "latest"

// Navigator resolves revisions and checks them out
type Navigator struct {
	store    *git.Store
	strategy config.Strategy
	logger   *slog.Logger
}

// NewNavigator creates a navigator. strategy decides what Checkout does with
// un-checkpointed changes.
func NewNavigator(store *git.Store, strategy config.Strategy, logger *slog.Logger) *Navigator {
	return &Navigator{
		store:    store,
		strategy: strategy,
		logger:   logger,
	}
}

// Resolve maps latest, a tag name or a commit id (full or unique prefix) to
// a commit. Nothing on disk is touched.
func (n *Navigator) Resolve(name string) (plumbing.Hash, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return plumbing.ZeroHash, fmt.Errorf("%w: empty revision", git.ErrRefNotFound)
	}

	if name == Latest {
		tip, err := n.store.ResolveRef(n.store.BranchRef())
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("%w: %s has no checkpoints yet", git.ErrRefNotFound, n.store.Branch())
		}
		return tip, nil
	}

	commit, err := n.store.PeelTag(name)
	if err == nil {
		return commit, nil
	}
	if !errors.Is(err, git.ErrRefNotFound) {
		return plumbing.ZeroHash, err
	}

	commit, err = n.store.ResolvePrefix(name)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: no tag or checkpoint named %q", git.ErrRefNotFound, name)
	}
	return commit, nil
}

// Checkout overwrites the tracked files with the content of commit and
// detaches HEAD there. No branch moves.
func (n *Navigator) Checkout(commit plumbing.Hash) error {
	if _, pending, err := n.store.PendingMerge(); err != nil {
		return err
	} else if pending {
		return fmt.Errorf("%w: checkpoint the resolved files or run araki merge --abort", git.ErrMergeInProgress)
	}

	if n.strategy != config.StrategyReset {
		if err := n.store.EnsureClean(); err != nil {
			return fmt.Errorf("%w (checkpoint them first or use --force to discard)", err)
		}
	}

	n.logger.Info("checking out", "commit", commit)
	if err := n.store.Checkout(commit, true); err != nil {
		return fmt.Errorf("failed to update worktree: %w", err)
	}
	return n.store.SetHeadDetached(commit)
}

// TagEntry is one line of the tag listing
type TagEntry struct {
	Name    string
	Summary string
	Commit  plumbing.Hash
}

func (e TagEntry) String() string {
	if e.Summary == "" {
		return e.Name
	}
	return fmt.Sprintf("%-16s %s", e.Name, e.Summary)
}

// Tags lists every tag by name. Annotated tags carry the first non-empty
// line of their message.
func (n *Navigator) Tags() ([]TagEntry, error) {
	tags, err := n.store.Tags()
	if err != nil {
		return nil, err
	}

	entries := make([]TagEntry, 0, len(tags))
	for _, t := range tags {
		entry := TagEntry{Name: t.Name, Commit: t.Target}
		if t.Annotated {
			entry.Summary = firstLine(t.Message)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// HistoryEntry is a commit plus the refs pointing at it
type HistoryEntry struct {
	Commit      *object.Commit
	Decorations []string
}

// Summary returns the first non-empty line of the commit message.
func (e HistoryEntry) Summary() string {
	return firstLine(e.Commit.Message)
}

// History walks the commits reachable from HEAD, parents before children.
// An unborn HEAD has no history.
func (n *Navigator) History() ([]HistoryEntry, error) {
	head, err := n.store.Head()
	if errors.Is(err, git.ErrRefNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	commits, err := n.store.Log(head)
	if err != nil {
		return nil, err
	}
	decorations, err := n.decorations(head)
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(commits))
	for _, c := range commits {
		entries = append(entries, HistoryEntry{Commit: c, Decorations: decorations[c.Hash]})
	}
	return entries, nil
}

func (n *Navigator) decorations(head plumbing.Hash) (map[plumbing.Hash][]string, error) {
	out := make(map[plumbing.Hash][]string)

	branch, attached, err := n.store.HeadBranch()
	if err != nil {
		return nil, err
	}
	if attached {
		out[head] = append(out[head], "HEAD -> "+branch)
	} else {
		out[head] = append(out[head], "HEAD")
		if tip, err := n.store.ResolveRef(n.store.BranchRef()); err == nil {
			out[tip] = append(out[tip], n.store.Branch())
		}
	}

	tags, err := n.store.Tags()
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		out[t.Target] = append(out[t.Target], "tag: "+t.Name)
	}
	return out, nil
}

func firstLine(message string) string {
	for _, line := range strings.Split(message, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
