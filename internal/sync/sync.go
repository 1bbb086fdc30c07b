package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/schaermu/araki/internal/config"
	"github.com/schaermu/araki/internal/git"
)

// ErrNoMergeInProgress is returned when aborting without a pending merge.
var ErrNoMergeInProgress = errors.New("no merge in progress")

// Engine orchestrates pulls and pushes against the configured remote
type Engine struct {
	cfg    *config.Config
	store  *git.Store
	logger *slog.Logger
}

// NewEngine creates a new sync engine
func NewEngine(cfg *config.Config, store *git.Store, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		store:  store,
		logger: logger,
	}
}

func (e *Engine) author() git.Identity {
	return git.Identity{Name: e.cfg.Author.Name, Email: e.cfg.Author.Email}
}

// Pull fetches the remote branch and integrates it: nothing when up to date
// or ahead, a fast-forward when the local branch is behind, a merge commit
// when both sides moved. Overlapping changes leave conflict markers in the
// worktree, record the fetched commit as pending merge and return a
// *git.ConflictError; HEAD does not move in that case.
func (e *Engine) Pull(ctx context.Context, auth git.AuthState) (*Result, git.AuthState, error) {
	res := &Result{}
	res.enter(Idle)

	if _, pending, err := e.store.PendingMerge(); err != nil {
		return res, auth, err
	} else if pending {
		return res, auth, fmt.Errorf("%w: checkpoint the resolved files or run araki merge --abort", git.ErrMergeInProgress)
	}

	res.enter(Fetching)
	e.logger.Info("fetching remote", "remote", e.cfg.Remote.Name, "branch", e.store.Branch())
	method, auth, err := e.resolveAuth(auth)
	if err != nil {
		return res, auth, err
	}
	fetched, err := e.store.Fetch(ctx, e.cfg.Remote.Name, method)
	if err != nil {
		return res, auth, fmt.Errorf("failed to fetch %s: %w", e.cfg.Remote.Name, err)
	}
	res.Fetched = fetched

	res.enter(Analyzing)
	local, unborn, err := e.localTip()
	if err != nil {
		return res, auth, err
	}
	res.Local = local

	decision, err := e.analyze(local, fetched, unborn)
	if err != nil {
		return res, auth, err
	}
	res.enter(decision)
	e.logger.Info("merge analysis", "decision", decision, "local", local, "fetched", fetched)

	switch decision {
	case UpToDate, Ahead:
		// nothing to integrate
	case FastForward:
		if err := e.fastForward(fetched); err != nil {
			return res, auth, err
		}
	case ThreeWayMerge:
		if err := e.merge(res); err != nil {
			return res, auth, err
		}
	}

	res.enter(Done)
	return res, auth, nil
}

func (e *Engine) resolveAuth(state git.AuthState) (transport.AuthMethod, git.AuthState, error) {
	url, err := e.store.RemoteURL(e.cfg.Remote.Name)
	if err != nil {
		return nil, state, err
	}
	return git.ResolveAuth(url, state)
}

func (e *Engine) localTip() (plumbing.Hash, bool, error) {
	local, err := e.store.ResolveRef(e.store.BranchRef())
	if errors.Is(err, git.ErrRefNotFound) {
		return plumbing.ZeroHash, true, nil
	}
	return local, false, err
}

func (e *Engine) analyze(local, fetched plumbing.Hash, unborn bool) (State, error) {
	if unborn {
		return FastForward, nil
	}
	if local == fetched {
		return UpToDate, nil
	}

	behind, err := e.store.IsAncestor(local, fetched)
	if err != nil {
		return Idle, err
	}
	if behind {
		return FastForward, nil
	}

	ahead, err := e.store.IsAncestor(fetched, local)
	if err != nil {
		return Idle, err
	}
	if ahead {
		return Ahead, nil
	}
	return ThreeWayMerge, nil
}

// guardWorktree applies the configured strategy to un-checkpointed changes.
func (e *Engine) guardWorktree() error {
	changes, err := e.store.Status(e.cfg.TrackedFiles()...)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	if e.cfg.Sync.Strategy == config.StrategyReset {
		for _, c := range changes {
			e.logger.Warn("discarding un-checkpointed change", "path", c.Path, "change", c.Kind)
		}
		return nil
	}

	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	return fmt.Errorf("%w: %v (checkpoint them first or pull with --force to discard)", git.ErrDirtyWorktree, paths)
}

// attachBranch makes sure HEAD is attached to the branch and the worktree
// shows local before integrating anything.
func (e *Engine) attachBranch(local plumbing.Hash) error {
	branch, attached, err := e.store.HeadBranch()
	if err != nil {
		return err
	}
	if attached && branch == e.store.Branch() {
		return nil
	}

	e.logger.Info("re-attaching HEAD", "branch", e.store.Branch())
	if err := e.store.Checkout(local, true); err != nil {
		return err
	}
	return e.store.SetHead(e.store.Branch())
}

func (e *Engine) fastForward(fetched plumbing.Hash) error {
	if err := e.guardWorktree(); err != nil {
		return err
	}

	e.logger.Info("fast-forwarding", "branch", e.store.Branch(), "to", fetched)
	if err := e.store.Checkout(fetched, true); err != nil {
		return fmt.Errorf("failed to update worktree: %w", err)
	}
	if err := e.store.UpdateRef(e.store.BranchRef(), fetched); err != nil {
		return err
	}
	return e.store.SetHead(e.store.Branch())
}

func (e *Engine) merge(res *Result) error {
	if err := e.guardWorktree(); err != nil {
		return err
	}
	if err := e.attachBranch(res.Local); err != nil {
		return err
	}

	base, err := e.store.MergeBase(res.Local, res.Fetched)
	if err != nil {
		return err
	}
	res.Base = base
	e.logger.Info("merging", "base", base, "ours", res.Local, "theirs", res.Fetched)

	merged, err := e.store.DiffMerge(base, res.Local, res.Fetched)
	var conflict *git.ConflictError
	if errors.As(err, &conflict) {
		res.enter(Conflict)
		res.Conflicts = conflict.Paths
		if err := e.store.MaterializeMerge(merged, "ours "+short(res.Local), "theirs "+short(res.Fetched)); err != nil {
			return fmt.Errorf("failed to write conflict markers: %w", err)
		}
		if err := e.store.SetPendingMerge(res.Fetched); err != nil {
			return err
		}
		e.logger.Warn("merge conflict", "paths", conflict.Paths)
		return conflict
	}
	if err != nil {
		return err
	}

	tree, err := e.store.WriteTree(merged.Files)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("Merge: %s into %s", res.Fetched, res.Local)
	commit, err := e.store.CreateCommit(tree, []plumbing.Hash{res.Local, res.Fetched}, message, e.author())
	if err != nil {
		return fmt.Errorf("failed to create merge commit: %w", err)
	}
	if err := e.store.Checkout(commit, true); err != nil {
		return fmt.Errorf("failed to update worktree: %w", err)
	}
	if err := e.store.UpdateRef(e.store.BranchRef(), commit); err != nil {
		return err
	}
	res.Merge = commit
	e.logger.Info("merge committed", "commit", commit)
	return nil
}

// AbortMerge drops a pending merge and restores the worktree to HEAD.
func (e *Engine) AbortMerge() error {
	pending, ok, err := e.store.PendingMerge()
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoMergeInProgress
	}

	head, err := e.store.Head()
	if err != nil {
		return err
	}
	if err := e.store.Checkout(head, true); err != nil {
		return fmt.Errorf("failed to restore worktree: %w", err)
	}
	if err := e.store.ClearPendingMerge(); err != nil {
		return err
	}
	e.logger.Info("merge aborted", "head", head, "dropped", pending)
	return nil
}

// Push sends the branch, then tags: tag alone when given, every local tag
// otherwise. The tag set is taken before anything is sent. Tags are not
// attempted when the branch push fails.
func (e *Engine) Push(ctx context.Context, tag string, auth git.AuthState) (*PushResult, git.AuthState, error) {
	branch := e.store.BranchRef()
	if _, err := e.store.ResolveRef(branch); err != nil {
		return nil, auth, fmt.Errorf("nothing to push: %w", err)
	}

	var tags []string
	if tag != "" {
		if _, err := e.store.PeelTag(tag); err != nil {
			return nil, auth, err
		}
		tags = []string{tag}
	} else {
		all, err := e.store.Tags()
		if err != nil {
			return nil, auth, err
		}
		for _, t := range all {
			tags = append(tags, t.Name)
		}
	}

	method, auth, err := e.resolveAuth(auth)
	if err != nil {
		return nil, auth, err
	}

	e.logger.Info("pushing branch", "remote", e.cfg.Remote.Name, "branch", e.store.Branch())
	if err := e.store.Push(ctx, e.cfg.Remote.Name, []plumbing.ReferenceName{branch}, method); err != nil {
		return nil, auth, fmt.Errorf("failed to push %s: %w", e.store.Branch(), err)
	}
	res := &PushResult{Branch: branch}

	refs := make([]plumbing.ReferenceName, 0, len(tags)+1)
	for _, t := range tags {
		refs = append(refs, plumbing.NewTagReferenceName(t))
	}
	refs = append(refs, branch)

	e.logger.Info("pushing tags", "remote", e.cfg.Remote.Name, "count", len(tags))
	if err := e.store.Push(ctx, e.cfg.Remote.Name, refs, method); err != nil {
		return res, auth, fmt.Errorf("failed to push tags: %w", err)
	}
	res.Tags = tags
	return res, auth, nil
}

func short(h plumbing.Hash) string {
	return h.String()[:7]
}
