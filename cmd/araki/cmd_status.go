package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/diff"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/git"
	"github.com/schaermu/araki/internal/revision"
	"github.com/schaermu/araki/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show un-checkpointed changes",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var diffCmd = &cobra.Command{
	Use:   "diff [from] [to]",
	Short: "Show changes between revisions",
	Long: `Diff prints a unified diff of the descriptors. Without arguments it compares
HEAD with the files on disk, with one revision it compares that revision with
the files on disk, and with two it compares the revisions.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(diffCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail("status failed", err)
	}

	branch, attached, err := store.HeadBranch()
	if err != nil {
		return a.fail("status failed", err)
	}
	head, headErr := store.Head()
	switch {
	case errors.Is(headErr, git.ErrRefNotFound):
		a.out.Heading("On branch %s, no checkpoints yet", branch)
	case headErr != nil:
		return a.fail("status failed", headErr)
	case attached:
		a.out.Heading("On branch %s at %s", branch, shortHash(head))
	default:
		a.out.Heading("HEAD detached at %s", shortHash(head))
	}

	if pending, ok, err := store.PendingMerge(); err != nil {
		return a.fail("status failed", err)
	} else if ok {
		a.out.Warn("Merging %s: resolve conflicts and run araki commit, or araki merge --abort", shortHash(pending))
	}

	changes, err := store.Status(a.cfg.TrackedFiles()...)
	if err != nil {
		return a.fail("status failed", err)
	}
	if len(changes) == 0 {
		a.out.Success("Nothing to checkpoint")
		return nil
	}

	table := ui.NewTable(a.out.Writer())
	for _, c := range changes {
		var before string
		if headErr == nil {
			before, err = committedContent(store, head, c.Path)
			if err != nil {
				return a.fail("status failed", err)
			}
		}
		after, err := worktreeContent(a.dir, c.Path)
		if err != nil {
			return a.fail("status failed", err)
		}
		added, removed := lineStats(before, after)
		table.Row(changeCode(c.Kind), c.Path, fmt.Sprintf("+%d", added), fmt.Sprintf("-%d", removed))
	}
	return table.Flush()
}

func changeCode(k git.ChangeKind) string {
	switch k {
	case git.Added:
		return "A"
	case git.Deleted:
		return "D"
	default:
		return "M"
	}
}

// lineStats counts inserted and deleted lines between two file versions.
func lineStats(before, after string) (added, removed int) {
	for _, d := range diff.Do(before, after) {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			removed += countLines(d.Text)
		}
	}
	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func committedContent(store *git.Store, commit plumbing.Hash, path string) (string, error) {
	data, err := store.ReadFile(commit, path)
	if errors.Is(err, object.ErrFileNotFound) {
		return "", nil
	}
	return string(data), err
}

func worktreeContent(dir, path string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, path))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail("diff failed", err)
	}
	nav := revision.NewNavigator(store, a.cfg.Sync.Strategy, a.logger)

	from, fromLabel, err := diffSide(store, nav, args, 0)
	if err != nil {
		return a.fail("diff failed", err)
	}
	to, toLabel := plumbing.ZeroHash, "worktree"
	if len(args) == 2 {
		if to, toLabel, err = diffSide(store, nav, args, 1); err != nil {
			return a.fail("diff failed", err)
		}
	}

	out := a.out.Writer()
	for _, path := range a.cfg.TrackedFiles() {
		before, err := committedContent(store, from, path)
		if err != nil {
			return a.fail("diff failed", err)
		}
		var after string
		if to.IsZero() {
			after, err = worktreeContent(a.dir, path)
		} else {
			after, err = committedContent(store, to, path)
		}
		if err != nil {
			return a.fail("diff failed", err)
		}

		text, err := unifiedDiff(path, fromLabel, toLabel, before, after)
		if err != nil {
			return a.fail("diff failed", err)
		}
		fmt.Fprint(out, text)
	}
	return nil
}

// diffSide resolves args[i], falling back to HEAD when absent.
func diffSide(store *git.Store, nav *revision.Navigator, args []string, i int) (plumbing.Hash, string, error) {
	if i < len(args) {
		h, err := nav.Resolve(args[i])
		return h, args[i], err
	}
	h, err := store.Head()
	return h, "HEAD", err
}

func unifiedDiff(path, fromLabel, toLabel, before, after string) (string, error) {
	if before == after {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		FromDate: fromLabel,
		ToDate:   toLabel,
		Context:  3,
	})
}
