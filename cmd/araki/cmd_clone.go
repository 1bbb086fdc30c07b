package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/git"
	"github.com/schaermu/araki/internal/lockspec"
)

var cloneCmd = &cobra.Command{
	Use:   "clone <url> [path]",
	Short: "Fetch a shared environment into a directory",
	Long: `Clone fetches an environment from url, checks out the tip of the configured
branch, and copies the descriptors and their history into path (default is
the current directory). Nothing is written to path if the clone fails.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runClone,
}

func init() {
	rootCmd.AddCommand(cloneCmd)
}

func runClone(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	url := args[0]
	var path string
	if len(args) == 2 {
		path = args[1]
	}

	a, err := newApp(cmd, path)
	if err != nil {
		return err
	}

	if _, err := os.Stat(filepath.Join(a.dir, git.DirName)); err == nil {
		return a.fail("clone failed", fmt.Errorf("%s is already managed by araki", a.dir))
	}

	for _, name := range a.cfg.TrackedFiles() {
		if _, err := os.Stat(filepath.Join(a.dir, name)); err == nil {
			return a.fail("clone failed", fmt.Errorf("%s already contains %s", a.dir, name))
		}
	}

	auth, _, err := git.ResolveAuth(url, git.AuthState{})
	if err != nil {
		return a.fail("clone failed", err)
	}

	tmp, err := os.MkdirTemp("", "araki-clone-*")
	if err != nil {
		return a.fail("clone failed", fmt.Errorf("failed to create temp directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			a.logger.Warn("failed to remove temp directory", "path", tmp, "error", err)
		}
	}()

	a.out.Step("1/3", "Fetching %s", url)
	store, err := git.Clone(ctx, url, tmp, a.cfg.Remote.Name, a.cfg.Branch, auth)
	if err != nil {
		return a.fail("clone failed", err)
	}
	if _, err := lockspec.Validate(tmp, a.cfg.Lockspec.SpecFile, a.cfg.Lockspec.LockFile); err != nil {
		return a.fail("clone failed", err)
	}
	head, err := store.Head()
	if err != nil {
		return a.fail("clone failed", err)
	}

	a.out.Step("2/3", "Copying environment into %s", a.dir)
	if err := lockspec.CopyDirContents(tmp, a.dir); err != nil {
		return a.fail("clone failed", err)
	}

	a.out.Step("3/3", "Updating .gitignore")
	if _, err := lockspec.EnsureIgnoreEntry(a.dir); err != nil {
		// everything removed here was created by this clone
		if ls, verr := a.lockspec(); verr == nil {
			if rerr := ls.RemoveFiles(); rerr != nil {
				a.logger.Warn("failed to roll back clone", "dir", a.dir, "error", rerr)
			}
		}
		return a.fail("failed to update .gitignore", err)
	}

	a.out.Success("Cloned %s at %s", url, shortHash(head))
	return nil
}
