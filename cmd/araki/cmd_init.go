package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/checkpoint"
	"github.com/schaermu/araki/internal/git"
	"github.com/schaermu/araki/internal/lockspec"
	"github.com/schaermu/araki/internal/sync"
)

var (
	initRemote  string
	initMessage string
)

var initCmd = &cobra.Command{
	Use:   "init <name> [path]",
	Short: "Start tracking a lockspec environment",
	Long: `Init turns a directory holding a spec file and a lock file into an araki
environment: it records the environment name in the spec file, creates the
hidden history next to the descriptors, and checkpoints them.

With --remote (or remote.url in the config) the first checkpoint is pushed.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initRemote, "remote", "", "remote url to push the environment to")
	initCmd.Flags().StringVarP(&initMessage, "message", "m", "", "message of the first checkpoint")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	name := args[0]
	var path string
	if len(args) == 2 {
		path = args[1]
	}

	a, err := newApp(cmd, path)
	if err != nil {
		return err
	}

	// validate before touching anything
	ls, err := a.lockspec()
	if err != nil {
		return a.fail("invalid environment", err)
	}
	if _, err := git.Open(a.dir, a.cfg.Branch); err == nil {
		return a.fail("invalid environment", fmt.Errorf("%s is already managed by araki", a.dir))
	} else if !errors.Is(err, git.ErrNotARepository) {
		return a.fail("invalid environment", err)
	}

	remote := initRemote
	if remote == "" {
		remote = a.cfg.Remote.URL
	}
	steps := 3
	if remote != "" {
		steps = 4
	}

	a.out.Step(fmt.Sprintf("1/%d", steps), "Recording environment name %s", name)
	if _, err := ls.EnsureMetadata(name); err != nil {
		return a.fail("failed to write metadata", err)
	}
	if _, err := lockspec.EnsureIgnoreEntry(a.dir); err != nil {
		return a.fail("failed to update .gitignore", err)
	}

	a.out.Step(fmt.Sprintf("2/%d", steps), "Creating history in %s", git.DirName)
	store, err := git.Init(a.dir, a.cfg.Branch)
	if err != nil {
		return a.fail("failed to create history", err)
	}
	if remote != "" {
		if err := store.AddRemote(a.cfg.Remote.Name, remote); err != nil {
			return a.fail("failed to add remote", err)
		}
	}

	a.out.Step(fmt.Sprintf("3/%d", steps), "Committing lockspec")
	message := initMessage
	if message == "" {
		message = "Initialize " + name
	}
	head, err := checkpoint.NewManager(store, a.logger).Checkpoint(ls.Files(), message, a.author())
	if err != nil {
		return a.fail("checkpoint failed", err)
	}

	if remote != "" {
		a.out.Step(fmt.Sprintf("4/%d", steps), "Pushing to %s", remote)
		if _, _, err := sync.NewEngine(a.cfg, store, a.logger).Push(ctx, "", git.AuthState{}); err != nil {
			return a.fail("push failed", err)
		}
	}

	a.out.Success("Initialized %s at %s", name, shortHash(head))
	return nil
}
