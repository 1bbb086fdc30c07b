package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/config"
	"github.com/schaermu/araki/internal/git"
	"github.com/schaermu/araki/internal/sync"
)

var (
	pullForce  bool
	mergeAbort bool
)

var pushCmd = &cobra.Command{
	Use:   "push [tag]",
	Short: "Send checkpoints and tags to the remote",
	Long: `Push updates the remote branch first, then sends either the given tag or
every local tag. Tags are not sent when the branch update is rejected.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Integrate checkpoints from the remote",
	Long: `Pull fetches the remote branch and integrates it: a fast-forward when the
local history is behind, a merge checkpoint when both sides moved.

If both sides changed the same file the conflict is written into the file
with markers and no checkpoint is made. Resolve the file, then run
araki commit to complete the merge, or araki merge --abort to drop it.

Un-checkpointed changes make pull refuse unless --force is given, which
discards them.`,
	Args: cobra.NoArgs,
	RunE: runPull,
}

var mergeCmd = &cobra.Command{
	Use:   "merge --abort",
	Short: "Abort a conflicting pull",
	Args:  cobra.NoArgs,
	RunE:  runMerge,
}

func init() {
	pullCmd.Flags().BoolVarP(&pullForce, "force", "f", false, "discard un-checkpointed changes")
	mergeCmd.Flags().BoolVar(&mergeAbort, "abort", false, "drop the pending merge and restore HEAD")

	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(mergeCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail("push failed", err)
	}

	var tag string
	if len(args) == 1 {
		tag = args[0]
	}

	res, _, err := sync.NewEngine(a.cfg, store, a.logger).Push(ctx, tag, git.AuthState{})
	if res != nil {
		a.out.Step("push", "%s updated", store.Branch())
	}
	if err != nil {
		return a.fail("push failed", err)
	}
	if len(res.Tags) > 0 {
		a.out.Step("push", "tags: %s", strings.Join(res.Tags, ", "))
	}
	a.out.Success("Pushed to %s", a.cfg.Remote.Name)
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail("pull failed", err)
	}

	cfg := *a.cfg
	if pullForce {
		cfg.Sync.Strategy = config.StrategyReset
	}

	res, _, err := sync.NewEngine(&cfg, store, a.logger).Pull(ctx, git.AuthState{})
	a.out.Step("pull", "%s", res.Path())

	var conflict *git.ConflictError
	if errors.As(err, &conflict) {
		a.out.Warn("Conflicts in: %s", strings.Join(conflict.Paths, ", "))
		a.out.Warn("Resolve them and run araki commit, or run araki merge --abort")
		return a.fail("pull stopped on conflicts", err)
	}
	if err != nil {
		return a.fail("pull failed", err)
	}

	switch res.Outcome() {
	case sync.UpToDate:
		a.out.Success("Already up to date")
	case sync.Ahead:
		a.out.Success("Local checkpoints are ahead of %s, nothing to pull", a.cfg.Remote.Name)
	case sync.FastForward:
		a.out.Success("Fast-forwarded to %s", shortHash(res.Fetched))
	case sync.ThreeWayMerge:
		a.out.Success("Merged %s into %s as %s", shortHash(res.Fetched), shortHash(res.Local), shortHash(res.Merge))
	}
	return nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	if !mergeAbort {
		return a.fail("merge failed", errors.New("only --abort is supported; run araki commit to complete a merge"))
	}

	store, err := a.openStore()
	if err != nil {
		return a.fail("merge failed", err)
	}
	if err := sync.NewEngine(a.cfg, store, a.logger).AbortMerge(); err != nil {
		return a.fail("merge abort failed", err)
	}
	a.out.Success("Merge aborted")
	return nil
}
