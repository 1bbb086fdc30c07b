package main

import (
	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/config"
	"github.com/schaermu/araki/internal/revision"
)

var checkoutForce bool

var checkoutCmd = &cobra.Command{
	Use:   "checkout <tag | checkpoint | latest>",
	Short: "Restore the lockspec of a tag or checkpoint",
	Long: `Checkout overwrites the spec file and the lock file with their content at the
given revision and leaves HEAD detached there. "latest" is the tip of the
branch.

Un-checkpointed changes make checkout refuse unless --force is given, which
discards them.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckout,
}

func init() {
	checkoutCmd.Flags().BoolVarP(&checkoutForce, "force", "f", false, "discard un-checkpointed changes")
	rootCmd.AddCommand(checkoutCmd)
}

func runCheckout(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}

	store, err := a.openStore()
	if err != nil {
		return a.fail("checkout failed", err)
	}

	strategy := a.cfg.Sync.Strategy
	if checkoutForce {
		strategy = config.StrategyReset
	}
	nav := revision.NewNavigator(store, strategy, a.logger)

	target, err := nav.Resolve(args[0])
	if err != nil {
		return a.fail("checkout failed", err)
	}
	if err := nav.Checkout(target); err != nil {
		return a.fail("checkout failed", err)
	}

	a.out.Success("Checked out %s (%s)", args[0], shortHash(target))
	return nil
}
