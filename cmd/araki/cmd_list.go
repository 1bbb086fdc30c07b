package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/revision"
)

var (
	listTree bool
	listTags bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tags or the checkpoint history",
	Long: `List prints every tag with the first line of its description. With --tree it
prints the checkpoints reachable from HEAD instead, oldest first, marking
where HEAD, the branch and tags point.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listTree, "tree", false, "print the checkpoint history")
	listCmd.Flags().BoolVar(&listTags, "tags", false, "print tags (default unless --tree)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	store, err := a.openStore()
	if err != nil {
		return a.fail("list failed", err)
	}
	nav := revision.NewNavigator(store, a.cfg.Sync.Strategy, a.logger)
	out := a.out.Writer()

	if listTags || !listTree {
		tags, err := nav.Tags()
		if err != nil {
			return a.fail("list failed", err)
		}
		for _, t := range tags {
			fmt.Fprintln(out, t.String())
		}
	}

	if listTree {
		if listTags {
			fmt.Fprintln(out)
		}
		history, err := nav.History()
		if err != nil {
			return a.fail("list failed", err)
		}
		for _, entry := range history {
			line := "* " + shortHash(entry.Commit.Hash)
			if len(entry.Decorations) > 0 {
				line += " " + a.out.Faint("("+strings.Join(entry.Decorations, ", ")+")")
			}
			fmt.Fprintf(out, "%s %s\n", line, entry.Summary())
		}
	}
	return nil
}
