package main

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/checkpoint"
	"github.com/schaermu/araki/internal/git"
)

var (
	commitMessage     string
	commitTag         string
	commitDescribeTag string

	tagDescription string
)

var commitCmd = &cobra.Command{
	Use:   "commit -m <message>",
	Short: "Checkpoint the current lockspec",
	Long: `Commit records the spec file and the lock file as a new checkpoint on top of
HEAD. With --tag the new checkpoint is tagged as well.

While a pull conflict is pending, commit completes the merge once the
conflict markers are gone.`,
	Args: cobra.NoArgs,
	RunE: runCommit,
}

var tagCmd = &cobra.Command{
	Use:   "tag <name>",
	Short: "Name the current lockspec",
	Long: `Tag creates an annotated tag on HEAD. If the descriptors changed since the
last checkpoint they are checkpointed first, so the tag always describes what
is on disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runTag,
}

func init() {
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "checkpoint message")
	commitCmd.Flags().StringVarP(&commitTag, "tag", "t", "", "tag the checkpoint with name")
	commitCmd.Flags().StringVarP(&commitDescribeTag, "describe-tag", "d", "", "description of the tag")
	_ = commitCmd.MarkFlagRequired("message")

	tagCmd.Flags().StringVar(&tagDescription, "description", "", "tag description (default names the tag)")

	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(tagCmd)
}

func runCommit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	if commitMessage == "" {
		return a.fail("commit failed", errors.New("a checkpoint message is required"))
	}
	if commitTag != "" {
		if err := git.ValidateTagName(commitTag); err != nil {
			return a.fail("commit failed", err)
		}
	}

	store, err := a.openStore()
	if err != nil {
		return a.fail("commit failed", err)
	}
	ls, err := a.lockspec()
	if err != nil {
		return a.fail("commit failed", err)
	}

	manager := checkpoint.NewManager(store, a.logger)
	head, err := manager.Checkpoint(ls.Files(), commitMessage, a.author())
	if err != nil {
		return a.fail("commit failed", err)
	}
	a.out.Success("Checkpoint %s: %s", shortHash(head), commitMessage)

	if commitTag != "" {
		if err := tagCommit(a, manager, head, commitTag, commitDescribeTag); err != nil {
			return err
		}
	}
	return nil
}

func runTag(cmd *cobra.Command, args []string) error {
	name := args[0]

	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	if err := git.ValidateTagName(name); err != nil {
		return a.fail("tag failed", err)
	}

	store, err := a.openStore()
	if err != nil {
		return a.fail("tag failed", err)
	}
	ls, err := a.lockspec()
	if err != nil {
		return a.fail("tag failed", err)
	}
	if _, err := store.PeelTag(name); err == nil {
		return a.fail("tag failed", fmt.Errorf("%w: %s", git.ErrTagExists, name))
	}

	manager := checkpoint.NewManager(store, a.logger)
	changed, err := manager.Changed(ls.Files())
	if err != nil {
		return a.fail("tag failed", err)
	}

	var head plumbing.Hash
	if changed {
		head, err = manager.Checkpoint(ls.Files(), "Checkpoint for tag "+name, a.author())
		if err != nil {
			return a.fail("checkpoint failed", err)
		}
		a.out.Success("Checkpoint %s", shortHash(head))
	} else if head, err = store.Head(); err != nil {
		return a.fail("tag failed", err)
	}

	return tagCommit(a, manager, head, name, tagDescription)
}

func tagCommit(a *app, manager *checkpoint.Manager, head plumbing.Hash, name, description string) error {
	if _, err := manager.TagCheckpoint(head, name, description, a.author()); err != nil {
		return a.fail("tag failed", err)
	}
	a.out.Success("Tagged %s as %s", shortHash(head), name)
	return nil
}

func shortHash(h plumbing.Hash) string {
	return h.String()[:7]
}
