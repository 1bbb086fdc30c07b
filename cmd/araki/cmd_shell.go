package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/shell"
)

// detector is swapped in tests.
var detector shell.Detector = shell.ProcDetector{}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Put araki shims in front of other package managers",
}

var shellInitCmd = &cobra.Command{
	Use:   "init [bash|zsh]",
	Short: "Add araki to the shell rc file and write the shims",
	Long: `Init appends a line to ~/.bashrc or ~/.zshrc that puts the araki shim
directory first on PATH, and writes one shim per configured tool (pip, uv,
pixi and conda by default). The shell is detected from the parent process
when not given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShellInit,
}

var shellGenerateCmd = &cobra.Command{
	Use:   "generate [bash|zsh]",
	Short: "Print the PATH change for the shell to evaluate",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runShellGenerate,
}

var shimCmd = &cobra.Command{
	Use:   "shim <tool> [args...]",
	Short: "Run a shimmed tool",
	Long: `Shim is what the scripts in the shim directory call. It refuses to run the
tool so environments stay under araki's control, unless ARAKI_OVERRIDE_SHIM=1
is set, in which case the real tool runs with the shim directory removed from
PATH.`,
	Args:               cobra.MinimumNArgs(1),
	DisableFlagParsing: true,
	RunE:               runShim,
}

func init() {
	shellCmd.AddCommand(shellInitCmd)
	shellCmd.AddCommand(shellGenerateCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(shimCmd)
}

func pickShell(args []string) (shell.Shell, error) {
	if len(args) == 1 {
		return shell.Parse(args[0]), nil
	}
	return shell.Detect(detector)
}

func runShellInit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	sh, err := pickShell(args)
	if err != nil {
		return a.fail("shell init failed", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return a.fail("shell init failed", fmt.Errorf("failed to get user home directory: %w", err))
	}
	if _, err := shell.EnsureConfig(sh, home); err != nil {
		return a.fail("shell init failed", err)
	}
	if err := shell.WriteShims(sh, a.cfg.Paths.BinDir, a.cfg.Shims); err != nil {
		return a.fail("shell init failed", err)
	}

	a.out.Success("%s configuration updated.", sh)
	return nil
}

func runShellGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}
	sh, err := pickShell(args)
	if err != nil {
		return a.fail("shell generate failed", err)
	}

	env, err := shell.Env(sh, a.cfg.Paths.BinDir)
	if err != nil {
		return a.fail("shell generate failed", err)
	}
	fmt.Fprintln(a.out.Writer(), env)
	return nil
}

func runShim(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	a, err := newApp(cmd, "")
	if err != nil {
		return err
	}

	runner := shell.NewRunner(a.cfg.Paths.BinDir, a.logger)
	runner.Stdout = cmd.OutOrStdout()
	runner.Stderr = cmd.ErrOrStderr()
	if err := runner.RunWithAdjustedPath(ctx, args[0], args[1:]); err != nil {
		return a.fail("shim failed", err)
	}
	return nil
}
