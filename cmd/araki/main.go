package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/araki/internal/config"
	"github.com/schaermu/araki/internal/git"
	"github.com/schaermu/araki/internal/lockspec"
	"github.com/schaermu/araki/internal/ui"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string
	workDir   string
)

func main() {
	git.ServeLocalRemotes()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "araki",
	Short: "Version and share lockspec environments",
	Long: `araki keeps the history of a lockspec environment (a spec file plus its
lock file) in a hidden repository next to them.

Checkpoints record both files together, tags name checkpoints, and push and
pull share them with other machines over ssh.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "araki %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/araki/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "environment directory (default is the current directory)")

	rootCmd.AddCommand(versionCmd)
}

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	dir    string
	out    *ui.Printer
}

// newApp loads configuration and resolves the environment directory. When
// dirArg is set it takes precedence over --dir.
func newApp(cmd *cobra.Command, dirArg string) (*app, error) {
	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dir := dirArg
	if dir == "" {
		dir = workDir
	}
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return nil, fmt.Errorf("invalid directory: %w", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		dir:    dir,
		out:    ui.NewPrinter(cmd.OutOrStdout()),
	}, nil
}

func (a *app) openStore() (*git.Store, error) {
	return git.Open(a.dir, a.cfg.Branch)
}

func (a *app) lockspec() (*lockspec.LockSpec, error) {
	return lockspec.Validate(a.dir, a.cfg.Lockspec.SpecFile, a.cfg.Lockspec.LockFile)
}

func (a *app) author() git.Identity {
	return git.Identity{Name: a.cfg.Author.Name, Email: a.cfg.Author.Email}
}

// fail logs err at the command boundary and returns it for main to print.
func (a *app) fail(msg string, err error) error {
	a.logger.Error(msg, "error", err)
	return err
}

func setupLogger() *slog.Logger {
	// Parse log level
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// stdout carries command output
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	// Determine config file path
	configPath := cfgFile
	explicit := configPath != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "araki", "config.yaml")
	}

	if _, err := os.Stat(configPath); !explicit && errors.Is(err, os.ErrNotExist) {
		logger.Debug("no configuration file, using defaults", "path", configPath)
		return config.Default(), nil
	}

	logger.Debug("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"remote", cfg.Remote.Name,
		"url", cfg.Remote.URL,
		"branch", cfg.Branch,
		"strategy", cfg.Sync.Strategy)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
