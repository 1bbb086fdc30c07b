package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Strategy defines what a pull or checkout does with un-checkpointed changes
type Strategy string

const (
	// StrategySafe refuses to overwrite changed tracked files.
	StrategySafe Strategy = "safe"
	// StrategyReset discards changed tracked files.
	StrategyReset Strategy = "reset"
)

// ParseStrategy converts a flag or config value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategySafe, "":
		return StrategySafe, nil
	case StrategyReset:
		return StrategyReset, nil
	default:
		return "", fmt.Errorf("invalid strategy %q (must be safe or reset)", s)
	}
}

// DefaultShims are the tools araki intercepts on PATH.
var DefaultShims = []string{"pip", "uv", "pixi", "conda"}

// Config represents the complete araki configuration
type Config struct {
	Remote   RemoteConfig   `yaml:"remote"`
	Branch   string         `yaml:"branch"`
	Author   AuthorConfig   `yaml:"author"`
	Lockspec LockspecConfig `yaml:"lockspec"`
	Sync     SyncConfig     `yaml:"sync"`
	Paths    PathsConfig    `yaml:"paths"`
	Shims    []string       `yaml:"shims"`
}

// RemoteConfig names the remote environments are pushed to and pulled from
type RemoteConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// AuthorConfig is the identity recorded on checkpoints and tags
type AuthorConfig struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// LockspecConfig names the two descriptor files
type LockspecConfig struct {
	SpecFile string `yaml:"spec_file"`
	LockFile string `yaml:"lock_file"`
}

// SyncConfig configures pull and checkout behavior
type SyncConfig struct {
	Strategy Strategy `yaml:"strategy"`
}

// PathsConfig configures local filesystem paths
type PathsConfig struct {
	BinDir string `yaml:"bin_dir"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	path = os.ExpandEnv(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.expandEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Remote.Name = os.ExpandEnv(c.Remote.Name)
	c.Remote.URL = os.ExpandEnv(c.Remote.URL)
	c.Branch = os.ExpandEnv(c.Branch)
	c.Author.Name = os.ExpandEnv(c.Author.Name)
	c.Author.Email = os.ExpandEnv(c.Author.Email)
	c.Lockspec.SpecFile = os.ExpandEnv(c.Lockspec.SpecFile)
	c.Lockspec.LockFile = os.ExpandEnv(c.Lockspec.LockFile)
	c.Paths.BinDir = os.ExpandEnv(c.Paths.BinDir)
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Remote.Name == "" {
		c.Remote.Name = "origin"
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.Author.Name == "" {
		c.Author.Name = "araki"
	}
	if c.Author.Email == "" {
		c.Author.Email = "araki@localhost"
	}
	if c.Lockspec.SpecFile == "" {
		c.Lockspec.SpecFile = "pixi.toml"
	}
	if c.Lockspec.LockFile == "" {
		c.Lockspec.LockFile = "pixi.lock"
	}
	if c.Sync.Strategy == "" {
		c.Sync.Strategy = StrategySafe
	}
	if c.Paths.BinDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			c.Paths.BinDir = filepath.Join(home, ".araki", "bin")
		}
	}
	if len(c.Shims) == 0 {
		c.Shims = append([]string(nil), DefaultShims...)
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Remote.URL != "" && !c.IsSSH() && !c.IsLocal() {
		return fmt.Errorf("remote.url must be an ssh url (git@ or ssh://) or a local path: %s", c.Remote.URL)
	}

	if strings.ContainsAny(c.Branch, " \t~^:?*[\\") || strings.HasPrefix(c.Branch, "-") {
		return fmt.Errorf("invalid branch name: %s", c.Branch)
	}

	if c.Lockspec.SpecFile == c.Lockspec.LockFile {
		return fmt.Errorf("lockspec.spec_file and lockspec.lock_file must differ")
	}
	for _, name := range []string{c.Lockspec.SpecFile, c.Lockspec.LockFile} {
		if filepath.IsAbs(name) || strings.HasPrefix(filepath.Clean(name), "..") {
			return fmt.Errorf("lockspec files must be relative to the environment directory: %s", name)
		}
	}

	if _, err := ParseStrategy(string(c.Sync.Strategy)); err != nil {
		return fmt.Errorf("invalid sync.strategy: %w", err)
	}

	if c.Paths.BinDir != "" && !filepath.IsAbs(c.Paths.BinDir) {
		return fmt.Errorf("paths.bin_dir must be an absolute path: %s", c.Paths.BinDir)
	}

	for _, shim := range c.Shims {
		if shim == "" || strings.ContainsRune(shim, '/') {
			return fmt.Errorf("invalid shim name: %q", shim)
		}
	}

	return nil
}

// TrackedFiles returns the descriptor file names in a fixed order.
func (c *Config) TrackedFiles() []string {
	return []string{c.Lockspec.SpecFile, c.Lockspec.LockFile}
}

// IsSSH returns true if the remote URL uses SSH
func (c *Config) IsSSH() bool {
	return IsSSHURL(c.Remote.URL)
}

// IsLocal returns true if the remote URL is a local path or file:// URL
func (c *Config) IsLocal() bool {
	return IsLocalURL(c.Remote.URL)
}

// IsSSHURL reports whether url addresses an ssh remote.
func IsSSHURL(url string) bool {
	if strings.HasPrefix(url, "ssh://") {
		return true
	}
	// scp-like user@host:path
	at := strings.Index(url, "@")
	colon := strings.Index(url, ":")
	return at > 0 && colon > at && !strings.Contains(url[:colon], "/")
}

// IsLocalURL reports whether url addresses a repository on this machine.
func IsLocalURL(url string) bool {
	return strings.HasPrefix(url, "file://") || filepath.IsAbs(url) ||
		strings.HasPrefix(url, "./") || strings.HasPrefix(url, "../")
}
