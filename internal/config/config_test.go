package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.Remove(tmpfile.Name())
	}()

	content := `
remote:
  name: "upstream"
  url: "git@github.com:team/envs.git"

branch: "trunk"

author:
  name: "Ada"
  email: "ada@example.com"

lockspec:
  spec_file: "environment.toml"
  lock_file: "environment.lock"

sync:
  strategy: "reset"

paths:
  bin_dir: "/home/user/.araki/bin"

shims: ["pip", "uv"]
`

	if _, err := tmpfile.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpfile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Remote.URL != "git@github.com:team/envs.git" {
		t.Errorf("expected URL git@github.com:team/envs.git, got %s", cfg.Remote.URL)
	}
	if cfg.Remote.Name != "upstream" {
		t.Errorf("expected remote upstream, got %s", cfg.Remote.Name)
	}
	if cfg.Branch != "trunk" {
		t.Errorf("expected branch trunk, got %s", cfg.Branch)
	}
	if cfg.Sync.Strategy != StrategyReset {
		t.Errorf("expected strategy reset, got %s", cfg.Sync.Strategy)
	}
	if got := cfg.TrackedFiles(); !reflect.DeepEqual(got, []string{"environment.toml", "environment.lock"}) {
		t.Errorf("TrackedFiles() = %v", got)
	}
	if !reflect.DeepEqual(cfg.Shims, []string{"pip", "uv"}) {
		t.Errorf("expected shims [pip uv], got %v", cfg.Shims)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("remote: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed yaml")
	}

	path = filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(path, []byte("sync:\n  strategy: stash\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Remote.Name", cfg.Remote.Name, "origin"},
		{"Branch", cfg.Branch, "main"},
		{"Author.Name", cfg.Author.Name, "araki"},
		{"Author.Email", cfg.Author.Email, "araki@localhost"},
		{"Lockspec.SpecFile", cfg.Lockspec.SpecFile, "pixi.toml"},
		{"Lockspec.LockFile", cfg.Lockspec.LockFile, "pixi.lock"},
		{"Sync.Strategy", string(cfg.Sync.Strategy), "safe"},
		{"Paths.BinDir", cfg.Paths.BinDir, "/home/tester/.araki/bin"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("Default() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
	if !reflect.DeepEqual(cfg.Shims, DefaultShims) {
		t.Errorf("Default() shims = %v, want %v", cfg.Shims, DefaultShims)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{Sync: SyncConfig{Strategy: StrategyReset}, Branch: "trunk"}
	cfg.applyDefaults()

	// Explicit values must not be overwritten
	if cfg.Sync.Strategy != StrategyReset {
		t.Errorf("applyDefaults() overwrote explicit strategy, got %q", cfg.Sync.Strategy)
	}
	if cfg.Branch != "trunk" {
		t.Errorf("applyDefaults() overwrote explicit branch, got %q", cfg.Branch)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Paths: PathsConfig{BinDir: "/abs/bin"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "ssh remote", mutate: func(c *Config) { c.Remote.URL = "git@github.com:org/env.git" }},
		{name: "ssh scheme remote", mutate: func(c *Config) { c.Remote.URL = "ssh://git@host/org/env.git" }},
		{name: "local remote", mutate: func(c *Config) { c.Remote.URL = "/srv/mirrors/env.git" }},
		{name: "file remote", mutate: func(c *Config) { c.Remote.URL = "file:///srv/mirrors/env.git" }},
		{name: "https remote", mutate: func(c *Config) { c.Remote.URL = "https://github.com/org/env.git" }, wantErr: true},
		{name: "branch with space", mutate: func(c *Config) { c.Branch = "my branch" }, wantErr: true},
		{name: "same descriptor twice", mutate: func(c *Config) { c.Lockspec.LockFile = c.Lockspec.SpecFile }, wantErr: true},
		{name: "absolute descriptor", mutate: func(c *Config) { c.Lockspec.SpecFile = "/etc/pixi.toml" }, wantErr: true},
		{name: "escaping descriptor", mutate: func(c *Config) { c.Lockspec.LockFile = "../pixi.lock" }, wantErr: true},
		{name: "unknown strategy", mutate: func(c *Config) { c.Sync.Strategy = "stash" }, wantErr: true},
		{name: "relative bin dir", mutate: func(c *Config) { c.Paths.BinDir = "bin" }, wantErr: true},
		{name: "shim with slash", mutate: func(c *Config) { c.Shims = []string{"bin/pip"} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"", StrategySafe, false},
		{"safe", StrategySafe, false},
		{"RESET", StrategyReset, false},
		{"stash", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStrategy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStrategy(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsSSHURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want bool
	}{
		{
			name: "git@ url",
			url:  "git@github.com:test/repo.git",
			want: true,
		},
		{
			name: "ssh:// url",
			url:  "ssh://git@github.com/test/repo.git",
			want: true,
		},
		{
			name: "https url",
			url:  "https://github.com/test/repo.git",
			want: false,
		},
		{
			name: "local path with at sign",
			url:  "/srv/user@host:repo",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSSHURL(tt.url); got != tt.want {
				t.Errorf("IsSSHURL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("ARAKI_TEST_HOME", "/home/testuser")

	cfg := Config{
		Remote: RemoteConfig{
			URL: "${ARAKI_TEST_HOME}/mirror.git",
		},
		Author: AuthorConfig{
			Email: "${ARAKI_TEST_HOME}@example.com",
		},
		Lockspec: LockspecConfig{
			SpecFile: "${ARAKI_TEST_HOME}.toml",
		},
		Paths: PathsConfig{
			BinDir: "${ARAKI_TEST_HOME}/.araki/bin",
		},
	}

	cfg.expandEnv()

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"Remote.URL", cfg.Remote.URL, "/home/testuser/mirror.git"},
		{"Author.Email", cfg.Author.Email, "/home/testuser@example.com"},
		{"Lockspec.SpecFile", cfg.Lockspec.SpecFile, "/home/testuser.toml"},
		{"Paths.BinDir", cfg.Paths.BinDir, "/home/testuser/.araki/bin"},
	}

	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("expandEnv() %s = %s, want %s", c.name, c.got, c.want)
		}
	}
}
