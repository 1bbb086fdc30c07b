package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/schaermu/araki/internal/checkpoint"
	"github.com/schaermu/araki/internal/config"
	"github.com/schaermu/araki/internal/git"
	"github.com/schaermu/araki/internal/testutil"
)

var author = git.Identity{Name: "tester", Email: "tester@example.com"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// peer is one machine sharing the remote.
type peer struct {
	t      *testing.T
	store  *git.Store
	engine *Engine
	cp     *checkpoint.Manager
	cfg    *config.Config
}

func newPeer(t *testing.T, remote string) *peer {
	t.Helper()

	repo, err := gogit.Init(memory.NewStorage(), nil)
	if err != nil {
		t.Fatal(err)
	}
	store := git.New(repo, memfs.New(), git.DefaultBranch)
	if err := store.SetHead(git.DefaultBranch); err != nil {
		t.Fatal(err)
	}
	if err := store.AddRemote(git.DefaultRemote, remote); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Remote.URL = remote
	return &peer{
		t:      t,
		store:  store,
		engine: NewEngine(cfg, store, testLogger()),
		cp:     checkpoint.NewManager(store, testLogger()),
		cfg:    cfg,
	}
}

func newPeers(t *testing.T) (*peer, *peer) {
	t.Helper()
	git.ServeLocalRemotes()
	remote := testutil.NewBareRemote(t)
	return newPeer(t, remote), newPeer(t, remote)
}

func (p *peer) write(spec, lock string) {
	p.t.Helper()
	files := map[string]string{testutil.DefaultSpecFile: spec, testutil.DefaultLockFile: lock}
	for name, content := range files {
		if err := util.WriteFile(p.store.Worktree(), name, []byte(content), 0o644); err != nil {
			p.t.Fatal(err)
		}
	}
}

func (p *peer) checkpoint(spec, lock, message string) plumbing.Hash {
	p.t.Helper()
	p.write(spec, lock)
	commit, err := p.cp.Checkpoint(p.cfg.TrackedFiles(), message, author)
	if err != nil {
		p.t.Fatalf("checkpoint %q failed: %v", message, err)
	}
	return commit
}

func (p *peer) push(tag string) *PushResult {
	p.t.Helper()
	res, _, err := p.engine.Push(context.Background(), tag, git.AuthState{})
	if err != nil {
		p.t.Fatalf("push failed: %v", err)
	}
	return res
}

func (p *peer) pull() *Result {
	p.t.Helper()
	res, _, err := p.engine.Pull(context.Background(), git.AuthState{})
	if err != nil {
		p.t.Fatalf("pull failed: %v", err)
	}
	return res
}

func (p *peer) read(name string) string {
	p.t.Helper()
	data, err := util.ReadFile(p.store.Worktree(), name)
	if err != nil {
		p.t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func (p *peer) head() plumbing.Hash {
	p.t.Helper()
	head, err := p.store.Head()
	if err != nil {
		p.t.Fatal(err)
	}
	return head
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Fetching, "fetching"},
		{Analyzing, "analyzing"},
		{UpToDate, "up-to-date"},
		{Ahead, "ahead"},
		{FastForward, "fast-forward"},
		{ThreeWayMerge, "three-way-merge"},
		{Conflict, "conflict"},
		{Done, "done"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestPull_UpToDate(t *testing.T) {
	alice, _ := newPeers(t)
	commit := alice.checkpoint("v1", "v1", "first")
	alice.push("")

	res := alice.pull()
	if res.Outcome() != UpToDate {
		t.Fatalf("outcome = %s (%s)", res.Outcome(), res.Path())
	}
	if res.Path() != "idle -> fetching -> analyzing -> up-to-date -> done" {
		t.Errorf("path = %s", res.Path())
	}
	if alice.head() != commit {
		t.Error("HEAD moved on an up-to-date pull")
	}
}

func TestPull_FastForward(t *testing.T) {
	alice, bob := newPeers(t)
	alice.checkpoint("v1", "v1", "first")
	alice.push("")

	// bob has nothing yet
	res := bob.pull()
	if res.Outcome() != FastForward {
		t.Fatalf("outcome = %s", res.Outcome())
	}
	if bob.read(testutil.DefaultLockFile) != "v1" {
		t.Errorf("lock = %q", bob.read(testutil.DefaultLockFile))
	}

	second := alice.checkpoint("v1", "v2", "second")
	alice.push("")

	res = bob.pull()
	if res.Outcome() != FastForward {
		t.Fatalf("outcome = %s", res.Outcome())
	}
	if bob.head() != second {
		t.Errorf("HEAD = %s, want %s", bob.head(), second)
	}
	if bob.read(testutil.DefaultLockFile) != "v2" {
		t.Errorf("lock = %q", bob.read(testutil.DefaultLockFile))
	}
	branch, attached, err := bob.store.HeadBranch()
	if err != nil || !attached || branch != git.DefaultBranch {
		t.Errorf("HEAD not attached to %s: %s %v %v", git.DefaultBranch, branch, attached, err)
	}
}

func TestPull_Ahead(t *testing.T) {
	alice, _ := newPeers(t)
	alice.checkpoint("v1", "v1", "first")
	alice.push("")
	local := alice.checkpoint("v1", "v2", "second")

	res := alice.pull()
	if res.Outcome() != Ahead {
		t.Fatalf("outcome = %s", res.Outcome())
	}
	if alice.head() != local {
		t.Error("HEAD moved while ahead of the remote")
	}
}

func TestPull_ThreeWayMerge(t *testing.T) {
	alice, bob := newPeers(t)
	alice.checkpoint("base", "base", "base")
	alice.push("")
	bob.pull()

	theirs := alice.checkpoint("spec from alice", "base", "alice")
	alice.push("")
	ours := bob.checkpoint("base", "lock from bob", "bob")

	res := bob.pull()
	if res.Outcome() != ThreeWayMerge {
		t.Fatalf("outcome = %s", res.Outcome())
	}
	if res.Merge.IsZero() {
		t.Fatal("no merge commit recorded")
	}

	c, err := bob.store.Commit(bob.head())
	if err != nil {
		t.Fatal(err)
	}
	if c.Hash != res.Merge {
		t.Errorf("HEAD = %s, want merge %s", c.Hash, res.Merge)
	}
	if len(c.ParentHashes) != 2 || c.ParentHashes[0] != ours || c.ParentHashes[1] != theirs {
		t.Errorf("parents = %v, want [%s %s]", c.ParentHashes, ours, theirs)
	}
	if !strings.HasPrefix(c.Message, "Merge: "+theirs.String()+" into "+ours.String()) {
		t.Errorf("message = %q", c.Message)
	}

	if got := bob.read(testutil.DefaultSpecFile); got != "spec from alice" {
		t.Errorf("spec = %q", got)
	}
	if got := bob.read(testutil.DefaultLockFile); got != "lock from bob" {
		t.Errorf("lock = %q", got)
	}

	// exactly one new commit
	log, err := bob.store.Log(bob.head())
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 4 {
		t.Errorf("history has %d commits, want 4", len(log))
	}

	// the merge can be pushed and alice fast-forwards onto it
	bob.push("")
	if res := alice.pull(); res.Outcome() != FastForward {
		t.Errorf("alice outcome = %s", res.Outcome())
	}
	if alice.head() != res.Merge {
		t.Error("alice did not reach the merge commit")
	}
}

func TestPull_Conflict(t *testing.T) {
	alice, bob := newPeers(t)
	alice.checkpoint("base", "base", "base")
	alice.push("")
	bob.pull()

	theirs := alice.checkpoint("base", "alice", "alice")
	alice.push("")
	ours := bob.checkpoint("base", "bob", "bob")

	res, _, err := bob.engine.Pull(context.Background(), git.AuthState{})
	var conflict *git.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if len(conflict.Paths) != 1 || conflict.Paths[0] != testutil.DefaultLockFile {
		t.Errorf("conflict paths = %v", conflict.Paths)
	}
	if res.Outcome() != Conflict {
		t.Errorf("outcome = %s", res.Outcome())
	}
	if bob.head() != ours {
		t.Error("HEAD moved on a conflicting merge")
	}
	pending, ok, err := bob.store.PendingMerge()
	if err != nil || !ok || pending != theirs {
		t.Errorf("pending merge = %s %v %v, want %s", pending, ok, err, theirs)
	}

	lock := bob.read(testutil.DefaultLockFile)
	if !git.HasConflictMarkers([]byte(lock)) {
		t.Errorf("lock file has no conflict markers:\n%s", lock)
	}
	if !strings.Contains(lock, "bob") || !strings.Contains(lock, "alice") {
		t.Errorf("lock file lost a side:\n%s", lock)
	}

	// a second pull is refused until the merge is resolved
	_, _, err = bob.engine.Pull(context.Background(), git.AuthState{})
	if !errors.Is(err, git.ErrMergeInProgress) {
		t.Fatalf("expected ErrMergeInProgress, got %v", err)
	}

	// resolving and checkpointing completes the merge
	merge := bob.checkpoint("base", "resolved", "resolve")
	c, err := bob.store.Commit(merge)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.ParentHashes) != 2 || c.ParentHashes[1] != theirs {
		t.Errorf("resolution parents = %v", c.ParentHashes)
	}
	if res := bob.pull(); res.Outcome() != Ahead {
		t.Errorf("outcome after resolution = %s", res.Outcome())
	}
}

func TestAbortMerge(t *testing.T) {
	alice, bob := newPeers(t)
	alice.checkpoint("base", "base", "base")
	alice.push("")
	bob.pull()

	alice.checkpoint("base", "alice", "alice")
	alice.push("")
	ours := bob.checkpoint("base", "bob", "bob")

	if _, _, err := bob.engine.Pull(context.Background(), git.AuthState{}); err == nil {
		t.Fatal("expected conflict")
	}
	if err := bob.engine.AbortMerge(); err != nil {
		t.Fatalf("AbortMerge failed: %v", err)
	}

	if _, ok, _ := bob.store.PendingMerge(); ok {
		t.Error("pending merge still recorded")
	}
	if bob.head() != ours {
		t.Error("abort moved HEAD")
	}
	if got := bob.read(testutil.DefaultLockFile); got != "bob" {
		t.Errorf("lock = %q, want local content restored", got)
	}

	if err := bob.engine.AbortMerge(); !errors.Is(err, ErrNoMergeInProgress) {
		t.Errorf("expected ErrNoMergeInProgress, got %v", err)
	}
}

func TestPull_DirtyWorktree(t *testing.T) {
	tests := []struct {
		name     string
		strategy config.Strategy
		wantErr  bool
	}{
		{name: "safe refuses", strategy: config.StrategySafe, wantErr: true},
		{name: "reset discards", strategy: config.StrategyReset},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alice, bob := newPeers(t)
			alice.checkpoint("v1", "v1", "first")
			alice.push("")
			before := bob.pull().Fetched

			alice.checkpoint("v1", "v2", "second")
			alice.push("")

			bob.cfg.Sync.Strategy = tt.strategy
			bob.write("v1", "local edit")

			_, _, err := bob.engine.Pull(context.Background(), git.AuthState{})
			if tt.wantErr {
				if !errors.Is(err, git.ErrDirtyWorktree) {
					t.Fatalf("expected ErrDirtyWorktree, got %v", err)
				}
				if bob.head() != before {
					t.Error("refused pull moved HEAD")
				}
				if got := bob.read(testutil.DefaultLockFile); got != "local edit" {
					t.Errorf("refused pull touched the worktree: %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("pull failed: %v", err)
			}
			if got := bob.read(testutil.DefaultLockFile); got != "v2" {
				t.Errorf("lock = %q, want v2", got)
			}
		})
	}
}

func TestPull_ReattachesDetachedHead(t *testing.T) {
	alice, bob := newPeers(t)
	first := alice.checkpoint("base", "base", "base")
	alice.push("")
	bob.pull()
	bob.checkpoint("base", "bob", "bob")
	if err := bob.store.SetHeadDetached(first); err != nil {
		t.Fatal(err)
	}
	if err := bob.store.Checkout(first, true); err != nil {
		t.Fatal(err)
	}

	alice.checkpoint("alice", "base", "alice")
	alice.push("")

	res := bob.pull()
	if res.Outcome() != ThreeWayMerge {
		t.Fatalf("outcome = %s", res.Outcome())
	}
	branch, attached, err := bob.store.HeadBranch()
	if err != nil || !attached || branch != git.DefaultBranch {
		t.Errorf("HEAD not re-attached: %s %v %v", branch, attached, err)
	}
	if bob.head() != res.Merge {
		t.Error("HEAD does not point at the merge")
	}
}

func TestPush_Tags(t *testing.T) {
	alice, bob := newPeers(t)
	commit := alice.checkpoint("v1", "v1", "first")
	for _, name := range []string{"release-1", "release-2"} {
		if _, err := alice.cp.TagCheckpoint(commit, name, "", author); err != nil {
			t.Fatal(err)
		}
	}

	res := alice.push("release-2")
	if len(res.Tags) != 1 || res.Tags[0] != "release-2" {
		t.Errorf("pushed tags = %v", res.Tags)
	}
	bob.pull()
	tags, err := bob.store.Tags()
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 1 || tags[0].Name != "release-2" {
		t.Fatalf("remote tags after explicit push = %v", tags)
	}

	res = alice.push("")
	if len(res.Tags) != 2 {
		t.Errorf("pushed tags = %v", res.Tags)
	}
	bob.pull()
	tags, err = bob.store.Tags()
	if err != nil {
		t.Fatal(err)
	}
	if len(tags) != 2 {
		t.Errorf("remote tags after full push = %v", tags)
	}
}

func TestPush_UnknownTag(t *testing.T) {
	alice, _ := newPeers(t)
	alice.checkpoint("v1", "v1", "first")

	_, _, err := alice.engine.Push(context.Background(), "nope", git.AuthState{})
	if !errors.Is(err, git.ErrRefNotFound) {
		t.Fatalf("expected ErrRefNotFound, got %v", err)
	}
}

func TestPush_BranchRejectedSkipsTags(t *testing.T) {
	alice, bob := newPeers(t)
	alice.checkpoint("v1", "alice", "alice")
	alice.push("")

	commit := bob.checkpoint("v1", "bob", "bob")
	if _, err := bob.cp.TagCheckpoint(commit, "bob-tag", "", author); err != nil {
		t.Fatal(err)
	}

	res, _, err := bob.engine.Push(context.Background(), "", git.AuthState{})
	if err == nil {
		t.Fatal("expected diverged push to fail")
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if !strings.Contains(err.Error(), "pull first") {
		t.Errorf("error does not suggest pulling: %v", err)
	}

	// the tag never reached the remote
	alice.pull()
	if _, err := alice.store.PeelTag("bob-tag"); !errors.Is(err, git.ErrRefNotFound) {
		t.Errorf("tag pushed despite branch rejection: %v", err)
	}
}

func TestPush_NothingToPush(t *testing.T) {
	alice, _ := newPeers(t)
	if _, _, err := alice.engine.Push(context.Background(), "", git.AuthState{}); !errors.Is(err, git.ErrRefNotFound) {
		t.Fatalf("expected ErrRefNotFound, got %v", err)
	}
}

func TestPull_RejectsHTTPS(t *testing.T) {
	alice, _ := newPeers(t)
	if err := alice.store.Repository().DeleteRemote(git.DefaultRemote); err != nil {
		t.Fatal(err)
	}
	if err := alice.store.AddRemote(git.DefaultRemote, "https://example.com/envs.git"); err != nil {
		t.Fatal(err)
	}

	res, _, err := alice.engine.Pull(context.Background(), git.AuthState{})
	if !errors.Is(err, git.ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if res.Outcome() != Idle {
		t.Errorf("outcome = %s", res.Outcome())
	}
}
