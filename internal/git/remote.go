package git

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

// DefaultRemote is the remote name used when none is configured.
const DefaultRemote = "origin"

// AddRemote records a named remote.
func (s *Store) AddRemote(name, url string) error {
	_, err := s.repo.CreateRemote(&config.RemoteConfig{Name: name, URLs: []string{url}})
	if err != nil {
		return fmt.Errorf("failed to add remote %s: %w", name, err)
	}
	return nil
}

// RemoteURL returns the first URL configured for a remote.
func (s *Store) RemoteURL(name string) (string, error) {
	remote, err := s.repo.Remote(name)
	if err != nil {
		return "", fmt.Errorf("remote %s: %w", name, err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no url", name)
	}
	return urls[0], nil
}

// RemoteBranchRef is the transient reference a fetch of the synchronized
// branch lands in.
func (s *Store) RemoteBranchRef(remote string) plumbing.ReferenceName {
	return plumbing.NewRemoteReferenceName(remote, s.branch)
}

// Fetch retrieves the synchronized branch of remote into its remote-tracking
// reference, along with every tag, and returns the fetched tip. It makes a
// single attempt.
func (s *Store) Fetch(ctx context.Context, remote string, auth transport.AuthMethod) (plumbing.Hash, error) {
	tracking := s.RemoteBranchRef(remote)
	refspec := config.RefSpec(fmt.Sprintf("+%s:%s", s.BranchRef(), tracking))

	err := s.repo.FetchContext(ctx, &gogit.FetchOptions{
		RemoteName: remote,
		RefSpecs:   []config.RefSpec{refspec},
		Auth:       auth,
		Tags:       gogit.AllTags,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return plumbing.ZeroHash, classifyTransportError(err)
	}

	return s.ResolveRef(tracking)
}

// Push updates refs on remote to their local values. Remote refs are only
// fast-forwarded; a diverged remote branch makes the push fail.
func (s *Store) Push(ctx context.Context, remote string, refs []plumbing.ReferenceName, auth transport.AuthMethod) error {
	specs := make([]config.RefSpec, 0, len(refs))
	for _, ref := range refs {
		specs = append(specs, config.RefSpec(fmt.Sprintf("%s:%s", ref, ref)))
	}

	err := s.repo.PushContext(ctx, &gogit.PushOptions{
		RemoteName: remote,
		RefSpecs:   specs,
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return classifyTransportError(err)
	}
	return nil
}

// Clone fetches url into dir/.araki-git, attaches HEAD to branch and writes
// the branch tip into dir.
func Clone(ctx context.Context, url, dir, remote, branch string, auth transport.AuthMethod) (*Store, error) {
	if branch == "" {
		branch = DefaultBranch
	}
	if remote == "" {
		remote = DefaultRemote
	}

	storage := filesystem.NewStorage(osfs.New(filepath.Join(dir, DirName)), cache.NewObjectLRUDefault())
	repo, err := gogit.CloneContext(ctx, storage, nil, &gogit.CloneOptions{
		URL:           url,
		Auth:          auth,
		RemoteName:    remote,
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Tags:          gogit.AllTags,
	})
	if err != nil {
		return nil, classifyTransportError(err)
	}

	s := New(repo, osfs.New(dir), branch)
	tip, err := s.ResolveRef(s.BranchRef())
	if err != nil {
		return nil, err
	}
	if err := s.SetHead(branch); err != nil {
		return nil, err
	}
	if err := s.Checkout(tip, true); err != nil {
		return nil, err
	}
	return s, nil
}

func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed),
		errors.Is(err, transport.ErrInvalidAuthMethod):
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	case errors.Is(err, transport.ErrEmptyRemoteRepository),
		errors.Is(err, gogit.NoMatchingRefSpecError{}):
		return fmt.Errorf("%w: %v", ErrRefNotFound, err)
	case errors.Is(err, gogit.ErrForceNeeded), strings.Contains(err.Error(), "non-fast-forward"):
		return fmt.Errorf("remote has changes that are not local, pull first: %w", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrRemoteUnreachable, err)
	}
}
