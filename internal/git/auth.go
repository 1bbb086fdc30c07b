package git

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// AuthState carries the credential guard across one fetch or push call.
type AuthState struct {
	// TriedAgent is set once the ssh agent has been offered to the remote.
	TriedAgent bool
}

// newAgentAuth is replaced in tests that cannot reach an ssh agent.
var newAgentAuth = func(user string) (transport.AuthMethod, error) {
	return ssh.NewSSHAgentAuth(user)
}

// ResolveAuth picks credentials for url. Only the local ssh agent is
// supported; local and file remotes need none. The agent is offered at most
// once per state, so a rejected key is never retried.
func ResolveAuth(url string, state AuthState) (transport.AuthMethod, AuthState, error) {
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, state, fmt.Errorf("%w: invalid remote url %q: %v", ErrRemoteUnreachable, url, err)
	}

	switch ep.Protocol {
	case "file":
		return nil, state, nil
	case "ssh":
	default:
		return nil, state, fmt.Errorf("%w: araki only supports ssh for git interactions. Please configure ssh-agent", ErrAuthenticationFailed)
	}

	if state.TriedAgent {
		return nil, state, fmt.Errorf("%w: ssh-agent credentials were rejected. Please ensure your ssh-agent is running and holds a key authorized for %s", ErrAuthenticationFailed, ep.Host)
	}
	if ep.User == "" {
		return nil, state, fmt.Errorf("%w: no username in remote url %q. Please use a url like git@%s:org/repo", ErrAuthenticationFailed, url, ep.Host)
	}

	state.TriedAgent = true
	auth, err := newAgentAuth(ep.User)
	if err != nil {
		return nil, state, fmt.Errorf("%w: unable to reach ssh-agent: %v. Please start ssh-agent and add your key with ssh-add", ErrAuthenticationFailed, err)
	}
	return auth, state, nil
}
