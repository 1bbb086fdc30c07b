package git

import (
	"errors"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/stretchr/testify/require"
)

func stubAgent(t *testing.T, err error) *[]string {
	t.Helper()

	var users []string
	orig := newAgentAuth
	newAgentAuth = func(user string) (transport.AuthMethod, error) {
		users = append(users, user)
		if err != nil {
			return nil, err
		}
		return &ssh.PublicKeysCallback{User: user}, nil
	}
	t.Cleanup(func() { newAgentAuth = orig })
	return &users
}

func TestResolveAuth(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		state     AuthState
		agentErr  error
		wantErr   error
		wantAuth  bool
		wantTried bool
		wantQuery []string
	}{
		{
			name:      "scp-like ssh url",
			url:       "git@github.com:org/env.git",
			wantAuth:  true,
			wantTried: true,
			wantQuery: []string{"git"},
		},
		{
			name:      "ssh scheme",
			url:       "ssh://deploy@example.com/org/env.git",
			wantAuth:  true,
			wantTried: true,
			wantQuery: []string{"deploy"},
		},
		{
			name:      "agent already tried",
			url:       "git@github.com:org/env.git",
			state:     AuthState{TriedAgent: true},
			wantErr:   ErrAuthenticationFailed,
			wantTried: true,
		},
		{
			name:      "agent unavailable",
			url:       "git@github.com:org/env.git",
			agentErr:  errors.New("SSH_AUTH_SOCK not-specified"),
			wantErr:   ErrAuthenticationFailed,
			wantTried: true,
			wantQuery: []string{"git"},
		},
		{
			name:    "https rejected",
			url:     "https://github.com/org/env.git",
			wantErr: ErrAuthenticationFailed,
		},
		{
			name: "local path",
			url:  "/srv/mirrors/env.git",
		},
		{
			name: "file url",
			url:  "file:///srv/mirrors/env.git",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queried := stubAgent(t, tt.agentErr)

			auth, state, err := ResolveAuth(tt.url, tt.state)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, tt.wantAuth, auth != nil)
			require.Equal(t, tt.wantTried, state.TriedAgent)
			require.Equal(t, tt.wantQuery, *queried)
		})
	}
}

func TestResolveAuth_SingleAttempt(t *testing.T) {
	stubAgent(t, nil)

	_, state, err := ResolveAuth("git@github.com:org/env.git", AuthState{})
	require.NoError(t, err)

	_, _, err = ResolveAuth("git@github.com:org/env.git", state)
	require.ErrorIs(t, err, ErrAuthenticationFailed, "the agent is offered once per call")
}
