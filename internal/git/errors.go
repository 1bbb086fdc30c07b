package git

import (
	"errors"
	"strings"
)

var (
	// ErrNotARepository is returned when a directory has no araki store.
	ErrNotARepository = errors.New("not an araki repository")
	// ErrRefNotFound is returned when a name cannot be resolved to a commit.
	ErrRefNotFound = errors.New("reference not found")
	// ErrNoCommonAncestor is returned when two histories share no commit.
	ErrNoCommonAncestor = errors.New("no common ancestor")
	// ErrTagExists is returned when creating a tag whose name is taken.
	ErrTagExists = errors.New("tag already exists")
	// ErrInvalidTagName is returned for tag names that cannot be stored as refs.
	ErrInvalidTagName = errors.New("invalid tag name")
	// ErrDirtyWorktree is returned when tracked files have un-checkpointed changes.
	ErrDirtyWorktree = errors.New("working directory has un-checkpointed changes")
	// ErrMergeInProgress is returned while a conflicted merge awaits resolution.
	ErrMergeInProgress = errors.New("merge in progress")
	// ErrAuthenticationFailed is returned when no usable credential exists.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrRemoteUnreachable is returned for transport failures.
	ErrRemoteUnreachable = errors.New("remote unreachable")
)

// ConflictError lists the paths changed on both sides of a merge.
type ConflictError struct {
	Paths []string
}

func (e *ConflictError) Error() string {
	return "merge conflict in " + strings.Join(e.Paths, ", ")
}
