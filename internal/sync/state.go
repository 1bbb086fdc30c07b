package sync

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// State is a step of the pull state machine
type State int

const (
	Idle State = iota
	Fetching
	Analyzing
	UpToDate
	Ahead
	FastForward
	ThreeWayMerge
	Conflict
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Fetching:
		return "fetching"
	case Analyzing:
		return "analyzing"
	case UpToDate:
		return "up-to-date"
	case Ahead:
		return "ahead"
	case FastForward:
		return "fast-forward"
	case ThreeWayMerge:
		return "three-way-merge"
	case Conflict:
		return "conflict"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Result describes one pull
type Result struct {
	States    []State       // every state entered, in order
	Local     plumbing.Hash // branch tip before the pull, zero when unborn
	Fetched   plumbing.Hash // remote branch tip
	Base      plumbing.Hash // merge base, three-way merges only
	Merge     plumbing.Hash // merge commit, clean three-way merges only
	Conflicts []string      // conflicting paths
}

// Outcome returns the analysis decision, or Idle if the pull stopped before
// reaching one.
func (r *Result) Outcome() State {
	outcome := Idle
	for _, s := range r.States {
		switch s {
		case UpToDate, Ahead, FastForward, ThreeWayMerge, Conflict:
			outcome = s
		}
	}
	return outcome
}

// Path renders the traversed states as "idle -> fetching -> ...".
func (r *Result) Path() string {
	names := make([]string, 0, len(r.States))
	for _, s := range r.States {
		names = append(names, s.String())
	}
	return strings.Join(names, " -> ")
}

func (r *Result) enter(s State) {
	r.States = append(r.States, s)
}

// PushResult describes one push
type PushResult struct {
	Branch plumbing.ReferenceName
	Tags   []string
}
