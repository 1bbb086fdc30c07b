package git

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
)

const (
	markerOurs   = "<<<<<<< "
	markerSep    = "======="
	markerTheirs = ">>>>>>> "
)

// Conflict is a path changed differently on both sides of a merge. A nil
// side means the path is absent there.
type Conflict struct {
	Path   string
	Base   *TreeFile
	Ours   *TreeFile
	Theirs *TreeFile
}

// MergeResult is the outcome of a whole-file three-way merge.
type MergeResult struct {
	Files     map[string]TreeFile
	Conflicts []Conflict
}

// ConflictPaths returns the conflicting paths in sorted order.
func (r *MergeResult) ConflictPaths() []string {
	paths := make([]string, 0, len(r.Conflicts))
	for _, c := range r.Conflicts {
		paths = append(paths, c.Path)
	}
	return paths
}

// MergeBase returns the best common ancestor of a and b.
func (s *Store) MergeBase(a, b plumbing.Hash) (plumbing.Hash, error) {
	ca, err := s.Commit(a)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	cb, err := s.Commit(b)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	bases, err := ca.MergeBase(cb)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to compute merge base: %w", err)
	}
	if len(bases) == 0 {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s and %s", ErrNoCommonAncestor, a, b)
	}
	return bases[0].Hash, nil
}

// IsAncestor reports whether a is reachable from b. A commit is its own
// ancestor.
func (s *Store) IsAncestor(a, b plumbing.Hash) (bool, error) {
	ca, err := s.Commit(a)
	if err != nil {
		return false, err
	}
	cb, err := s.Commit(b)
	if err != nil {
		return false, err
	}

	ok, err := ca.IsAncestor(cb)
	if err != nil {
		return false, fmt.Errorf("failed to walk ancestry: %w", err)
	}
	return ok, nil
}

// DiffMerge merges the trees of ours and theirs against base, one whole
// file at a time. The result always carries the cleanly merged files; when
// any path changed on both sides it also lists the conflicts and the error
// is a *ConflictError.
func (s *Store) DiffMerge(base, ours, theirs plumbing.Hash) (*MergeResult, error) {
	b, err := s.Files(base)
	if err != nil {
		return nil, err
	}
	o, err := s.Files(ours)
	if err != nil {
		return nil, err
	}
	t, err := s.Files(theirs)
	if err != nil {
		return nil, err
	}

	res := mergeFiles(b, o, t)
	if len(res.Conflicts) > 0 {
		return res, &ConflictError{Paths: res.ConflictPaths()}
	}
	return res, nil
}

func mergeFiles(base, ours, theirs map[string]TreeFile) *MergeResult {
	paths := make(map[string]struct{})
	for _, side := range []map[string]TreeFile{base, ours, theirs} {
		for p := range side {
			paths[p] = struct{}{}
		}
	}

	res := &MergeResult{Files: make(map[string]TreeFile)}
	for p := range paths {
		b, o, t := lookup(base, p), lookup(ours, p), lookup(theirs, p)

		var merged *TreeFile
		switch {
		case sameFile(o, t):
			merged = o
		case sameFile(o, b):
			merged = t
		case sameFile(t, b):
			merged = o
		default:
			res.Conflicts = append(res.Conflicts, Conflict{Path: p, Base: b, Ours: o, Theirs: t})
			continue
		}
		if merged != nil {
			res.Files[p] = *merged
		}
	}

	sort.Slice(res.Conflicts, func(i, j int) bool { return res.Conflicts[i].Path < res.Conflicts[j].Path })
	return res
}

func lookup(files map[string]TreeFile, path string) *TreeFile {
	f, ok := files[path]
	if !ok {
		return nil
	}
	return &f
}

func sameFile(a, b *TreeFile) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Hash == b.Hash && a.Mode == b.Mode
}

// conflictContent renders both sides of a conflicting file between markers.
func conflictContent(ours, theirs []byte, oursLabel, theirsLabel string) []byte {
	var buf bytes.Buffer
	buf.WriteString(markerOurs + oursLabel + "\n")
	writeSide(&buf, ours)
	buf.WriteString(markerSep + "\n")
	writeSide(&buf, theirs)
	buf.WriteString(markerTheirs + theirsLabel + "\n")
	return buf.Bytes()
}

func writeSide(buf *bytes.Buffer, content []byte) {
	buf.Write(content)
	if len(content) > 0 && !bytes.HasSuffix(content, []byte("\n")) {
		buf.WriteByte('\n')
	}
}

// HasConflictMarkers reports whether content still holds an unresolved
// conflict block.
func HasConflictMarkers(content []byte) bool {
	var ours, sep bool
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), len(content)+1)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case len(line) > len(markerOurs) && line[:len(markerOurs)] == markerOurs:
			ours, sep = true, false
		case line == markerSep && ours:
			sep = true
		case len(line) > len(markerTheirs) && line[:len(markerTheirs)] == markerTheirs && sep:
			return true
		}
	}
	return false
}
