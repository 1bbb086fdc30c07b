package git

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// TreeFile is a blob entry in a flattened tree.
type TreeFile struct {
	Hash plumbing.Hash
	Mode filemode.FileMode
}

// Tag describes a tag reference.
type Tag struct {
	Name      string
	Target    plumbing.Hash // peeled commit
	Annotated bool
	Message   string
}

// WriteBlob stores content as a blob object.
func (s *Store) WriteBlob(content []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))

	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to open blob writer: %w", err)
	}
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to write blob: %w", err)
	}

	return s.repo.Storer.SetEncodedObject(obj)
}

// WriteTree stores a flattened path -> file mapping as nested tree objects
// and returns the root tree hash.
func (s *Store) WriteTree(files map[string]TreeFile) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(files))
	dirs := make(map[string]map[string]TreeFile)

	for path, f := range files {
		name, rest, nested := strings.Cut(path, "/")
		if !nested {
			entries = append(entries, object.TreeEntry{Name: name, Mode: f.Mode, Hash: f.Hash})
			continue
		}
		if dirs[name] == nil {
			dirs[name] = make(map[string]TreeFile)
		}
		dirs[name][rest] = f
	}

	for name, sub := range dirs {
		hash, err := s.WriteTree(sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: hash})
	}

	// git orders directories as if their name had a trailing slash
	sort.Slice(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})

	tree := &object.Tree{Entries: entries}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tree: %w", err)
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

func treeSortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// CreateCommit stores a commit object. It does not move any reference.
func (s *Store) CreateCommit(tree plumbing.Hash, parents []plumbing.Hash, message string, author Identity) (plumbing.Hash, error) {
	sig := s.signature(author)
	commit := &object.Commit{
		Author:       sig,
		Committer:    sig,
		Message:      message,
		TreeHash:     tree,
		ParentHashes: parents,
	}

	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode commit: %w", err)
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

// CreateTag creates refs/tags/<name> pointing at target. Annotated tags get
// their own tag object carrying message verbatim; lightweight tags alias the
// commit directly and ignore message.
func (s *Store) CreateTag(name string, target plumbing.Hash, message string, annotated bool, tagger Identity) (plumbing.Hash, error) {
	if err := ValidateTagName(name); err != nil {
		return plumbing.ZeroHash, err
	}

	refName := plumbing.NewTagReferenceName(name)
	if _, err := s.repo.Storer.Reference(refName); err == nil {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrTagExists, name)
	} else if !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return plumbing.ZeroHash, fmt.Errorf("failed to look up tag %s: %w", name, err)
	}

	if _, err := s.Commit(target); err != nil {
		return plumbing.ZeroHash, err
	}

	if !annotated {
		if err := s.UpdateRef(refName, target); err != nil {
			return plumbing.ZeroHash, err
		}
		return target, nil
	}

	tag := &object.Tag{
		Name:       name,
		Tagger:     s.signature(tagger),
		Message:    message,
		TargetType: plumbing.CommitObject,
		Target:     target,
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tag.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to encode tag: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to store tag: %w", err)
	}
	if err := s.UpdateRef(refName, hash); err != nil {
		return plumbing.ZeroHash, err
	}
	return hash, nil
}

// ValidateTagName rejects names that would not survive as a ref or that
// shadow the "latest" revision keyword.
func ValidateTagName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidTagName)
	case name == "latest":
		return fmt.Errorf("%w: %q is reserved", ErrInvalidTagName, name)
	case strings.HasPrefix(name, "-"), strings.HasPrefix(name, "/"), strings.HasSuffix(name, "/"),
		strings.HasSuffix(name, ".lock"), strings.Contains(name, ".."), strings.Contains(name, "@{"):
		return fmt.Errorf("%w: %q", ErrInvalidTagName, name)
	}
	if strings.ContainsAny(name, " \t\n~^:?*[\\") {
		return fmt.Errorf("%w: %q", ErrInvalidTagName, name)
	}
	return nil
}

// Tags returns every tag sorted by name, each peeled to its commit.
func (s *Store) Tags() ([]Tag, error) {
	iter, err := s.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		tag, err := s.describeTag(ref)
		if err != nil {
			return err
		}
		tags = append(tags, tag)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// PeelTag resolves a tag name to the commit it ultimately designates.
func (s *Store) PeelTag(name string) (plumbing.Hash, error) {
	ref, err := s.repo.Storer.Reference(plumbing.NewTagReferenceName(name))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, fmt.Errorf("%w: tag %s", ErrRefNotFound, name)
		}
		return plumbing.ZeroHash, fmt.Errorf("failed to look up tag %s: %w", name, err)
	}
	tag, err := s.describeTag(ref)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return tag.Target, nil
}

func (s *Store) describeTag(ref *plumbing.Reference) (Tag, error) {
	tag := Tag{Name: ref.Name().Short(), Target: ref.Hash()}

	obj, err := s.repo.TagObject(ref.Hash())
	switch {
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return tag, nil
	case err != nil:
		return Tag{}, fmt.Errorf("failed to read tag %s: %w", tag.Name, err)
	}

	commit, err := obj.Commit()
	if err != nil {
		return Tag{}, fmt.Errorf("%w: tag %s does not point to a commit", ErrRefNotFound, tag.Name)
	}
	tag.Annotated = true
	tag.Message = obj.Message
	tag.Target = commit.Hash
	return tag, nil
}

// ResolvePrefix finds the single commit whose id starts with prefix.
func (s *Store) ResolvePrefix(prefix string) (plumbing.Hash, error) {
	prefix = strings.ToLower(prefix)
	if len(prefix) < 4 || strings.Trim(prefix, "0123456789abcdef") != "" {
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRefNotFound, prefix)
	}

	if len(prefix) == 40 {
		c, err := s.Commit(plumbing.NewHash(prefix))
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return c.Hash, nil
	}

	iter, err := s.repo.CommitObjects()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to list commits: %w", err)
	}
	var matches []plumbing.Hash
	err = iter.ForEach(func(c *object.Commit) error {
		if strings.HasPrefix(c.Hash.String(), prefix) {
			matches = append(matches, c.Hash)
		}
		return nil
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to list commits: %w", err)
	}

	switch len(matches) {
	case 0:
		return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrRefNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return plumbing.ZeroHash, fmt.Errorf("%w: %s is ambiguous (%d commits)", ErrRefNotFound, prefix, len(matches))
	}
}

// Log returns the commits reachable from from, parents before children.
// Parents are visited in order, so a first-parent line comes out before the
// history a merge brought in.
func (s *Store) Log(from plumbing.Hash) ([]*object.Commit, error) {
	root, err := s.Commit(from)
	if err != nil {
		return nil, err
	}

	type frame struct {
		commit *object.Commit
		next   int
	}
	var commits []*object.Commit
	done := map[plumbing.Hash]bool{}
	stack := []*frame{{commit: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if top.next < len(top.commit.ParentHashes) {
			parent := top.commit.ParentHashes[top.next]
			top.next++
			if done[parent] {
				continue
			}
			c, err := s.Commit(parent)
			if err != nil {
				return nil, fmt.Errorf("failed to walk history: %w", err)
			}
			stack = append(stack, &frame{commit: c})
			continue
		}
		stack = stack[:len(stack)-1]
		if !done[top.commit.Hash] {
			done[top.commit.Hash] = true
			commits = append(commits, top.commit)
		}
	}
	return commits, nil
}

// Files flattens the tree of commit into path -> file.
func (s *Store) Files(commit plumbing.Hash) (map[string]TreeFile, error) {
	c, err := s.Commit(commit)
	if err != nil {
		return nil, err
	}
	tree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree of %s: %w", commit, err)
	}

	files := make(map[string]TreeFile)
	err = tree.Files().ForEach(func(f *object.File) error {
		files[f.Name] = TreeFile{Hash: f.Hash, Mode: f.Mode}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk tree of %s: %w", commit, err)
	}
	return files, nil
}

// ReadFile returns the content of path as recorded in commit.
func (s *Store) ReadFile(commit plumbing.Hash, path string) ([]byte, error) {
	c, err := s.Commit(commit)
	if err != nil {
		return nil, err
	}
	f, err := c.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return nil, fmt.Errorf("%s not found in %s: %w", path, commit, err)
		}
		return nil, fmt.Errorf("failed to read %s at %s: %w", path, commit, err)
	}
	return s.readBlob(f.Hash)
}

func (s *Store) readBlob(hash plumbing.Hash) ([]byte, error) {
	blob, err := s.repo.BlobObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob %s: %w", hash, err)
	}
	r, err := blob.Reader()
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", hash, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", hash, err)
	}
	return data, nil
}
