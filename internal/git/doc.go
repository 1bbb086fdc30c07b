// Package git is the version store behind an araki environment. It wraps a
// go-git repository kept in a hidden directory next to the lockspec files and
// exposes the primitives the rest of araki is built on: blobs, trees,
// commits, annotated tags, refs, merge bases, whole-file three-way merges,
// worktree checkout and remote fetch/push over ssh-agent credentials.
//
// The repository is opened without a go-git worktree. The worktree is a
// separate billy filesystem that this package reads and writes directly, so
// only tracked files are ever touched and the hidden store directory is never
// considered part of the working tree.
package git
