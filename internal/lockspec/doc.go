// Package lockspec locates and maintains the two descriptor files that make
// up an environment: the spec file (pixi.toml by default) and the lock file
// (pixi.lock). It also owns the small filesystem chores around them: the
// [araki] metadata table in the spec file, the .gitignore entry for the
// hidden store and copying a freshly cloned environment into place.
package lockspec
