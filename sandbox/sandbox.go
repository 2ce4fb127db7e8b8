// Package sandbox confines file tool operations to one working-directory
// root. Every tool invocation resolves its path arguments through Resolve;
// there is no caching of a prior verdict, so a root swapped underneath a
// running process cannot widen access.
package sandbox

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path escapes the sandbox root.
type ErrOutsideRoot struct {
	Path string
}

func (e *ErrOutsideRoot) Error() string {
	return fmt.Sprintf("path %q resolves outside the working directory", e.Path)
}

// Root is a fixed absolute directory all resolved paths must stay under.
type Root struct {
	dir string
}

// NewRoot builds a sandbox rooted at dir. dir is canonicalized once; a
// relative dir is resolved against the process working directory.
func NewRoot(dir string) (*Root, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve sandbox root: %w", err)
	}
	return &Root{dir: filepath.Clean(abs)}, nil
}

// Dir returns the canonical root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve canonicalizes userPath against the root and verifies the result is
// the root itself or nested under it. ".." traversal is defeated by cleaning
// the joined path before the containment check.
func (r *Root) Resolve(userPath string) (string, error) {
	var abs string
	if filepath.IsAbs(userPath) {
		abs = filepath.Clean(userPath)
	} else {
		abs = filepath.Clean(filepath.Join(r.dir, userPath))
	}

	if abs == r.dir || strings.HasPrefix(abs, r.dir+string(filepath.Separator)) {
		return abs, nil
	}
	return "", &ErrOutsideRoot{Path: userPath}
}

// Rel returns the root-relative form of an absolute path for display,
// falling back to "." for the root itself.
func (r *Root) Rel(abs string) string {
	rel, err := filepath.Rel(r.dir, abs)
	if err != nil || rel == "" {
		return "."
	}
	return rel
}
