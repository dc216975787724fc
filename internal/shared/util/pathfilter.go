package util

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// alwaysSkipped directories are never walked, whatever the excludes say.
var alwaysSkipped = map[string]struct{}{
	".git": {},
	".hg":  {},
	".svn": {},
}

// PathFilter decides which paths below a root are excluded from discovery
// and watching. Paths are matched in their slash-separated relative form.
type PathFilter struct {
	root      string
	globs     []glob.Glob
	baseGlobs []glob.Glob
	gitignore *ignore.GitIgnore
}

// NewPathFilter compiles exclude patterns. A pattern without a separator
// matches the base name; any other pattern matches the relative path. When
// useGitignore is set, root/.gitignore is honoured if present.
func NewPathFilter(root string, excludes []string, useGitignore bool) (*PathFilter, error) {
	f := &PathFilter{root: filepath.Clean(root)}
	for _, pattern := range excludes {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		if MatchesWholePath(pattern) {
			f.globs = append(f.globs, g)
		} else {
			f.baseGlobs = append(f.baseGlobs, g)
		}
	}
	if useGitignore {
		gi, err := ignore.CompileIgnoreFile(filepath.Join(f.root, ".gitignore"))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read .gitignore: %w", err)
		}
		f.gitignore = gi
	}
	return f, nil
}

func (f *PathFilter) Root() string { return f.root }

// Rel returns the slash-separated form of absPath relative to the root.
func (f *PathFilter) Rel(absPath string) (string, error) {
	rel, err := filepath.Rel(f.root, absPath)
	if err != nil {
		return "", err
	}
	return RecordPath(rel), nil
}

// Excluded reports whether rel, a path relative to the root, is filtered out.
func (f *PathFilter) Excluded(rel string, isDir bool) bool {
	rel = RecordPath(rel)
	if rel == "" {
		return false
	}
	base := path.Base(rel)
	if isDir {
		if _, skip := alwaysSkipped[base]; skip {
			return true
		}
	}
	for _, g := range f.baseGlobs {
		if g.Match(base) {
			return true
		}
	}

	candidates := []string{rel, "/" + rel}
	if isDir {
		candidates = []string{rel + "/", "/" + rel + "/"}
	}
	for _, g := range f.globs {
		for _, c := range candidates {
			if g.Match(c) {
				return true
			}
		}
	}

	if f.gitignore != nil {
		if isDir && f.gitignore.MatchesPath(rel+"/") {
			return true
		}
		if f.gitignore.MatchesPath(rel) {
			return true
		}
	}
	return false
}

// ExcludedAbs is Excluded for an absolute path. Paths outside the root are
// always excluded.
func (f *PathFilter) ExcludedAbs(absPath string, isDir bool) bool {
	rel, err := f.Rel(absPath)
	if err != nil || EscapesRoot(rel) {
		return true
	}
	return f.Excluded(rel, isDir)
}
