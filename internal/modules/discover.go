package modules

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Patterns ignored in addition to each root's .gitignore.
var defaultIgnorePatterns = []string{
	".git/",
	".pyxis/",
	"__pycache__/",
	".venv/",
	"venv/",
	".tox/",
	".eggs/",
	"*.egg-info/",
	".pytest_cache/",
	".mypy_cache/",
	"*.pyc",
	"*.pyo",
	"*.pyd",
	".DS_Store",
}

// Discover walks the workspace roots and returns the absolute paths of
// the module directories found, sorted. A module is a directory
// containing a __manifest__.py; its subtree is not searched for nested
// modules. Ignore patterns from each root's .gitignore are honored
// alongside the defaults.
func Discover(roots []string) ([]string, error) {
	var dirs []string
	seen := make(map[string]struct{})
	for _, root := range roots {
		root, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolving root %q: %w", root, err)
		}
		matcher, err := rootMatcher(root)
		if err != nil {
			return nil, err
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if shouldSkipDir(d.Name(), path, root, matcher) {
				return filepath.SkipDir
			}
			if _, statErr := os.Stat(filepath.Join(path, ManifestName)); statErr == nil {
				if _, dup := seen[path]; !dup {
					seen[path] = struct{}{}
					dirs = append(dirs, path)
				}
				return filepath.SkipDir
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking root %q: %w", root, err)
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// PythonFiles returns the .py files of a module directory, sorted,
// honoring the default ignore patterns.
func PythonFiles(dir string) ([]string, error) {
	matcher := gitignore.NewMatcher(parsePatterns(defaultIgnorePatterns))
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if shouldSkipDir(d.Name(), path, dir, matcher) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".py") {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if matcher.Match(splitPath(rel), false) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing module files in %q: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// IgnoreMatcher returns the matcher used when walking root: the
// default patterns plus the root's .gitignore when present. Discovery
// and the file watcher share it so both skip the same paths.
func IgnoreMatcher(root string) (gitignore.Matcher, error) {
	return rootMatcher(root)
}

// SkipDir reports whether a workspace walk should skip the directory
// at path (with base name) under root.
func SkipDir(name, path, root string, matcher gitignore.Matcher) bool {
	return shouldSkipDir(name, path, root, matcher)
}

// IgnoredFile reports whether the file at path under root is excluded
// by the matcher.
func IgnoredFile(root, path string, matcher gitignore.Matcher) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return true
	}
	return matcher.Match(splitPath(rel), false)
}

// rootMatcher combines the default ignore patterns with the root's
// .gitignore, when present.
func rootMatcher(root string) (gitignore.Matcher, error) {
	patterns := parsePatterns(defaultIgnorePatterns)
	gitignorePath := filepath.Join(root, ".gitignore")
	content, err := os.ReadFile(gitignorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return gitignore.NewMatcher(patterns), nil
		}
		return nil, fmt.Errorf("reading %q: %w", gitignorePath, err)
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return gitignore.NewMatcher(patterns), nil
}

func parsePatterns(raw []string) []gitignore.Pattern {
	patterns := make([]gitignore.Pattern, 0, len(raw))
	for _, p := range raw {
		patterns = append(patterns, gitignore.ParsePattern(p, nil))
	}
	return patterns
}

func shouldSkipDir(name, path, root string, matcher gitignore.Matcher) bool {
	if name == ".git" {
		return true
	}
	if path == root {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return matcher.Match(splitPath(rel), true)
}

func splitPath(path string) []string {
	return strings.Split(path, string(filepath.Separator))
}
