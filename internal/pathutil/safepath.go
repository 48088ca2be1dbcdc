// Package pathutil resolves user-supplied document and database paths.
//
// Paths from config files and environment variables may start with "~" and
// may be relative to the office data directory. Resolved paths never escape
// that directory, including through symlinks.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesBase is returned when a path resolves outside its base directory.
var ErrEscapesBase = errors.New("path escapes base directory")

// Expand trims path, expands a leading "~" to the user's home directory and
// returns the absolute form.
func Expand(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.Contains(trimmed, "\x00") {
		return "", fmt.Errorf("path contains null byte")
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}

// ResolveWithin resolves userPath against baseDir and verifies that the
// result, after symlink resolution, stays inside baseDir.
//
// Relative paths are joined with baseDir; "~" paths are expanded first. The
// target itself does not need to exist yet: the deepest existing ancestor is
// resolved and the remaining components are appended.
//
// Example:
//
//	doc, err := ResolveWithin("/srv/office", "shared/dashboard.json")
//	// doc == "/srv/office/shared/dashboard.json"
func ResolveWithin(baseDir, userPath string) (string, error) {
	trimmed := strings.TrimSpace(userPath)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty or whitespace-only")
	}
	if strings.Contains(userPath, "\x00") {
		return "", fmt.Errorf("path contains null byte")
	}

	base, err := Expand(baseDir)
	if err != nil {
		return "", fmt.Errorf("invalid base directory: %w", err)
	}

	candidate := trimmed
	switch {
	case strings.HasPrefix(candidate, "~"):
		if candidate, err = Expand(candidate); err != nil {
			return "", err
		}
	case !filepath.IsAbs(candidate):
		candidate = filepath.Join(base, candidate)
	}
	candidate = filepath.Clean(candidate)

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", err
	}
	baseResolved, err := resolveExisting(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}

	rel, err := filepath.Rel(baseResolved, resolved)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesBase, userPath)
	}

	return resolved, nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of path
// and re-appends the components that do not exist yet.
func resolveExisting(path string) (string, error) {
	current := filepath.Clean(path)
	var missing []string

	for {
		if _, err := os.Lstat(current); err == nil {
			resolved, err := filepath.EvalSymlinks(current)
			if err != nil {
				return "", fmt.Errorf("failed to resolve symlinks: %w", err)
			}
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("no existing parent directory found for %s", path)
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}
