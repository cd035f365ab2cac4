// Package security guards the filesystem and upload boundaries.
package security

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrPathTraversal   = errors.New("path traversal detected")
	ErrPathOutsideRoot = errors.New("path escapes output directory")
	ErrSymlinkEscape   = errors.New("symlink escape detected")
	ErrInvalidPath     = errors.New("invalid path")
)

var traversalPatterns = []string{
	"..",
	"%2e%2e",
	"%252e%252e",
	"..%2f",
	"%2f..",
	"..\\",
}

// ResolveWithin joins name onto root and returns the cleaned absolute path,
// refusing anything that would land outside root, symlinks included.
func ResolveWithin(root, name string) (string, error) {
	if name == "" || containsTraversalPattern(name) {
		return "", ErrPathTraversal
	}

	rootPath, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", ErrInvalidPath
	}

	target := name
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootPath, target)
	}
	target = filepath.Clean(target)

	if target != rootPath && !strings.HasPrefix(target, rootPath+string(os.PathSeparator)) {
		return "", ErrPathOutsideRoot
	}

	if err := checkSymlinkEscape(target, rootPath); err != nil {
		return "", err
	}

	return target, nil
}

// IsWithin reports whether name resolves under root.
func IsWithin(root, name string) bool {
	_, err := ResolveWithin(root, name)
	return err == nil
}

func containsTraversalPattern(path string) bool {
	lower := strings.ToLower(path)
	for _, pattern := range traversalPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// checkSymlinkEscape walks each existing component below root and resolves
// symlinks, which a lexical prefix check cannot see through.
func checkSymlinkEscape(target, root string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return ErrInvalidPath
	}

	resolvedRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		// root does not exist yet, nothing below it can be a link
		return nil
	}

	current := root
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		if part == "" || part == "." {
			continue
		}
		current = filepath.Join(current, part)

		info, err := os.Lstat(current)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return ErrInvalidPath
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}

		resolved, err := filepath.EvalSymlinks(current)
		if err != nil {
			return ErrSymlinkEscape
		}
		if resolved != resolvedRoot && !strings.HasPrefix(resolved, resolvedRoot+string(os.PathSeparator)) {
			return ErrSymlinkEscape
		}
	}
	return nil
}
