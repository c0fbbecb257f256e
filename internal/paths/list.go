package paths

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Directories never descended into during source scans
var skipDirs = map[string]bool{
	".git":         true,
	".tia":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"out":          true,
	".cache":       true,
}

// ListSourceFiles walks rootRel under repoRoot and returns the
// repo-relative paths of every file with a matching extension, sorted
// lexicographically. A missing root yields an empty list.
func ListSourceFiles(repoRoot, rootRel string, extensions []string) ([]string, error) {
	return listFiles(repoRoot, rootRel, func(path string) bool {
		return HasExtension(path, extensions)
	})
}

// ListAllFiles returns every file under rootRel regardless of extension,
// sorted lexicographically.
func ListAllFiles(repoRoot, rootRel string) ([]string, error) {
	return listFiles(repoRoot, rootRel, func(string) bool { return true })
}

// ListSpecFiles returns every spec file (*.spec.<ext>) under rootRel,
// sorted lexicographically.
func ListSpecFiles(repoRoot, rootRel string, extensions []string) ([]string, error) {
	return listFiles(repoRoot, rootRel, func(path string) bool {
		return IsSpecFile(path, extensions)
	})
}

func listFiles(repoRoot, rootRel string, match func(string) bool) ([]string, error) {
	rootAbs := JoinRepoPath(repoRoot, rootRel)
	if _, err := os.Stat(rootAbs); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string
	err := filepath.Walk(rootAbs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil //nolint:nilerr // Skip inaccessible entries, continue walking
		}
		if info.IsDir() {
			name := info.Name()
			if skipDirs[name] || (strings.HasPrefix(name, ".") && path != rootAbs) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(repoRoot, path)
		if relErr != nil {
			return nil //nolint:nilerr // Outside the root, skip
		}
		canonical := NormalizePath(rel)
		if match(canonical) {
			files = append(files, canonical)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}
