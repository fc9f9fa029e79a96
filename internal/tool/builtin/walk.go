package builtin

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
)

// walkFiles calls fn for every non-directory entry under base, skipping
// hidden directories below it. rel is slash-separated and relative to base.
// A positive maxDepth bounds how many path segments rel may have. The walk
// stops with ctx's error once ctx is done.
func walkFiles(ctx context.Context, base string, maxDepth int, fn func(path, rel string) error) error {
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == base && d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if maxDepth > 0 && strings.Count(rel, "/")+1 >= maxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(path, rel)
	})
}

// splitPattern breaks a slash-separated glob into segments and rejects
// malformed ones up front.
func splitPattern(pattern string) ([]string, error) {
	segments := strings.Split(filepath.ToSlash(pattern), "/")
	for _, s := range segments {
		if _, err := filepath.Match(s, ""); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

// matchSegments matches path segments against pattern segments, where a
// "**" segment matches any number of directories.
func matchSegments(pattern, path []string) bool {
	if len(pattern) == 0 {
		return len(path) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(path); i++ {
			if matchSegments(pattern[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, _ := filepath.Match(pattern[0], path[0])
	return ok && matchSegments(pattern[1:], path[1:])
}
