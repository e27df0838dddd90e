// Package guard classifies file paths as sensitive so the controller can
// redact matching content from worker logs and diffs before surfacing them.
// Classification is pure and stateless: patterns are compiled once at init.
package guard

import (
	"path"
	"strings"

	"github.com/gobwas/glob"
)

// segmentPatterns match any individual path segment, so `.env` files are
// caught anywhere in a tree (e.g. app/.env.local).
var segmentPatterns = compile([]string{
	".env",
	".env.*",
})

// basePatterns match the final path segment only. Matching is done on the
// lowercased basename.
var basePatterns = compile([]string{
	"*credential*",
	"*secret*",
	"*.key",
	"*.pem",
	"id_rsa",
	"id_rsa.*",
	"serviceaccountkey.json",
})

func compile(patterns []string) []glob.Glob {
	globs := make([]glob.Glob, len(patterns))
	for i, p := range patterns {
		globs[i] = glob.MustCompile(p)
	}
	return globs
}

// IsSensitive reports whether the path points at likely secret material:
// .env files anywhere in the path, filenames containing "credential" or
// "secret", and common private-key indicators (.key, .pem, id_rsa,
// serviceAccountKey.json).
func IsSensitive(filePath string) bool {
	cleaned := strings.ToLower(path.Clean(strings.ReplaceAll(filePath, "\\", "/")))

	segments := strings.Split(cleaned, "/")
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		for _, g := range segmentPatterns {
			if g.Match(segment) {
				return true
			}
		}
	}

	base := segments[len(segments)-1]
	for _, g := range basePatterns {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// Redact returns a placeholder for sensitive files and the original content
// otherwise. Used when surfacing diffs and log excerpts from worker sessions.
func Redact(filePath, content string) string {
	if IsSensitive(filePath) {
		return "[redacted: sensitive file]"
	}
	return content
}
