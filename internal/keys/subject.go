// Package keys builds object storage keys for mirrored subject files.
package keys

import (
	"path"
	"path/filepath"
	"strings"
)

// sanitizeSegment replaces spaces with hyphens so keys stay URL friendly.
// Labels keep their case: XNAT labels are case sensitive.
func sanitizeSegment(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
}

// SubjectPrefix returns the key prefix under which a subject's files live.
func SubjectPrefix(project, label string) string {
	return path.Join(sanitizeSegment(project), sanitizeSegment(label)) + "/"
}

// SubjectFile returns the canonical key of a file inside a subject
// directory. rel is relative to the subject directory and may use the OS
// path separator.
func SubjectFile(project, label, rel string) string {
	return SubjectPrefix(project, label) + path.Clean(filepath.ToSlash(rel))
}
