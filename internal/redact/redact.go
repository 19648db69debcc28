// Package redact provides small helpers for keeping secrets and absolute
// user paths out of log lines, per the error-handling design's rule that
// tokens and paths under user directories are never logged verbatim.
package redact

import "strings"

// Token returns a fixed-width placeholder for a non-empty token, or "" for
// an empty one. Never returns any part of tok.
func Token(tok string) string {
	if tok == "" {
		return ""
	}
	return "<redacted>"
}

// Path shortens an absolute path to ".../" followed by its final element
// (a path with no separator is returned unchanged), which is normally
// enough for operators to recognize a project without exposing the full
// filesystem layout (usernames, org folder structure, etc.) in logs.
func Path(p string) string {
	if p == "" {
		return ""
	}
	p = strings.TrimRight(p, "/\\")
	if idx := strings.LastIndexAny(p, "/\\"); idx >= 0 {
		return ".../" + p[idx+1:]
	}
	return p
}
