// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package principal

import (
	"path"
	"strings"
)

// MatchPattern reports whether name matches a glob pattern under the
// engine's hierarchical naming:
//
//   - Exact: "curation/decay" matches only "curation/decay"
//   - Single segment: "curation/*" matches "curation/decay" but not
//     "curation/task/create"
//   - Recursive: "curation/**" matches every action under curation/
//   - Universal: "**" matches anything
//   - Interior: "curation/**/create" matches "curation/task/create"
//   - "?" matches one non-slash character
//
// "*" and "?" never cross a "/" (path.Match semantics); "**" is the
// only way across hierarchy boundaries. Malformed patterns match
// nothing — a broken pattern must never widen a grant.
func MatchPattern(pattern, name string) bool {
	if pattern == "**" {
		return true
	}

	if !strings.Contains(pattern, "**") {
		return matchGlob(pattern, name)
	}

	// "prefix/**": the prefix alone, or the prefix plus more segments.
	if after, ok := strings.CutSuffix(pattern, "/**"); ok && !strings.Contains(after, "**") {
		if matchGlob(after, name) {
			return true
		}
		return matchLeading(after, name)
	}

	// "**/suffix": the suffix alone, or more segments plus the suffix.
	if before, ok := strings.CutPrefix(pattern, "**/"); ok && !strings.Contains(before, "**") {
		if matchGlob(before, name) {
			return true
		}
		return matchTrailing(before, name)
	}

	// "prefix/**/suffix": split at the first interior marker.
	if idx := strings.Index(pattern, "/**/"); idx >= 0 {
		prefix := pattern[:idx]
		suffix := pattern[idx+4:]
		if strings.Contains(prefix, "**") || strings.Contains(suffix, "**") {
			return false
		}

		// Zero segments consumed: prefix and suffix are adjacent.
		if matchGlob(prefix+"/"+suffix, name) {
			return true
		}

		prefixDepth := strings.Count(prefix, "/") + 1
		suffixDepth := strings.Count(suffix, "/") + 1
		segments := strings.Split(name, "/")
		if len(segments) < prefixDepth+1+suffixDepth {
			return false
		}
		if !matchGlob(prefix, strings.Join(segments[:prefixDepth], "/")) {
			return false
		}
		if !matchGlob(suffix, strings.Join(segments[len(segments)-suffixDepth:], "/")) {
			return false
		}
		for _, segment := range segments[prefixDepth : len(segments)-suffixDepth] {
			if segment == "" {
				return false
			}
		}
		return true
	}

	// Anything with multiple ** markers: unsupported, deny.
	return false
}

// MatchAnyPattern reports whether name matches at least one pattern.
// An empty pattern list matches nothing (default deny).
func MatchAnyPattern(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// matchGlob wraps path.Match, treating malformed patterns as
// non-matching.
func matchGlob(pattern, name string) bool {
	matched, err := path.Match(pattern, name)
	return err == nil && matched
}

// matchLeading reports whether the first segments of name match the
// pattern with at least one further segment after them.
func matchLeading(pattern, name string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.SplitN(name, "/", depth+1)
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[:depth], "/"))
}

// matchTrailing reports whether the last segments of name match the
// pattern with at least one segment before them.
func matchTrailing(pattern, name string) bool {
	depth := strings.Count(pattern, "/") + 1
	segments := strings.Split(name, "/")
	if len(segments) <= depth {
		return false
	}
	return matchGlob(pattern, strings.Join(segments[len(segments)-depth:], "/"))
}
