// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

// Package principal defines principal names and the pattern matching
// used by capability grants.
//
// A principal is "<role>/<name>": "agent/finch", "operator/ops-main",
// "scheduler/cron", "host/wiki". Agent principals embed the external
// platform handle the agent verified; the other roles are named by
// whoever mints their tokens. Grant patterns match both action names
// ("curation/task/create") and targets (task types, handles) with the
// same glob syntax.
package principal

import (
	"fmt"
	"strings"
)

// Roles a principal can carry. The role is the first path segment of
// the principal name and decides which grants curia-token will mint
// by default.
const (
	RoleAgent     = "agent"
	RoleOperator  = "operator"
	RoleScheduler = "scheduler"
	RoleHost      = "host"
)

// MaxHandleLength bounds external platform handles. The source
// platform caps display names well below this; the bound here exists
// so handles stay usable as log fields and principal names.
const MaxHandleLength = 64

// handleChars is the allowed charset for external handles: lowercase
// alphanumerics plus . _ -. Checked via lookup table.
var handleChars [256]bool

func init() {
	for c := 'a'; c <= 'z'; c++ {
		handleChars[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		handleChars[c] = true
	}
	handleChars['.'] = true
	handleChars['_'] = true
	handleChars['-'] = true
}

// ValidateHandle checks that an external platform handle is usable as
// an agent identity: non-empty, at most MaxHandleLength characters,
// lowercase alphanumerics plus . _ -, and not starting or ending with
// punctuation. Handles are compared byte-for-byte everywhere, so
// callers lowercase user input before validation rather than after.
func ValidateHandle(handle string) error {
	if handle == "" {
		return fmt.Errorf("handle is empty")
	}
	if len(handle) > MaxHandleLength {
		return fmt.Errorf("handle is %d characters, maximum is %d", len(handle), MaxHandleLength)
	}
	for i := 0; i < len(handle); i++ {
		if !handleChars[handle[i]] {
			return fmt.Errorf("invalid character %q at position %d (allowed: a-z, 0-9, ., _, -)", handle[i], i)
		}
	}
	if isPunct(handle[0]) {
		return fmt.Errorf("handle must not start with %q", handle[0])
	}
	if isPunct(handle[len(handle)-1]) {
		return fmt.Errorf("handle must not end with %q", handle[len(handle)-1])
	}
	return nil
}

func isPunct(c byte) bool {
	return c == '.' || c == '_' || c == '-'
}

// Agent returns the principal name for a verified agent handle.
func Agent(handle string) string {
	return RoleAgent + "/" + handle
}

// AgentHandle extracts the handle from an agent principal. The second
// return is false when the principal is not an agent.
func AgentHandle(name string) (string, bool) {
	rest, ok := strings.CutPrefix(name, RoleAgent+"/")
	if !ok || rest == "" {
		return "", false
	}
	return rest, true
}

// Role returns the role segment of a principal name, or "" when the
// name has no role separator.
func Role(name string) string {
	role, _, found := strings.Cut(name, "/")
	if !found {
		return ""
	}
	return role
}

// Validate checks a full principal name: a known role, a separator,
// and a non-empty name part. Agent principals additionally require a
// valid handle, since the handle flows into karma lookups and grant
// targets.
func Validate(name string) error {
	role, rest, found := strings.Cut(name, "/")
	if !found || rest == "" {
		return fmt.Errorf("principal %q must be <role>/<name>", name)
	}
	switch role {
	case RoleAgent:
		if err := ValidateHandle(rest); err != nil {
			return fmt.Errorf("agent principal %q: %w", name, err)
		}
	case RoleOperator, RoleScheduler, RoleHost:
		if err := ValidateHandle(rest); err != nil {
			return fmt.Errorf("%s principal %q: %w", role, name, err)
		}
	default:
		return fmt.Errorf("principal %q has unknown role %q", name, role)
	}
	return nil
}
