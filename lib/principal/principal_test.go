// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package principal

import "testing"

func TestValidateHandle(t *testing.T) {
	valid := []string{
		"finch",
		"night_heron",
		"crow-9",
		"a",
		"dot.name",
		"x0_y1-z2",
	}
	for _, handle := range valid {
		if err := ValidateHandle(handle); err != nil {
			t.Errorf("ValidateHandle(%q) = %v, want nil", handle, err)
		}
	}

	invalid := []string{
		"",
		"Finch",      // uppercase
		"bad handle", // space
		"slash/name", // separator reserved for principals
		".hidden",    // leading punctuation
		"trailing.",  // trailing punctuation
		"-lead",
		"tail_",
		"ünicode",
		string(make([]byte, MaxHandleLength+1)),
	}
	for _, handle := range invalid {
		if err := ValidateHandle(handle); err == nil {
			t.Errorf("ValidateHandle(%q) = nil, want error", handle)
		}
	}
}

func TestAgentPrincipalRoundTrip(t *testing.T) {
	name := Agent("finch")
	if name != "agent/finch" {
		t.Fatalf("Agent(finch) = %q", name)
	}
	handle, ok := AgentHandle(name)
	if !ok || handle != "finch" {
		t.Fatalf("AgentHandle(%q) = %q, %v", name, handle, ok)
	}
	if _, ok := AgentHandle("operator/ops"); ok {
		t.Fatal("AgentHandle accepted an operator principal")
	}
}

func TestValidate(t *testing.T) {
	valid := []string{
		"agent/finch",
		"operator/ops-main",
		"scheduler/cron",
		"host/wiki",
	}
	for _, p := range valid {
		if err := Validate(p); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{
		"",
		"agent",        // no separator
		"agent/",       // empty name
		"reader/finch", // unknown role
		"agent/Bad",    // handle rules apply
		"agent/fin ch",
	}
	for _, p := range invalid {
		if err := Validate(p); err == nil {
			t.Errorf("Validate(%q) = nil, want error", p)
		}
	}
}

func TestRole(t *testing.T) {
	if got := Role("agent/finch"); got != "agent" {
		t.Fatalf("Role(agent/finch) = %q", got)
	}
	if got := Role("bare"); got != "" {
		t.Fatalf("Role(bare) = %q, want empty", got)
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, name string
		want          bool
	}{
		{"curation/decay", "curation/decay", true},
		{"curation/decay", "curation/audit", false},
		{"curation/*", "curation/decay", true},
		{"curation/*", "curation/task/create", false},
		{"curation/**", "curation/decay", true},
		{"curation/**", "curation/task/create", true},
		{"curation/**", "curation", true},
		{"curation/**", "observe/read", false},
		{"**", "anything/at/all", true},
		{"curation/**/create", "curation/task/create", true},
		{"curation/**/create", "curation/create", true},
		{"curation/**/create", "curation/task/list", false},
		{"curation/task/?reate", "curation/task/create", true},
		{"agent/*", "agent/finch", true},
		{"agent/fin*", "agent/finch", true},
		{"agent/*", "operator/ops", false},
		{"[", "anything", false}, // malformed pattern denies
		{"tri*", "triage", true},
		{"tri*", "tag", false},
	}
	for _, tc := range cases {
		if got := MatchPattern(tc.pattern, tc.name); got != tc.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", tc.pattern, tc.name, got, tc.want)
		}
	}
}

func TestMatchAnyPattern(t *testing.T) {
	patterns := []string{"curation/karma/read", "curation/task/*"}
	if !MatchAnyPattern(patterns, "curation/task/list") {
		t.Fatal("expected match on second pattern")
	}
	if MatchAnyPattern(nil, "curation/task/list") {
		t.Fatal("empty pattern list must deny")
	}
}
