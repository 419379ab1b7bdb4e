// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/curia-foundation/curia/lib/codec"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected map[string]any
	}{
		{
			name:    "plain object",
			payload: `{"handle": "ada"}`,
			expected: map[string]any{
				"handle": "ada",
			},
		},
		{
			name: "comments and trailing comma stripped",
			payload: `{
				// the task to answer
				"task_id": "triage-abc",
				"answer": "signal", // agreed value
			}`,
			expected: map[string]any{
				"task_id": "triage-abc",
				"answer":  "signal",
			},
		},
		{
			name:    "integral numbers decode as int64",
			payload: `{"quota": 5, "limit": 10}`,
			expected: map[string]any{
				"quota": int64(5),
				"limit": int64(10),
			},
		},
		{
			name:    "fractional numbers decode as float64",
			payload: `{"ratio": 0.6}`,
			expected: map[string]any{
				"ratio": 0.6,
			},
		},
		{
			name:    "numbers inside arrays and nested objects",
			payload: `{"spec": {"quota": 3, "weights": [1, 2.5]}}`,
			expected: map[string]any{
				"spec": map[string]any{
					"quota":   int64(3),
					"weights": []any{int64(1), 2.5},
				},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fields, err := parsePayload([]byte(test.payload))
			if err != nil {
				t.Fatalf("parsePayload() error: %v", err)
			}
			if !reflect.DeepEqual(fields, test.expected) {
				t.Errorf("parsePayload() = %#v, want %#v", fields, test.expected)
			}
		})
	}
}

func TestParsePayloadRejectsMalformedDocument(t *testing.T) {
	_, err := parsePayload([]byte(`{"handle": `))
	if err == nil {
		t.Fatal("expected error for truncated payload")
	}
}

func TestParsePayloadRejectsNonObject(t *testing.T) {
	_, err := parsePayload([]byte(`["not", "an", "object"]`))
	if err == nil {
		t.Fatal("expected error for array payload")
	}
}

func TestResolvePayloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payload.jsonc")
	content := `{
		// operator task
		"type": "triage",
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing payload file: %v", err)
	}

	fields, err := resolvePayload(path)
	if err != nil {
		t.Fatalf("resolvePayload() error: %v", err)
	}
	if fields["type"] != "triage" {
		t.Errorf("fields[type] = %v, want triage", fields["type"])
	}
}

func TestResolvePayloadMissingFile(t *testing.T) {
	_, err := resolvePayload(filepath.Join(t.TempDir(), "absent.jsonc"))
	if err == nil {
		t.Fatal("expected error for missing payload file")
	}
}

func TestSaveAgentToken(t *testing.T) {
	raw, err := codec.Marshal(map[string]any{
		"handle":     "ada",
		"verified":   true,
		"token":      []byte("token-bytes"),
		"expires_at": int64(1790000000),
	})
	if err != nil {
		t.Fatalf("encoding response: %v", err)
	}

	path := filepath.Join(t.TempDir(), "agent.token")
	if err := saveAgentToken(raw, path); err != nil {
		t.Fatalf("saveAgentToken() error: %v", err)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved token: %v", err)
	}
	if string(written) != "token-bytes" {
		t.Errorf("saved token = %q, want %q", written, "token-bytes")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat saved token: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %o, want 0600", perm)
	}
}

func TestSaveAgentTokenWithoutTokenField(t *testing.T) {
	raw, err := codec.Marshal(map[string]any{"handle": "ada"})
	if err != nil {
		t.Fatalf("encoding response: %v", err)
	}

	err = saveAgentToken(raw, filepath.Join(t.TempDir(), "agent.token"))
	if err == nil {
		t.Fatal("expected error when the response has no token")
	}
}
