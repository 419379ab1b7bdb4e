// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package curation

import (
	"strings"
	"testing"
)

func TestNewVerificationCode(t *testing.T) {
	code, err := NewVerificationCode()
	if err != nil {
		t.Fatalf("NewVerificationCode: %v", err)
	}
	if !strings.HasPrefix(code, "curia-verify-") {
		t.Fatalf("code %q lacks curia-verify- prefix", code)
	}
	if len(code) != len("curia-verify-")+2*verificationCodeBytes {
		t.Fatalf("code %q has unexpected length %d", code, len(code))
	}

	other, err := NewVerificationCode()
	if err != nil {
		t.Fatalf("NewVerificationCode: %v", err)
	}
	if code == other {
		t.Fatal("two codes came out identical")
	}
}
