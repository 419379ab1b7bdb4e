// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package auditchain

import (
	"bytes"
	"os"
	"testing"
	"time"

	"github.com/curia-foundation/curia/lib/secret"
)

var testEpoch = time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

func testKey(t *testing.T, fill byte) *secret.Buffer {
	t.Helper()
	key, err := secret.NewFromBytes(bytes.Repeat([]byte{fill}, 32))
	if err != nil {
		t.Fatalf("creating key buffer: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func TestAppendLoadRoundTrip(t *testing.T) {
	chain, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	dump := []byte(`{"generated_at":1755691200,"tasks":[{"task":{"id":"task-a1b2c3d4e5f6"}}]}`)
	entry, err := chain.Append(dump, testEpoch)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if entry.Sequence != 1 {
		t.Errorf("first snapshot sequence = %d, want 1", entry.Sequence)
	}
	var zero Hash
	if entry.Parent != zero {
		t.Errorf("first snapshot parent = %s, want zero", FormatHash(entry.Parent))
	}
	if ref := entry.Ref(); len(ref) != len("audit-")+12 {
		t.Errorf("ref %q has unexpected length", ref)
	}

	snapshot, err := chain.Load(entry.Hash)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(snapshot.Dump, dump) {
		t.Errorf("loaded dump does not match appended dump")
	}
	if snapshot.Sequence != 1 || snapshot.Parent != zero {
		t.Errorf("loaded entry = %+v, want sequence 1 with zero parent", snapshot.Entry)
	}
	if !snapshot.CreatedAt.Equal(testEpoch) {
		t.Errorf("loaded CreatedAt = %s, want %s", snapshot.CreatedAt, testEpoch)
	}
}

func TestParentLinks(t *testing.T) {
	chain, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var entries []Entry
	for i := 0; i < 3; i++ {
		entry, err := chain.Append([]byte(`{"export":`+string(rune('0'+i))+`}`), testEpoch.Add(time.Duration(i)*time.Hour))
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		entries = append(entries, entry)
	}

	var zero Hash
	if entries[0].Parent != zero {
		t.Error("genesis parent is not zero")
	}
	if entries[1].Parent != entries[0].Hash {
		t.Error("second snapshot does not link to the first")
	}
	if entries[2].Parent != entries[1].Hash {
		t.Error("third snapshot does not link to the second")
	}
	for i, entry := range entries {
		if entry.Sequence != uint64(i+1) {
			t.Errorf("entry %d sequence = %d, want %d", i, entry.Sequence, i+1)
		}
	}

	head, ok := chain.Head()
	if !ok {
		t.Fatal("Head reports empty chain after three appends")
	}
	if head.Hash != entries[2].Hash {
		t.Error("head does not match the last appended snapshot")
	}

	if err := chain.Verify(); err != nil {
		t.Errorf("Verify failed on intact chain: %v", err)
	}
}

func TestReExportProducesNewEntry(t *testing.T) {
	// Exports are events: identical dump content still appends a
	// distinct snapshot because the parent and sequence are hashed.
	chain, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	dump := []byte(`{"tasks":[]}`)
	first, err := chain.Append(dump, testEpoch)
	if err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	second, err := chain.Append(dump, testEpoch)
	if err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	if first.Hash == second.Hash {
		t.Error("identical dumps produced identical snapshot hashes")
	}
	if second.Sequence != 2 {
		t.Errorf("second snapshot sequence = %d, want 2", second.Sequence)
	}
	if second.Parent != first.Hash {
		t.Error("second snapshot does not link to the first")
	}
}

func TestHeadPersistsAcrossReopen(t *testing.T) {
	root := t.TempDir()

	chain, err := Open(root, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first, err := chain.Append([]byte(`{"n":1}`), testEpoch)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	reopened, err := Open(root, nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	head, ok := reopened.Head()
	if !ok {
		t.Fatal("reopened chain reports empty")
	}
	if head.Hash != first.Hash {
		t.Error("reopened head does not match the last snapshot")
	}

	second, err := reopened.Append([]byte(`{"n":2}`), testEpoch.Add(time.Hour))
	if err != nil {
		t.Fatalf("Append after reopen failed: %v", err)
	}
	if second.Sequence != 2 || second.Parent != first.Hash {
		t.Errorf("append after reopen: sequence=%d parent=%s, want 2 linking to %s",
			second.Sequence, FormatRef(second.Parent), first.Ref())
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	root := t.TempDir()
	chain, err := Open(root, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	first, err := chain.Append([]byte(`{"n":1}`), testEpoch)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, err := chain.Append([]byte(`{"n":2}`), testEpoch.Add(time.Hour)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Rewrite history: flip one byte in the first snapshot's file.
	path := chain.snapshotPath(first.Hash)
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading snapshot file: %v", err)
	}
	content[len(content)/2] ^= 0xFF
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("rewriting snapshot file: %v", err)
	}

	if _, err := chain.Load(first.Hash); err == nil {
		t.Error("Load accepted an altered snapshot")
	}
	if err := chain.Verify(); err == nil {
		t.Error("Verify accepted a chain with altered history")
	}
}

func TestEmptyChain(t *testing.T) {
	chain, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, ok := chain.Head(); ok {
		t.Error("empty chain reports a head")
	}
	if err := chain.Verify(); err != nil {
		t.Errorf("Verify failed on empty chain: %v", err)
	}
}

func TestEncryptedRoundTrip(t *testing.T) {
	root := t.TempDir()

	chain, err := Open(root, testKey(t, 0xA7))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	dump := []byte(`{"tasks":[{"task":{"id":"task-0011223344ff"}}]}`)
	entry, err := chain.Append(dump, testEpoch)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	snapshot, err := chain.Load(entry.Hash)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !bytes.Equal(snapshot.Dump, dump) {
		t.Error("decrypted dump does not match appended dump")
	}

	// The key is only borrowed at Open, so a fresh buffer with the
	// same bytes must open the same chain.
	reopened, err := Open(root, testKey(t, 0xA7))
	if err != nil {
		t.Fatalf("reopen with same key failed: %v", err)
	}
	if err := reopened.Verify(); err != nil {
		t.Errorf("Verify failed on encrypted chain: %v", err)
	}
}

func TestEncryptedWrongKey(t *testing.T) {
	root := t.TempDir()

	chain, err := Open(root, testKey(t, 0xA7))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := chain.Append([]byte(`{"n":1}`), testEpoch); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if _, err := Open(root, testKey(t, 0x5C)); err == nil {
		t.Error("Open with the wrong key loaded the chain head")
	}

	if _, err := Open(root, nil); err == nil {
		t.Error("Open without a key loaded an encrypted chain head")
	}
}
