// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package auditchain

import (
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/curia-foundation/curia/lib/codec"
	"github.com/curia-foundation/curia/lib/secret"
)

// Directory names within the chain root.
const (
	snapshotDir = "snapshots"
	tmpDir      = "tmp"
)

// headFile names the file holding the hex hash of the current chain
// head. The file is a convenience pointer, not a trust anchor: tamper
// evidence comes from the parent links inside the snapshots, checked
// against an externally recorded head.
const headFile = "HEAD"

// envelopeVersion is the version field of every snapshot envelope.
const envelopeVersion = 1

// encryptedSnapshotVersion is the version byte prepended to encrypted
// snapshot files. Included as additional authenticated data, so
// tampering with it causes authentication failure.
const encryptedSnapshotVersion byte = 0x01

// snapshotEnvelope is the encoded content of one snapshot file. The
// snapshot's hash is computed over the deterministic CBOR encoding of
// this structure, so the parent link and sequence number are part of
// the addressed bytes: re-exporting identical dump content still
// produces a distinct snapshot.
type snapshotEnvelope struct {
	Version   int    `json:"version"`
	Parent    Hash   `json:"parent"`
	Sequence  uint64 `json:"sequence"`
	CreatedAt int64  `json:"created_at"`
	DumpSize  int64  `json:"dump_size"`
	Dump      []byte `json:"dump"`
}

// Entry describes one snapshot's position in the chain.
type Entry struct {
	// Hash is the snapshot-domain hash of the encoded envelope.
	Hash Hash

	// Parent is the hash of the previous chain head. Zero for the
	// first snapshot.
	Parent Hash

	// Sequence is the 1-based chain position.
	Sequence uint64

	// CreatedAt is when the snapshot was appended.
	CreatedAt time.Time
}

// Ref returns the short snapshot reference for logs and responses.
func (e Entry) Ref() string {
	return FormatRef(e.Hash)
}

// Snapshot is a loaded chain entry with its decompressed dump.
type Snapshot struct {
	Entry

	// Dump is the original export document, exactly as appended.
	Dump []byte
}

// Chain is an append-only snapshot store. Every snapshot embeds the
// hash of the previous chain head, so rewriting history changes every
// subsequent address and is detectable by [Chain.Verify].
//
// Appends serialize on an internal mutex; loads are safe concurrently
// with appends.
type Chain struct {
	root string
	aead cipher.AEAD

	mu   sync.Mutex
	head *Entry
}

// Open opens the chain rooted at the given directory, creating the
// directory structure if needed and loading the current head.
//
// When encryptionKey is non-nil, snapshot files are encrypted at rest
// with XChaCha20-Poly1305; the key must be exactly 32 bytes. The key
// is borrowed (read via Bytes) and not retained: the caller may close
// the buffer after Open returns. A nil key stores snapshots in clear;
// opening an encrypted chain without its key (or with the wrong key)
// fails when the head snapshot is loaded.
func Open(root string, encryptionKey *secret.Buffer) (*Chain, error) {
	for _, dir := range []string{
		root,
		filepath.Join(root, snapshotDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit chain directory %s: %w", dir, err)
		}
	}

	chain := &Chain{root: root}

	if encryptionKey != nil {
		aead, err := chacha20poly1305.NewX(encryptionKey.Bytes())
		if err != nil {
			return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
		}
		chain.aead = aead
	}

	if err := chain.loadHead(); err != nil {
		return nil, err
	}
	return chain, nil
}

// Head returns the current chain head. The second return is false
// when the chain is empty.
func (c *Chain) Head() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.head == nil {
		return Entry{}, false
	}
	return *c.head, true
}

// Append adds a snapshot holding the given dump and advances the
// chain head. The dump is zstd-compressed inside the envelope; the
// envelope embeds the previous head as its parent.
func (c *Chain) Append(dump []byte, createdAt time.Time) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	envelope := snapshotEnvelope{
		Version:   envelopeVersion,
		Sequence:  1,
		CreatedAt: createdAt.Unix(),
		DumpSize:  int64(len(dump)),
		Dump:      zstdEncoder.EncodeAll(dump, nil),
	}
	if c.head != nil {
		envelope.Parent = c.head.Hash
		envelope.Sequence = c.head.Sequence + 1
	}

	payload, err := codec.Marshal(envelope)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding snapshot envelope: %w", err)
	}
	hash := HashSnapshot(payload)

	content := payload
	if c.aead != nil {
		content, err = c.encryptSnapshot(payload, hash)
		if err != nil {
			return Entry{}, err
		}
	}

	if err := c.writeSnapshotFile(hash, content); err != nil {
		return Entry{}, err
	}
	if err := c.writeHead(hash); err != nil {
		return Entry{}, err
	}

	entry := Entry{
		Hash:      hash,
		Parent:    envelope.Parent,
		Sequence:  envelope.Sequence,
		CreatedAt: time.Unix(envelope.CreatedAt, 0).UTC(),
	}
	c.head = &entry
	return entry, nil
}

// Load reads one snapshot by hash, verifying that the stored bytes
// still match their address.
func (c *Chain) Load(hash Hash) (*Snapshot, error) {
	content, err := os.ReadFile(c.snapshotPath(hash))
	if err != nil {
		return nil, fmt.Errorf("reading snapshot %s: %w", FormatRef(hash), err)
	}

	payload := content
	if c.aead != nil {
		payload, err = c.decryptSnapshot(content, hash)
		if err != nil {
			return nil, err
		}
	}

	if HashSnapshot(payload) != hash {
		return nil, fmt.Errorf("snapshot %s does not match its address: content has been altered", FormatRef(hash))
	}

	var envelope snapshotEnvelope
	if err := codec.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", FormatRef(hash), err)
	}
	if envelope.Version != envelopeVersion {
		return nil, fmt.Errorf("snapshot %s version %d is not supported (expected %d)",
			FormatRef(hash), envelope.Version, envelopeVersion)
	}

	dump, err := decompressDump(envelope.Dump, envelope.DumpSize)
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot %s: %w", FormatRef(hash), err)
	}

	return &Snapshot{
		Entry: Entry{
			Hash:      hash,
			Parent:    envelope.Parent,
			Sequence:  envelope.Sequence,
			CreatedAt: time.Unix(envelope.CreatedAt, 0).UTC(),
		},
		Dump: dump,
	}, nil
}

// Verify walks the chain from the head back to the first snapshot,
// checking that every snapshot matches its address, that sequence
// numbers descend by one, and that the walk terminates at a genesis
// snapshot with a zero parent. Returns nil for an empty chain.
func (c *Chain) Verify() error {
	head, ok := c.Head()
	if !ok {
		return nil
	}

	var zero Hash
	hash := head.Hash
	expectedSequence := head.Sequence

	for {
		snapshot, err := c.Load(hash)
		if err != nil {
			return fmt.Errorf("audit chain broken at %s: %w", FormatRef(hash), err)
		}
		if snapshot.Sequence != expectedSequence {
			return fmt.Errorf("audit chain broken at %s: sequence %d, expected %d",
				FormatRef(hash), snapshot.Sequence, expectedSequence)
		}

		if snapshot.Parent == zero {
			if snapshot.Sequence != 1 {
				return fmt.Errorf("audit chain broken at %s: zero parent at sequence %d",
					FormatRef(hash), snapshot.Sequence)
			}
			return nil
		}

		hash = snapshot.Parent
		expectedSequence--
	}
}

// loadHead reads the head pointer and loads the snapshot it names so
// a stale or corrupt head surfaces at open time, not first append.
func (c *Chain) loadHead() error {
	data, err := os.ReadFile(filepath.Join(c.root, headFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading audit chain head: %w", err)
	}

	hash, err := ParseHash(string(trimNewline(data)))
	if err != nil {
		return fmt.Errorf("parsing audit chain head: %w", err)
	}

	snapshot, err := c.Load(hash)
	if err != nil {
		return fmt.Errorf("loading audit chain head: %w", err)
	}

	c.head = &snapshot.Entry
	return nil
}

// writeSnapshotFile writes a snapshot via atomic rename through the
// tmp directory. An existing file at the target address is an error:
// hashes cover the parent and sequence, so a collision means the
// chain state is inconsistent.
func (c *Chain) writeSnapshotFile(hash Hash, content []byte) error {
	finalPath := c.snapshotPath(hash)
	if _, err := os.Stat(finalPath); err == nil {
		return fmt.Errorf("snapshot %s already exists", FormatRef(hash))
	}

	tmpFile, err := os.CreateTemp(filepath.Join(c.root, tmpDir), "snapshot-*.bin")
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(content); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing snapshot data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming snapshot to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

// writeHead updates the head pointer via atomic rename.
func (c *Chain) writeHead(hash Hash) error {
	tmpFile, err := os.CreateTemp(filepath.Join(c.root, tmpDir), "head-*.txt")
	if err != nil {
		return fmt.Errorf("creating temp head file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write([]byte(FormatHash(hash) + "\n")); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing head: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp head: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(c.root, headFile)); err != nil {
		return fmt.Errorf("renaming head: %w", err)
	}

	success = true
	return nil
}

// encryptSnapshot encrypts an envelope for storage:
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag]
//
// The version byte and snapshot hash are additional authenticated
// data, binding the ciphertext to its address so encrypted files
// cannot be swapped between addresses undetected.
func (c *Chain) encryptSnapshot(payload []byte, hash Hash) ([]byte, error) {
	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating snapshot nonce: %w", err)
	}

	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(payload)+c.aead.Overhead())
	output[0] = encryptedSnapshotVersion
	copy(output[1:], nonce[:])

	return c.aead.Seal(output, nonce[:], payload, buildAAD(encryptedSnapshotVersion, hash)), nil
}

// decryptSnapshot reverses encryptSnapshot.
func (c *Chain) decryptSnapshot(content []byte, hash Hash) ([]byte, error) {
	overhead := 1 + chacha20poly1305.NonceSizeX + c.aead.Overhead()
	if len(content) < overhead {
		return nil, fmt.Errorf("encrypted snapshot %s is %d bytes, minimum is %d",
			FormatRef(hash), len(content), overhead)
	}

	version := content[0]
	if version != encryptedSnapshotVersion {
		return nil, fmt.Errorf("encrypted snapshot %s version %d is not supported (expected %d)",
			FormatRef(hash), version, encryptedSnapshotVersion)
	}

	nonce := content[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := content[1+chacha20poly1305.NonceSizeX:]

	payload, err := c.aead.Open(nil, nonce, ciphertext, buildAAD(version, hash))
	if err != nil {
		return nil, fmt.Errorf("decrypting snapshot %s (wrong key, tampered data, or mismatched address): %w",
			FormatRef(hash), err)
	}
	return payload, nil
}

func (c *Chain) snapshotPath(hash Hash) string {
	return filepath.Join(c.root, snapshotDir, FormatHash(hash))
}

func buildAAD(version byte, hash Hash) []byte {
	aad := make([]byte, 1+len(hash))
	aad[0] = version
	copy(aad[1:], hash[:])
	return aad
}

func trimNewline(data []byte) []byte {
	for len(data) > 0 && (data[len(data)-1] == '\n' || data[len(data)-1] == '\r') {
		data = data[:len(data)-1]
	}
	return data
}

// zstdEncoder and zstdDecoder are reused across calls. Both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("auditchain: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("auditchain: zstd decoder initialization failed: " + err.Error())
	}
}

// decompressDump decompresses an envelope's dump. The stored size
// must match the decompressed length exactly.
func decompressDump(compressed []byte, dumpSize int64) ([]byte, error) {
	destination := make([]byte, 0, dumpSize)
	result, err := zstdDecoder.DecodeAll(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if int64(len(result)) != dumpSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), dumpSize)
	}
	return result, nil
}
