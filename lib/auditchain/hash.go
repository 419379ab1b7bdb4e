// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package auditchain

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Snapshots are addressed by the
// snapshot-domain hash of their encoded envelope.
type Hash [32]byte

// snapshotDomainKey is the BLAKE3 key for snapshot hashing. Domain
// separation keeps audit snapshot hashes from ever colliding with
// hashes computed elsewhere over the same bytes. The byte values are
// the ASCII encoding of the domain name, zero-padded to 32 bytes, so
// the key is inspectable in hex dumps.
var snapshotDomainKey = [32]byte{
	'c', 'u', 'r', 'i', 'a', '.', 'a', 'u', 'd', 'i', 't', '.',
	's', 'n', 'a', 'p', 's', 'h', 'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// HashSnapshot computes the snapshot-domain BLAKE3 keyed hash of an
// encoded envelope. This is the snapshot's address on disk and the
// parent link embedded in its successor.
func HashSnapshot(data []byte) Hash {
	hasher, err := blake3.NewKeyed(snapshotDomainKey[:])
	if err != nil {
		panic("auditchain: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// FormatHash returns the hex-encoded string representation of a hash.
func FormatHash(hash Hash) string {
	return hex.EncodeToString(hash[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(hexString string) (Hash, error) {
	var hash Hash
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return hash, fmt.Errorf("parsing snapshot hash: %w", err)
	}
	if len(decoded) != 32 {
		return hash, fmt.Errorf("snapshot hash is %d bytes, want 32", len(decoded))
	}
	copy(hash[:], decoded)
	return hash, nil
}

// FormatRef returns the short snapshot reference: the "audit-" prefix
// followed by the first 12 hex characters of the hash.
func FormatRef(hash Hash) string {
	return "audit-" + hex.EncodeToString(hash[:6])
}
