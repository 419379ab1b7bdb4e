// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// Blacklist is a thread-safe set of revoked token IDs. Entries arrive
// from two places: a revocation file read at startup (operator-managed,
// one token ID per line, '#' comments) and runtime Revoke calls.
//
// File-sourced entries have no expiry and survive Cleanup — the
// operator removes them by editing the file and restarting. Runtime
// entries carry the token's natural expiry and are dropped by Cleanup
// once verification would reject the token anyway.
type Blacklist struct {
	mu      sync.RWMutex
	entries map[string]time.Time
}

// NewBlacklist creates an empty blacklist.
func NewBlacklist() *Blacklist {
	return &Blacklist{entries: make(map[string]time.Time)}
}

// LoadBlacklist reads a revocation file into a new Blacklist. A
// missing file is not an error: it yields an empty blacklist, since a
// fresh deployment has nothing revoked.
func LoadBlacklist(path string) (*Blacklist, error) {
	blacklist := NewBlacklist()

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return blacklist, nil
	}
	if err != nil {
		return nil, fmt.Errorf("servicetoken: opening blacklist %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		entry := strings.TrimSpace(scanner.Text())
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		if strings.ContainsAny(entry, " \t") {
			return nil, fmt.Errorf("servicetoken: blacklist %s line %d: token IDs contain no whitespace", path, line)
		}
		blacklist.entries[entry] = time.Time{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("servicetoken: reading blacklist %s: %w", path, err)
	}

	return blacklist, nil
}

// Revoke adds a token ID with its natural expiry, after which Cleanup
// may drop the entry.
func (b *Blacklist) Revoke(tokenID string, tokenExpiresAt time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tokenID] = tokenExpiresAt
}

// IsRevoked reports whether a token ID is revoked.
func (b *Blacklist) IsRevoked(tokenID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, revoked := b.entries[tokenID]
	return revoked
}

// Cleanup drops runtime entries whose token has expired on its own.
// File-sourced entries (zero expiry) are kept. Returns the number of
// entries removed.
func (b *Blacklist) Cleanup(now time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for tokenID, expiry := range b.entries {
		if expiry.IsZero() {
			continue
		}
		if !now.Before(expiry) {
			delete(b.entries, tokenID)
			removed++
		}
	}
	return removed
}

// Len returns the number of revoked IDs currently held.
func (b *Blacklist) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
