// Copyright 2026 The Curia Authors
// SPDX-License-Identifier: Apache-2.0

package servicetoken

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"os"
)

// GenerateKeypair creates a fresh Ed25519 keypair for token signing.
func GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("servicetoken: generating Ed25519 keypair: %w", err)
	}
	return public, private, nil
}

// SavePrivateKey writes the private key with 0600 permissions.
func SavePrivateKey(path string, private ed25519.PrivateKey) error {
	if err := os.WriteFile(path, private, 0600); err != nil {
		return fmt.Errorf("servicetoken: writing private key %s: %w", path, err)
	}
	return nil
}

// SavePublicKey writes the public key with 0644 permissions.
func SavePublicKey(path string, public ed25519.PublicKey) error {
	if err := os.WriteFile(path, public, 0644); err != nil {
		return fmt.Errorf("servicetoken: writing public key %s: %w", path, err)
	}
	return nil
}

// LoadPrivateKey reads and size-checks an Ed25519 private key file.
func LoadPrivateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("servicetoken: reading private key %s: %w", path, err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("servicetoken: private key %s has %d bytes, want %d", path, len(raw), ed25519.PrivateKeySize)
	}
	return ed25519.PrivateKey(raw), nil
}

// LoadPublicKey reads and size-checks an Ed25519 public key file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("servicetoken: reading public key %s: %w", path, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("servicetoken: public key %s has %d bytes, want %d", path, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
