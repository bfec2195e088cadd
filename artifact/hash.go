// Copyright 2026 The Bollard Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest of decompressed component bytes.
// It keys the engine factory's compilation cache and addresses
// precompiled entries on disk.
type Hash [32]byte

// componentDomainKey is a 32-byte key for BLAKE3 keyed hashing.
// Domain separation keeps component hashes from colliding with any
// other hash the same bytes might carry elsewhere. The value is the
// ASCII encoding of the domain name, zero-padded to 32 bytes, so the
// key is inspectable in hex dumps without sacrificing any
// cryptographic property.
var componentDomainKey = [32]byte{
	'b', 'o', 'l', 'l', 'a', 'r', 'd', '.',
	'c', 'o', 'm', 'p', 'o', 'n', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0,
	0, 0, 0, 0, 0, 0, 0, 0,
}

// HashComponent computes the component-domain BLAKE3 keyed hash of
// data. Always computed on decompressed bytes, so the hash is stable
// across repackaging with a different layer compression.
func HashComponent(data []byte) Hash {
	hasher, err := blake3.NewKeyed(componentDomainKey[:])
	if err != nil {
		// NewKeyed fails only on a key that is not 32 bytes.
		panic("artifact: blake3 keyed hasher: " + err.Error())
	}
	hasher.Write(data)

	var hash Hash
	copy(hash[:], hasher.Sum(nil))
	return hash
}

// String returns the lowercase hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var hash Hash
	if len(s) != 64 {
		return hash, fmt.Errorf("hash %q: want 64 hex characters, have %d", s, len(s))
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return hash, fmt.Errorf("hash %q: %w", s, err)
	}
	copy(hash[:], decoded)
	return hash, nil
}
