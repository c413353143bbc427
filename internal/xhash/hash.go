// Package xhash provides the one hash function used by both the primary
// index and the inverted index.
package xhash

import "github.com/zeebo/xxh3"

// Hash maps key to an integer in [0, modulus) using xxh3-64.
//
// Determinism is the only contract callers may rely on: the same key and
// modulus always produce the same result, across processes and platforms,
// for the life of a store file. modulus == 0 always yields 0.
func Hash(key []byte, modulus uint64) uint64 {
	if modulus == 0 {
		return 0
	}

	return xxh3.Hash(key) % modulus
}
