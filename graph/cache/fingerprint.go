// Package cache provides the keyed result store backing incremental graph
// re-execution: fingerprinted records, bounded LRU eviction, and coalescing
// of concurrent duplicate misses.
package cache

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/mitchellh/hashstructure/v2"
)

// Fingerprint is a structural content hash over a node's configuration and
// its resolved inputs. Two executions that produce equal fingerprints for
// the same cache Key are guaranteed equivalent outputs.
type Fingerprint [32]byte

// zeroFingerprint is the all-zero Fingerprint; it never collides with a
// real hash in practice. Nothing in the package currently refers to it.
var zeroFingerprint Fingerprint

// ComputeFingerprint folds a node-type identifier together with the
// structural hash of its configuration and the hashes of each resolved
// input, in declared input order, into a single 256-bit digest.
//
// Inputs are hashed in order rather than combined unordered: swapping two
// inputs of the same type must change the fingerprint (this is what makes
// variadic reordering invalidate the consuming node, per the cache's
// eviction policy).
func ComputeFingerprint(nodeType uint64, cfgHash [32]byte, inputHashes ...[32]byte) Fingerprint {
	h := sha256.New()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nodeType)
	h.Write(buf[:])
	h.Write(cfgHash[:])
	for _, ih := range inputHashes {
		h.Write(ih[:])
	}
	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// HashStruct produces a stable structural hash of an arbitrary Go value
// (a node's configuration blob, or a value whose concrete type does not
// implement its own equality/hash) without requiring manual marshaling.
// It returns ok=false when the value cannot be hashed (e.g. it contains a
// channel or a func field), which callers must treat as "not cacheable".
func HashStruct(v any) (sum [32]byte, ok bool) {
	h, err := hashstructure.Hash(v, hashstructure.FormatV2, nil)
	if err != nil {
		return sum, false
	}
	binary.BigEndian.PutUint64(sum[:8], h)
	// hashstructure returns a 64-bit digest; widen it into the 256-bit
	// fingerprint space by re-hashing so downstream folding stays uniform.
	wide := sha256.Sum256(sum[:8])
	return wide, true
}
