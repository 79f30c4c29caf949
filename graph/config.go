package graph

import "github.com/nodeflow-dev/nodeflow/graph/cache"

// Config is a node instance's opaque configuration blob: immutable once
// set, hashable, and equatable (spec §3 "Node instance"). Node authors
// pass any comparable-or-hashable Go value; NewConfig structurally hashes
// it once up front so SetConfig and fingerprinting never re-hash the same
// bytes twice per edit.
type Config struct {
	value any
	hash  [32]byte
	ok    bool
}

// NewConfig wraps v as a node's configuration blob. If v cannot be
// structurally hashed (e.g. it contains a channel or func field), ok is
// false and AddNode/SetConfig must reject it with ErrInvalidConfig (spec
// §4.5 "add_node ... Fails with InvalidConfig if configuration hashing
// fails").
func NewConfig(v any) Config {
	sum, ok := cache.HashStruct(v)
	return Config{value: v, hash: sum, ok: ok}
}

// Value returns the underlying configuration value, for a node's Run to
// downcast to its concrete config type.
func (c Config) Value() any { return c.value }

// Hash returns the structural hash folded into this node's cache
// fingerprint (spec §4.6 "Fingerprint": cfg_hash).
func (c Config) Hash() [32]byte { return c.hash }

// Valid reports whether this Config was successfully hashed at
// construction time.
func (c Config) Valid() bool { return c.ok }
