package cache

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Key identifies one cached output: a node handle and the output port it
// belongs to. Node and Port are plain uint64/string rather than the root
// package's NodeHandle/PortName types so this package never imports graph
// — the engine converts at the boundary.
type Key struct {
	Node uint64
	Port string
}

// Record is one cache entry: the fingerprint it was produced under, the
// value itself, and a monotonic revision taken from the cache-wide counter
// that every Store bumps.
type Record[V any] struct {
	Fingerprint Fingerprint
	Value       V
	Revision    uint64
}

// Cache is a per-graph store of Record values keyed by Key, with bounded
// LRU eviction for cacheable outputs and singleflight coalescing of
// concurrent duplicate misses. It is generic over the value carrier type
// so it never needs to know about graph.Value.
type Cache[V any] struct {
	mu        sync.Mutex
	lru       *lru.Cache[Key, *Record[V]]
	unbounded map[Key]*Record[V]
	byNode    map[uint64]map[Key]struct{}
	revision  uint64
	sf        singleflight.Group
}

// New creates a Cache bounded to capacity entries. A non-positive capacity
// disables bounding (every Store call succeeds without eviction), which is
// appropriate for graphs small enough that eviction never matters.
func New[V any](capacity int) *Cache[V] {
	c := &Cache[V]{byNode: make(map[uint64]map[Key]struct{})}
	if capacity > 0 {
		l, err := lru.NewWithEvict[Key, *Record[V]](capacity, func(k Key, _ *Record[V]) {
			c.forgetNode(k)
		})
		if err != nil {
			// Only returns an error for capacity <= 0, already excluded above.
			panic(err)
		}
		c.lru = l
	}
	return c
}

// Lookup returns the record stored for key if one exists and its
// fingerprint matches fp. A fingerprint mismatch is reported as a miss
// (ok=false) even though a (now-stale) record is present; callers that
// need the stale value for pass-through use LookupStale instead.
func (c *Cache[V]) Lookup(key Key, fp Fingerprint) (Record[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.get(key)
	if !ok || rec.Fingerprint != fp {
		return Record[V]{}, false
	}
	return *rec, true
}

// LookupStale returns whatever record is stored for key regardless of
// fingerprint, used to surface a "stale-but-valid" value alongside a
// Pending flag while an upstream async node is outstanding.
func (c *Cache[V]) LookupStale(key Key) (Record[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.get(key)
	if !ok {
		return Record[V]{}, false
	}
	return *rec, true
}

func (c *Cache[V]) get(key Key) (*Record[V], bool) {
	if c.lru != nil {
		return c.lru.Get(key)
	}
	set := c.byNode[key.Node]
	if set == nil {
		return nil, false
	}
	_, present := set[key]
	if !present {
		return nil, false
	}
	rec := c.unbounded[key]
	return rec, rec != nil
}

// Store records value under key with fingerprint fp, bumping the global
// revision counter. cacheable=false means the output type has no usable
// equality or was explicitly excluded; in that case Store is a no-op and
// the node re-runs unconditionally on every execution, matching the
// "non-cacheable outputs" eviction rule.
func (c *Cache[V]) Store(key Key, fp Fingerprint, value V, cacheable bool) Record[V] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revision++
	rec := &Record[V]{Fingerprint: fp, Value: value, Revision: c.revision}
	if !cacheable {
		return *rec
	}
	if c.lru != nil {
		c.lru.Add(key, rec)
	} else {
		if c.unbounded == nil {
			c.unbounded = make(map[Key]*Record[V])
		}
		c.unbounded[key] = rec
	}
	set := c.byNode[key.Node]
	if set == nil {
		set = make(map[Key]struct{})
		c.byNode[key.Node] = set
	}
	set[key] = struct{}{}
	return *rec
}

// Invalidate drops the record for a single key, e.g. because a variadic
// input was reordered.
func (c *Cache[V]) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru != nil {
		c.lru.Remove(key)
	} else if c.unbounded != nil {
		delete(c.unbounded, key)
	}
	if set := c.byNode[key.Node]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(c.byNode, key.Node)
		}
	}
}

// InvalidateNode drops every record belonging to a node, used when the
// node's configuration changes or the node is removed from the graph.
func (c *Cache[V]) InvalidateNode(node uint64) {
	c.mu.Lock()
	keys := c.byNode[node]
	c.mu.Unlock()
	for key := range keys {
		c.Invalidate(key)
	}
}

// forgetNode is the LRU eviction callback: it keeps byNode in sync when an
// entry is evicted by capacity pressure rather than an explicit Invalidate.
func (c *Cache[V]) forgetNode(key Key) {
	if set := c.byNode[key.Node]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(c.byNode, key.Node)
		}
	}
}

// Do coalesces concurrent cache misses for the same key+fingerprint: if
// another goroutine is already computing this exact (key, fp) pair, the
// caller waits for that result instead of invoking fn a second time. shared
// reports whether the result was produced by a concurrent caller.
func (c *Cache[V]) Do(key Key, fp Fingerprint, fn func() (V, error)) (v V, err error, shared bool) {
	res, err, shared := c.sf.Do(FingerprintKey(key, fp), func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero V
		return zero, err, shared
	}
	return res.(V), nil, shared
}

// DoAny coalesces concurrent duplicate work the same way as Do, but for a
// caller producing a payload shape the Cache itself isn't parameterized
// over — e.g. the engine's executeNode coalescing a whole node's Outputs
// map (many ports at once) through a Cache[Value] built for one port at a
// time. Go generics forbid a method from introducing a type parameter the
// receiver doesn't already have, so this goes through the untyped
// singleflight.Group directly rather than V; callers type-assert the
// result themselves, exactly as Do does internally with res.(V).
func (c *Cache[V]) DoAny(sfKey string, fn func() (any, error)) (v any, err error, shared bool) {
	return c.sf.Do(sfKey, fn)
}

// FingerprintKey derives the singleflight coalescing key for one (key, fp)
// pair, exported so callers building a key for DoAny (which isn't itself
// scoped to a single Key) can reuse the same derivation Do uses internally.
func FingerprintKey(key Key, fp Fingerprint) string {
	return string(fp[:]) + ":" + key.Port + ":" + uitoa(key.Node)
}

func uitoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
