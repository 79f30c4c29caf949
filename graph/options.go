package graph

import (
	"runtime"
	"time"

	"github.com/nodeflow-dev/nodeflow/graph/metrics"
	"github.com/nodeflow-dev/nodeflow/graph/sched"
	"github.com/nodeflow-dev/nodeflow/graph/sub"
)

// Options is the legacy struct form of engine configuration, usable on its
// own or mixed with functional Option values passed to New — exactly as
// the teacher's graph.New accepts both an Options struct and ...Option.
type Options struct {
	// Workers is the fixed worker-pool size for synchronous node
	// execution. Zero selects runtime.NumCPU() (spec §5).
	Workers int
	// CacheCapacity bounds the LRU for cacheable outputs. Zero or
	// negative disables bounding.
	CacheCapacity int
	// DefaultNodeTimeoutWarning is the advisory threshold after which an
	// outstanding async task gets a single Timeout event (spec §4.7.7).
	// Zero selects the 2 second default.
	DefaultNodeTimeoutWarning time.Duration
	// RetryPolicy governs automatic retry of a failed async node's
	// completion, grounded in the teacher's NodePolicy.RetryPolicy. The
	// zero value (MaxAttempts 0) never retries, matching prior behavior.
	RetryPolicy sched.RetryPolicy
}

// Option is a functional option for New, following the teacher's
// Option func(*engineConfig) error pattern so configuration stays
// chainable and self-documenting.
type Option func(*engineConfig) error

type engineConfig struct {
	opts Options
	reg  *TypeRegistry
	bus  sub.Bus
	coll *metrics.Collector
}

// WithWorkers sets the fixed-size worker pool used for synchronous node
// execution. Default: runtime.NumCPU().
func WithWorkers(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Workers = n
		return nil
	}
}

// WithCacheCapacity bounds the LRU applied to cacheable outputs.
// Non-positive disables bounding.
func WithCacheCapacity(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.CacheCapacity = n
		return nil
	}
}

// WithTimeoutWarning sets the advisory threshold after which an
// outstanding async task triggers a single Timeout event.
func WithTimeoutWarning(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.DefaultNodeTimeoutWarning = d
		return nil
	}
}

// WithRetryPolicy configures automatic retry of a failed async node's
// completion before its error is surfaced to the scheduling pass (spec
// §4.7, grounded in the teacher's NodePolicy.RetryPolicy / computeBackoff).
// The default policy never retries.
func WithRetryPolicy(p sched.RetryPolicy) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.RetryPolicy = p
		return nil
	}
}

// WithRegistry supplies the TypeRegistry the engine's Graph validates
// connections against. Defaults to DefaultRegistry.
func WithRegistry(reg *TypeRegistry) Option {
	return func(cfg *engineConfig) error {
		cfg.reg = reg
		return nil
	}
}

// WithBus supplies the subscription event bus outputs are published to.
// Defaults to sub.NewNullBus().
func WithBus(b sub.Bus) Option {
	return func(cfg *engineConfig) error {
		cfg.bus = b
		return nil
	}
}

// WithMetrics supplies a Prometheus metrics collector the scheduler and
// cache report to. Defaults to NewCollector(nil), which records into a
// private registry that is not exposed anywhere.
func WithMetrics(c *metrics.Collector) Option {
	return func(cfg *engineConfig) error {
		cfg.coll = c
		return nil
	}
}

// WithOptions applies every field of a legacy Options struct, so callers
// can mix a hand-built Options with functional Option values in a single
// New(...) call, e.g. New(WithOptions(opts), WithWorkers(16)) — the later
// option always wins, matching the teacher's "Options struct still works,
// ...Option can override" contract.
func WithOptions(o Options) Option {
	return func(cfg *engineConfig) error {
		cfg.opts = o
		return nil
	}
}

func resolveConfig(opts ...Option) (*engineConfig, error) {
	cfg := &engineConfig{}
	for _, o := range opts {
		if err := o(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.opts.Workers <= 0 {
		cfg.opts.Workers = runtime.NumCPU()
	}
	if cfg.reg == nil {
		cfg.reg = DefaultRegistry
	}
	if cfg.bus == nil {
		cfg.bus = sub.NewNullBus()
	}
	if cfg.coll == nil {
		cfg.coll = metrics.NewCollector(nil)
	}
	if cfg.opts.DefaultNodeTimeoutWarning <= 0 {
		cfg.opts.DefaultNodeTimeoutWarning = 2 * time.Second
	}
	return cfg, nil
}
