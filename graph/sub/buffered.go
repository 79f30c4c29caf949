package sub

import (
	"context"
	"sync"
)

// BufferedBus wraps an inner Bus and coalesces bursts of Changed events
// for slow observers: if a second Changed event for the same Addr arrives
// before the first has been delivered to the inner Bus, only the latest
// value is kept, so a subscriber that falls behind a fast-changing output
// sees its current value rather than every intermediate one — adapted
// from the teacher's in-memory BufferedEmitter (emit/buffered.go), here
// repurposed from an event-history store into a coalescing relay in front
// of the real backend (spec §4.8 "Delivery is ordered per subscriber and
// at-least-once").
type BufferedBus struct {
	inner Bus

	mu      sync.Mutex
	pending map[Addr]Event // last Changed event per addr, not yet drained
	order   []Addr         // FIFO draining order of pending addrs
	other   []Event        // Resolved/Invalidated events, delivered in order, never coalesced

	notify chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewBufferedBus starts a background goroutine draining coalesced events
// into inner.
func NewBufferedBus(inner Bus) *BufferedBus {
	b := &BufferedBus{
		inner:   inner,
		pending: make(map[Addr]Event),
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	b.wg.Add(1)
	go b.drain()
	return b
}

// Publish implements Bus. Changed events replace any not-yet-drained
// Changed event for the same address; Resolved and Invalidated events are
// always queued individually since they represent one-time transitions a
// subscriber must not miss.
func (b *BufferedBus) Publish(ev Event) {
	b.mu.Lock()
	if ev.Kind == Changed {
		if _, exists := b.pending[ev.Addr]; !exists {
			b.order = append(b.order, ev.Addr)
		}
		b.pending[ev.Addr] = ev
	} else {
		b.other = append(b.other, ev)
	}
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// PublishBatch implements Bus.
func (b *BufferedBus) PublishBatch(_ context.Context, events []Event) error {
	for _, ev := range events {
		b.Publish(ev)
	}
	return nil
}

func (b *BufferedBus) drain() {
	defer b.wg.Done()
	for {
		select {
		case <-b.notify:
			b.flushOnce()
		case <-b.done:
			b.flushOnce()
			return
		}
	}
}

func (b *BufferedBus) flushOnce() {
	b.mu.Lock()
	order := b.order
	pending := b.pending
	other := b.other
	b.order = nil
	b.pending = make(map[Addr]Event)
	b.other = nil
	b.mu.Unlock()

	for _, ev := range other {
		b.inner.Publish(ev)
	}
	for _, addr := range order {
		b.inner.Publish(pending[addr])
	}
}

// Flush drains every coalesced event into the inner Bus and then flushes
// the inner Bus itself.
func (b *BufferedBus) Flush(ctx context.Context) error {
	b.flushOnce()
	return b.inner.Flush(ctx)
}

// Close stops the background drain goroutine after delivering whatever is
// still pending.
func (b *BufferedBus) Close() {
	close(b.done)
	b.wg.Wait()
}
