package sub

import "sync"

// Observer receives Changed/Resolved/Invalidated events for the address it
// subscribed to.
type Observer func(Event)

// Token identifies one Subscribe call, returned so the caller can later
// Unsubscribe.
type Token uint64

// Registry implements the engine's per-address subscription bookkeeping
// (spec §4.8 "Observers register interest in a specific output address").
// It is distinct from Bus: Registry fans an event out only to observers
// that asked for that exact address, while a Bus (see NullBus/LogBus/
// OTelBus/BufferedBus) receives every event unconditionally for ambient
// observability.
type Registry struct {
	mu        sync.RWMutex
	observers map[Addr]map[Token]Observer
	lastHash  map[Addr]map[Token][32]byte
	next      uint64
}

// NewRegistry creates an empty subscription Registry.
func NewRegistry() *Registry {
	return &Registry{
		observers: make(map[Addr]map[Token]Observer),
		lastHash:  make(map[Addr]map[Token][32]byte),
	}
}

// Subscribe registers observer for events at addr, returning a Token for
// later Unsubscribe.
func (r *Registry) Subscribe(addr Addr, observer Observer) Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	tok := Token(r.next)
	if r.observers[addr] == nil {
		r.observers[addr] = make(map[Token]Observer)
		r.lastHash[addr] = make(map[Token][32]byte)
	}
	r.observers[addr][tok] = observer
	return tok
}

// Unsubscribe removes a previously registered observer. It is a no-op if
// token is unknown.
func (r *Registry) Unsubscribe(addr Addr, token Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers[addr], token)
	delete(r.lastHash[addr], token)
	if len(r.observers[addr]) == 0 {
		delete(r.observers, addr)
		delete(r.lastHash, addr)
	}
}

// Dispatch delivers ev to every observer subscribed to ev.Addr. For a
// Changed event, an observer only receives it if ev.Hash differs from the
// hash most recently delivered to that same observer (invariant 8
// "Observer liveness": every Changed event corresponds to a value whose
// hash differs from the observer's previously delivered hash) — so two
// observers subscribing at different times can each see a distinct
// "previous hash" baseline.
func (r *Registry) Dispatch(ev Event) {
	r.mu.Lock()
	observers := make(map[Token]Observer, len(r.observers[ev.Addr]))
	var toNotify []Token
	for tok, obs := range r.observers[ev.Addr] {
		observers[tok] = obs
		if ev.Kind != Changed {
			toNotify = append(toNotify, tok)
			continue
		}
		if r.lastHash[ev.Addr][tok] != ev.Hash {
			r.lastHash[ev.Addr][tok] = ev.Hash
			toNotify = append(toNotify, tok)
		}
	}
	r.mu.Unlock()

	for _, tok := range toNotify {
		observers[tok](ev)
	}
}
