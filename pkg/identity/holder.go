package identity

import "sync"

// Holder carries the ambient "current user" for one request: a primary
// principal plus any secondary identities resolved alongside it. The deferred
// session store swaps the holder's contents when it replays queued actions,
// so replacement is guarded for callers that read it from other goroutines.
type Holder struct {
	mu      sync.RWMutex
	primary Principal
	others  []Principal
}

// NewHolder returns a holder populated with the anonymous principal.
func NewHolder() *Holder {
	return &Holder{primary: Anonymous()}
}

// Principal returns the current primary principal.
func (h *Holder) Principal() Principal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.primary
}

// Others returns the secondary identities attached to the current user.
func (h *Holder) Others() []Principal {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Principal, len(h.others))
	copy(out, h.others)
	return out
}

// Set replaces the current user and all secondary identities in one step, so
// no reader observes a half-updated user.
func (h *Holder) Set(primary Principal, others ...Principal) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.primary = primary
	h.others = others
}

// Clear resets the holder to the anonymous principal.
func (h *Holder) Clear() {
	h.Set(Anonymous())
}
