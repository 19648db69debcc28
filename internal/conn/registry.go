package conn

import "sync"

// Registry is the process-wide broadcast set: every Active connection,
// keyed by session id. It is the single mutex-guarded structure shared
// between Connection Handlers and the Event Publisher. A Handler's
// feature guard is immutable after Welcome, so it needs no separate
// lock and no separate feature map alongside this one (see DESIGN.md).
type Registry struct {
	mu    sync.Mutex
	conns map[string]*Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Handler)}
}

// Register adds h to the broadcast set, keyed by its session id. Called
// once, immediately after Welcome is written and the connection
// transitions to Active.
func (r *Registry) Register(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[h.sessionID] = h
}

// Unregister idempotently removes h from the broadcast set. A second call
// for the same handler is a no-op.
func (r *Registry) Unregister(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, h.sessionID)
}

// ActiveConnections returns a snapshot of the currently registered
// handlers. The caller must not mutate the returned slice's backing
// connections outside their own write discipline.
func (r *Registry) ActiveConnections() []*Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Handler, 0, len(r.conns))
	for _, h := range r.conns {
		out = append(out, h)
	}
	return out
}

// Len reports the current broadcast set size. Intended for diagnostics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
