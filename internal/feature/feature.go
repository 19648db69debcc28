// Package feature implements the Feature Guard: an immutable snapshot of
// the feature tags a connection negotiated at Welcome time, consulted on
// every subsequent dispatch.
package feature

// Guard exposes membership tests over a fixed set of accepted feature
// tags. It is built once, at Welcome time, and never mutated afterward:
// per-connection capabilities do not change mid-session.
type Guard struct {
	accepted map[string]struct{}
}

// NewGuard builds a Guard from accepted, the negotiated accepted_features
// list. Order and duplicates in accepted do not matter to the Guard; they
// matter only on the wire (see internal/handshake for the intersection
// that produces this list).
func NewGuard(accepted []string) *Guard {
	g := &Guard{accepted: make(map[string]struct{}, len(accepted))}
	for _, tag := range accepted {
		g.accepted[tag] = struct{}{}
	}
	return g
}

// IsEnabled reports whether tag was accepted. An empty tag (a sub-handler
// that requires no feature) is always enabled. Unknown tags resolve to
// false.
func (g *Guard) IsEnabled(tag string) bool {
	if tag == "" {
		return true
	}
	_, ok := g.accepted[tag]
	return ok
}

// Tags returns the accepted feature tags. The returned slice is a fresh
// copy; callers may not assume any particular order.
func (g *Guard) Tags() []string {
	tags := make([]string, 0, len(g.accepted))
	for tag := range g.accepted {
		tags = append(tags, tag)
	}
	return tags
}
