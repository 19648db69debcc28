// Package editor holds the Editor State Mirror: a background-readable
// snapshot of selected Unity Editor state, refreshed only from the main
// thread's per-tick callback. Background code (the Listener, Connection
// Handlers, the Handshake Validator) reads through the Mirror instead of
// calling Editor APIs directly, which are not safe to call off the main
// thread.
package editor

import "sync/atomic"

// State is one refresh's worth of observed Editor state.
type State struct {
	IsCompiling   bool
	IsUpdating    bool
	EditorVersion string
}

// StateSource is implemented by the Editor integration layer; ReadState must
// only be called from the main thread.
type StateSource interface {
	ReadState() State
}

// Mirror holds the most recently refreshed State behind an atomic pointer,
// so that reads never block on and never race with a concurrent refresh.
type Mirror struct {
	state atomic.Pointer[State]
}

// NewMirror returns a Mirror pre-populated with the documented startup
// default (not-compiling, not-updating, "unknown" version), observed by any
// reader until the first Refresh runs.
func NewMirror() *Mirror {
	m := &Mirror{}
	m.state.Store(&State{EditorVersion: "unknown"})
	return m
}

// Refresh installs s as the current snapshot. Callers must only invoke
// this from the main thread, once per Editor tick.
func (m *Mirror) Refresh(s State) {
	s2 := s
	m.state.Store(&s2)
}

// RefreshFrom reads src and installs the result, for convenience at the
// Editor integration's tick callback site.
func (m *Mirror) RefreshFrom(src StateSource) {
	m.Refresh(src.ReadState())
}

// Snapshot returns the most recently refreshed state. Safe to call from
// any thread.
func (m *Mirror) Snapshot() State {
	return *m.state.Load()
}
