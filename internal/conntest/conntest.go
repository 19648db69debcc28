// Package conntest provides an in-memory connection pair for tests that
// exercise the framing/handshake/dispatch stack without a real socket.
package conntest

import "net"

// Pair is two ends of an in-memory, full-duplex connection produced by
// net.Pipe. Server is the end a Handler under test owns; Client is the
// end the test drives directly with internal/frame and internal/proto.
type Pair struct {
	Client net.Conn
	Server net.Conn
}

// NewPair returns a connected Pair. Both ends must be closed by the
// caller (or indirectly, by whatever owns them) when the test finishes.
func NewPair() *Pair {
	client, server := net.Pipe()
	return &Pair{Client: client, Server: server}
}

// Close closes both ends of the pair. Safe to call even if one end was
// already closed by code under test.
func (p *Pair) Close() {
	_ = p.Client.Close()
	_ = p.Server.Close()
}
