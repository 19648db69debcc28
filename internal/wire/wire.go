// Package wire implements the primitive binary encoding used to build the
// Envelope and Control messages in internal/proto: fixed-width integers,
// length-prefixed byte strings, and the string maps/lists the handshake and
// request payloads are built from. It has no notion of message framing
// (see internal/frame) or message semantics (see internal/proto).
package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned when a Reader runs out of input mid-decode.
// Unlike a framing error, this always indicates a malformed payload: by the
// time wire decoding starts, internal/frame has already delivered a
// complete, correctly sized buffer.
var ErrShortBuffer = errors.New("wire: short buffer")

// Writer appends encoded values to an in-memory buffer. The zero value is
// ready to use.
type Writer struct {
	buf []byte
}

// Bytes returns the accumulated encoded buffer.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	w.buf = append(w.buf, v)
}

// WriteUint32 appends v as big-endian.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint64 appends v as big-endian.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteBool appends a single byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteUint8(1)
	} else {
		w.WriteUint8(0)
	}
}

// WriteBytes appends a uint32 length prefix followed by b.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteUint32(uint32(len(b)))
	w.buf = append(w.buf, b...)
}

// WriteString appends s as a length-prefixed byte string.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// WriteStringList appends a uint32 element count followed by each string,
// length-prefixed, in order. Order is preserved on decode: callers that
// need set semantics are responsible for deduplication.
func (w *Writer) WriteStringList(list []string) {
	w.WriteUint32(uint32(len(list)))
	for _, s := range list {
		w.WriteString(s)
	}
}

// WriteStringMap appends a uint32 entry count followed by each key/value
// pair, both length-prefixed strings. Entries are written in Go's map
// iteration order, which is not defined, so the same map can encode to
// different byte sequences on different calls.
func (w *Writer) WriteStringMap(m map[string]string) {
	w.WriteUint32(uint32(len(m)))
	for k, v := range m {
		w.WriteString(k)
		w.WriteString(v)
	}
}

// Reader decodes values from a fixed byte slice produced by Writer. It
// advances an internal cursor; callers must not reuse a Reader after a
// decode error.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for decoding. buf is not copied; the caller must not
// mutate it while decoding is in progress.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, ErrShortBuffer
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadUint8 decodes a single byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint32 decodes a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// ReadUint64 decodes a big-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// ReadBool decodes a single byte as a boolean; any nonzero byte is true.
func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadUint8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// ReadBytes decodes a uint32-length-prefixed byte string. The returned
// slice aliases the Reader's backing buffer; callers that retain it past
// the lifetime of that buffer must copy it.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	return r.take(int(n))
}

// ReadString decodes a length-prefixed string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadStringList decodes a string list written by WriteStringList.
func (r *Reader) ReadStringList() ([]string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	list := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

// ReadStringMap decodes a string map written by WriteStringMap.
func (r *Reader) ReadStringMap() (map[string]string, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

// ErrTrailingBytes indicates a decode left unread bytes, signaling either a
// length mismatch or a version skew between peers.
var ErrTrailingBytes = errors.New("wire: trailing bytes after decode")

// ExpectEOF returns ErrTrailingBytes if r has unread bytes remaining.
func (r *Reader) ExpectEOF() error {
	if r.Remaining() != 0 {
		return ErrTrailingBytes
	}
	return nil
}
