// Package frame implements the length-delimited binary framing used on
// every connection: a big-endian uint32 byte count followed by exactly
// that many payload bytes.
package frame

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// HeaderSize is the size in bytes of the length prefix.
	HeaderSize = 4

	// MaxFrameBytes bounds a single frame's payload (64 MiB).
	MaxFrameBytes = 64 * 1024 * 1024
)

// Errors returned by Reader.ReadFrame. Each is fatal to the underlying
// connection; there is no resynchronization point inside a frame stream.
var (
	ErrTruncatedHeader = errors.New("frame: truncated length header")
	ErrTruncatedBody   = errors.New("frame: truncated frame body")
	ErrFrameTooLarge   = errors.New("frame: frame exceeds MaxFrameBytes")
)

// Encode returns payload wrapped in a length-prefixed frame. The caller
// must ensure len(payload) <= MaxFrameBytes.
func Encode(payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Writer serializes frames to an underlying stream, flushing after each
// write. A Writer has no internal buffering of its own; callers
// serialize concurrent writers externally (see internal/conn).
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for frame writing.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame writes payload as a single frame. payload may be empty
// (a keepalive frame, per the wire format's reserved empty-payload case).
func (fw *Writer) WriteFrame(payload []byte) error {
	if len(payload) > MaxFrameBytes {
		return ErrFrameTooLarge
	}
	_, err := fw.w.Write(Encode(payload))
	return err
}

// Reader deframes a byte stream into discrete payloads.
type Reader struct {
	r io.Reader
}

// NewReader wraps r for frame reading.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadFrame blocks until a complete frame is available, the stream ends
// cleanly (io.EOF, returned unchanged so callers can distinguish a clean
// close from a truncated one), or an error occurs.
//
// An oversized length prefix is rejected without reading the frame body:
// the connection is unsalvageable at that point and the caller is
// expected to close it, not attempt to skip the declared length.
func (fr *Reader) ReadFrame() ([]byte, error) {
	var lenBuf [HeaderSize]byte
	n, err := io.ReadFull(fr.r, lenBuf[:])
	if err != nil {
		if errors.Is(err, io.EOF) && n == 0 {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, ErrTruncatedHeader
		}
		return nil, err
	}

	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxFrameBytes {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(fr.r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, ErrTruncatedBody
			}
			return nil, err
		}
	}

	return payload, nil
}
