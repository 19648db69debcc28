package proto

import (
	"errors"

	"github.com/tsukushibito/unity-mcp-sub000/internal/wire"
)

// ErrMalformed indicates a frame payload does not decode as the expected
// message type. Per the framing contract there is no resynchronization
// point inside a frame stream: any ErrMalformed is fatal to the connection.
var ErrMalformed = errors.New("proto: malformed message")

// EncodeControl serializes c as a Control frame payload.
func EncodeControl(c *Control) ([]byte, error) {
	var w wire.Writer
	switch {
	case c.Hello != nil:
		w.WriteUint8(uint8(controlKindHello))
		encodeHello(&w, c.Hello)
	case c.Welcome != nil:
		w.WriteUint8(uint8(controlKindWelcome))
		encodeWelcome(&w, c.Welcome)
	case c.Reject != nil:
		w.WriteUint8(uint8(controlKindReject))
		encodeReject(&w, c.Reject)
	default:
		return nil, errors.New("proto: empty Control")
	}
	return w.Bytes(), nil
}

// DecodeControl parses a Control frame payload.
func DecodeControl(payload []byte) (*Control, error) {
	r := wire.NewReader(payload)
	kind, err := r.ReadUint8()
	if err != nil {
		return nil, ErrMalformed
	}
	var c Control
	switch controlKind(kind) {
	case controlKindHello:
		h, err := decodeHello(r)
		if err != nil {
			return nil, ErrMalformed
		}
		c.Hello = h
	case controlKindWelcome:
		w, err := decodeWelcome(r)
		if err != nil {
			return nil, ErrMalformed
		}
		c.Welcome = w
	case controlKindReject:
		rej, err := decodeReject(r)
		if err != nil {
			return nil, ErrMalformed
		}
		c.Reject = rej
	default:
		return nil, ErrMalformed
	}
	if err := r.ExpectEOF(); err != nil {
		return nil, ErrMalformed
	}
	return &c, nil
}

func encodeHello(w *wire.Writer, h *Hello) {
	w.WriteString(h.Token)
	w.WriteString(h.IPCVersion)
	w.WriteStringList(h.Features)
	w.WriteBytes(h.SchemaHash)
	w.WriteString(h.ProjectRoot)
	w.WriteString(h.ClientName)
	w.WriteString(h.ClientVersion)
	w.WriteStringMap(h.Meta)
}

func decodeHello(r *wire.Reader) (*Hello, error) {
	var h Hello
	var err error
	if h.Token, err = r.ReadString(); err != nil {
		return nil, err
	}
	if h.IPCVersion, err = r.ReadString(); err != nil {
		return nil, err
	}
	if h.Features, err = r.ReadStringList(); err != nil {
		return nil, err
	}
	schemaHash, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	h.SchemaHash = append([]byte(nil), schemaHash...)
	if h.ProjectRoot, err = r.ReadString(); err != nil {
		return nil, err
	}
	if h.ClientName, err = r.ReadString(); err != nil {
		return nil, err
	}
	if h.ClientVersion, err = r.ReadString(); err != nil {
		return nil, err
	}
	if h.Meta, err = r.ReadStringMap(); err != nil {
		return nil, err
	}
	return &h, nil
}

func encodeWelcome(w *wire.Writer, welcome *Welcome) {
	w.WriteString(welcome.IPCVersion)
	w.WriteStringList(welcome.AcceptedFeatures)
	w.WriteBytes(welcome.SchemaHash)
	w.WriteString(welcome.ServerName)
	w.WriteString(welcome.ServerVersion)
	w.WriteString(welcome.EditorVersion)
	w.WriteString(welcome.SessionID)
	w.WriteStringMap(welcome.Meta)
}

func decodeWelcome(r *wire.Reader) (*Welcome, error) {
	var welcome Welcome
	var err error
	if welcome.IPCVersion, err = r.ReadString(); err != nil {
		return nil, err
	}
	if welcome.AcceptedFeatures, err = r.ReadStringList(); err != nil {
		return nil, err
	}
	schemaHash, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	welcome.SchemaHash = append([]byte(nil), schemaHash...)
	if welcome.ServerName, err = r.ReadString(); err != nil {
		return nil, err
	}
	if welcome.ServerVersion, err = r.ReadString(); err != nil {
		return nil, err
	}
	if welcome.EditorVersion, err = r.ReadString(); err != nil {
		return nil, err
	}
	if welcome.SessionID, err = r.ReadString(); err != nil {
		return nil, err
	}
	if welcome.Meta, err = r.ReadStringMap(); err != nil {
		return nil, err
	}
	return &welcome, nil
}

func encodeReject(w *wire.Writer, rej *Reject) {
	w.WriteUint32(uint32(rej.Code))
	w.WriteString(rej.Message)
}

func decodeReject(r *wire.Reader) (*Reject, error) {
	var rej Reject
	code, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	rej.Code = RejectCode(code)
	if rej.Message, err = r.ReadString(); err != nil {
		return nil, err
	}
	return &rej, nil
}

// EncodeEnvelope serializes e as an Envelope frame payload.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	var w wire.Writer
	switch {
	case e.Request != nil:
		w.WriteUint8(uint8(envelopeKindRequest))
		encodeRequest(&w, e.Request)
	case e.Response != nil:
		w.WriteUint8(uint8(envelopeKindResponse))
		encodeResponse(&w, e.Response)
	case e.Event != nil:
		w.WriteUint8(uint8(envelopeKindEvent))
		encodeEvent(&w, e.Event)
	default:
		return nil, errors.New("proto: empty Envelope")
	}
	return w.Bytes(), nil
}

// DecodeEnvelope parses an Envelope frame payload.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	r := wire.NewReader(payload)
	kind, err := r.ReadUint8()
	if err != nil {
		return nil, ErrMalformed
	}
	var e Envelope
	switch envelopeKind(kind) {
	case envelopeKindRequest:
		req, err := decodeRequest(r)
		if err != nil {
			return nil, ErrMalformed
		}
		e.Request = req
	case envelopeKindResponse:
		resp, err := decodeResponse(r)
		if err != nil {
			return nil, ErrMalformed
		}
		e.Response = resp
	case envelopeKindEvent:
		ev, err := decodeEvent(r)
		if err != nil {
			return nil, ErrMalformed
		}
		e.Event = ev
	default:
		return nil, ErrMalformed
	}
	if err := r.ExpectEOF(); err != nil {
		return nil, ErrMalformed
	}
	return &e, nil
}

func encodeRequest(w *wire.Writer, req *Request) {
	w.WriteString(req.CorrelationID)
	w.WriteString(req.VariantTag)
	w.WriteBytes(req.Body)
}

func decodeRequest(r *wire.Reader) (*Request, error) {
	var req Request
	var err error
	if req.CorrelationID, err = r.ReadString(); err != nil {
		return nil, err
	}
	if req.VariantTag, err = r.ReadString(); err != nil {
		return nil, err
	}
	body, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	req.Body = append([]byte{}, body...)
	return &req, nil
}

func encodeResponse(w *wire.Writer, resp *Response) {
	w.WriteString(resp.CorrelationID)
	w.WriteString(resp.VariantTag)
	w.WriteUint32(resp.Status)
	w.WriteString(resp.Message)
	w.WriteBytes(resp.Body)
}

func decodeResponse(r *wire.Reader) (*Response, error) {
	var resp Response
	var err error
	if resp.CorrelationID, err = r.ReadString(); err != nil {
		return nil, err
	}
	if resp.VariantTag, err = r.ReadString(); err != nil {
		return nil, err
	}
	if resp.Status, err = r.ReadUint32(); err != nil {
		return nil, err
	}
	if resp.Message, err = r.ReadString(); err != nil {
		return nil, err
	}
	body, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	resp.Body = append([]byte(nil), body...)
	return &resp, nil
}

func encodeEvent(w *wire.Writer, ev *Event) {
	w.WriteUint8(uint8(ev.Kind))
	w.WriteUint64(ev.TimestampNanos)
	w.WriteString(ev.Category)
	w.WriteUint8(uint8(ev.Level))
	w.WriteString(ev.OperationID)
	w.WriteString(ev.Message)
	w.WriteStringMap(ev.Fields)
}

func decodeEvent(r *wire.Reader) (*Event, error) {
	var ev Event
	kind, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	ev.Kind = EventUnionKind(kind)
	if ev.TimestampNanos, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	if ev.Category, err = r.ReadString(); err != nil {
		return nil, err
	}
	level, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	ev.Level = LogLevel(level)
	if ev.OperationID, err = r.ReadString(); err != nil {
		return nil, err
	}
	if ev.Message, err = r.ReadString(); err != nil {
		return nil, err
	}
	if ev.Fields, err = r.ReadStringMap(); err != nil {
		return nil, err
	}
	return &ev, nil
}
