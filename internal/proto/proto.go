// Package proto defines the Envelope and Control message types exchanged
// over a connection, and their binary encoding on top of internal/wire.
// Envelope carries Request/Response/Event after handshake; Control carries
// Hello/Welcome/Reject during handshake. Both are framed identically by
// internal/frame; only the decoder consulted differs, based on connection
// state (see internal/handshake, internal/conn).
package proto

// MaxCorrelationLen is the protocol's maximum correlation id length. The
// codec does not check it: DecodeEnvelope accepts ids of any length.
const MaxCorrelationLen = 64

// RejectCode enumerates the handshake rejection reasons. Values are
// bit-exact on the wire; never renumber an existing entry.
type RejectCode uint32

const (
	RejectUnauthenticated    RejectCode = 0
	RejectFailedPrecondition RejectCode = 1
	RejectPermissionDenied   RejectCode = 2
	RejectOutOfRange         RejectCode = 3
	RejectInternal           RejectCode = 4
	RejectUnavailable        RejectCode = 5
)

func (c RejectCode) String() string {
	switch c {
	case RejectUnauthenticated:
		return "UNAUTHENTICATED"
	case RejectFailedPrecondition:
		return "FAILED_PRECONDITION"
	case RejectPermissionDenied:
		return "PERMISSION_DENIED"
	case RejectOutOfRange:
		return "OUT_OF_RANGE"
	case RejectInternal:
		return "INTERNAL"
	case RejectUnavailable:
		return "UNAVAILABLE"
	default:
		return "UNKNOWN"
	}
}

// StatusOK is the response status code for success. Anything else is a
// subsystem-defined or core-synthesized failure code.
const StatusOK uint32 = 0

// Hello is the client's handshake opener.
type Hello struct {
	Token         string
	IPCVersion    string
	Features      []string
	SchemaHash    []byte
	ProjectRoot   string
	ClientName    string
	ClientVersion string
	Meta          map[string]string
}

// Welcome is the server's successful handshake reply.
type Welcome struct {
	IPCVersion       string
	AcceptedFeatures []string
	SchemaHash       []byte
	ServerName       string
	ServerVersion    string
	EditorVersion    string
	SessionID        string
	Meta             map[string]string
}

// Reject is the server's failed handshake reply.
type Reject struct {
	Code    RejectCode
	Message string
}

// controlKind discriminates the Control union on the wire.
type controlKind uint8

const (
	controlKindHello controlKind = iota
	controlKindWelcome
	controlKindReject
)

// Control is the discriminated union read as the first frame of a new
// connection, and written by the server in reply. Exactly one of Hello,
// Welcome, Reject is non-nil, matching the discriminant used to encode it.
type Control struct {
	Hello   *Hello
	Welcome *Welcome
	Reject  *Reject
}

// Request is a client-originated call. VariantTag selects the sub-handler
// (see internal/subhandler); Body is that sub-handler's own encoding, opaque
// to the core.
type Request struct {
	CorrelationID string
	VariantTag    string
	Body          []byte
}

// Response mirrors a Request. Status is StatusOK on success; any other
// value is sub-handler- or core-defined. Message is a short human-readable
// summary, never the sole carrier of diagnostic detail (see internal/events
// for structured detail).
type Response struct {
	CorrelationID string
	VariantTag    string
	Status        uint32
	Message       string
	Body          []byte
}

// LogLevel is the severity of a log Event.
type LogLevel uint8

const (
	LogTrace LogLevel = iota
	LogDebug
	LogInfo
	LogWarn
	LogError
)

func (l LogLevel) String() string {
	switch l {
	case LogTrace:
		return "trace"
	case LogDebug:
		return "debug"
	case LogInfo:
		return "info"
	case LogWarn:
		return "warn"
	case LogError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a server-originated, unsolicited message fanned out by the
// Event Publisher (internal/events). Exactly one of the kind-specific
// fields is meaningful, selected by Kind.
type Event struct {
	Kind            EventUnionKind
	TimestampNanos  uint64
	Category        string
	Level           LogLevel // meaningful when Kind == EventKindLog
	OperationID     string   // meaningful when Kind == EventKindOperationProgress
	Message         string
	Fields          map[string]string
}

// EventUnionKind selects which Event variant a record carries.
type EventUnionKind uint8

const (
	EventKindLog EventUnionKind = iota
	EventKindOperationProgress
	EventKindLifecycle
)

// envelopeKind discriminates the Envelope union on the wire.
type envelopeKind uint8

const (
	envelopeKindRequest envelopeKind = iota
	envelopeKindResponse
	envelopeKindEvent
)

// Envelope is the discriminated union carried by every frame once a
// connection is Active. Exactly one of Request, Response, Event is
// non-nil.
type Envelope struct {
	Request  *Request
	Response *Response
	Event    *Event
}
