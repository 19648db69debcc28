// Package conn implements the Connection Handler: the per-connection
// goroutine that owns a stream after accept, runs the handshake, and then
// reads envelopes, dispatches requests to sub-handlers, and writes
// responses for the lifetime of the connection.
package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/tsukushibito/unity-mcp-sub000/internal/dispatch"
	"github.com/tsukushibito/unity-mcp-sub000/internal/feature"
	"github.com/tsukushibito/unity-mcp-sub000/internal/frame"
	"github.com/tsukushibito/unity-mcp-sub000/internal/handshake"
	"github.com/tsukushibito/unity-mcp-sub000/internal/proto"
	"github.com/tsukushibito/unity-mcp-sub000/internal/redact"
	"github.com/tsukushibito/unity-mcp-sub000/internal/subhandler"
)

// Default timing budgets.
const (
	DefaultHandshakeFrameTimeout = 2 * time.Second
	DefaultWriteTimeout          = 250 * time.Millisecond
)

// StatusUnknownVariant is the response status for a request whose
// VariantTag has no registered sub-handler. It is distinct from the
// handshake RejectCode table, which governs Control, not Envelope,
// responses.
const StatusUnknownVariant uint32 = 1

// ErrWriteTimedOut indicates the write mutex could not be acquired within
// its configured budget. On a response write the connection is torn down
// as a result; on an event write (WriteEvent) it is not.
var ErrWriteTimedOut = errors.New("conn: write timed out")

// ErrHandshakeRejected indicates the peer's Hello failed validation; a
// Reject was written and the connection is being closed.
var ErrHandshakeRejected = errors.New("conn: handshake rejected")

// Config wires a Handler to the shared server-wide components.
type Config struct {
	Validator    *handshake.Validator
	Handlers     *subhandler.Registry
	Dispatcher   *dispatch.Dispatcher
	Registry     *Registry
	Logger       logging.LeveledLogger
	LoggerFactory logging.LoggerFactory

	HandshakeFrameTimeout time.Duration
	WriteTimeout          time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.HandshakeFrameTimeout == 0 {
		cfg.HandshakeFrameTimeout = DefaultHandshakeFrameTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	return cfg
}

// Handler owns one accepted net.Conn for its entire lifetime: handshake,
// request dispatch, response/event writes, and teardown.
type Handler struct {
	cfg    Config
	nc     net.Conn
	reader *frame.Reader
	writer *frame.Writer
	writeMu *timedMutex
	logger logging.LeveledLogger

	sessionID string
	guard     *feature.Guard

	closeOnce sync.Once
	closed    chan struct{}
}

// NewHandler wraps an accepted connection. Call Run to drive it.
func NewHandler(nc net.Conn, cfg Config) *Handler {
	resolved := cfg.withDefaults()
	logger := resolved.Logger
	if logger == nil {
		if resolved.LoggerFactory != nil {
			logger = resolved.LoggerFactory.NewLogger("conn")
		} else {
			logger = logging.NewDefaultLoggerFactory().NewLogger("conn")
		}
	}
	return &Handler{
		cfg:     resolved,
		nc:      nc,
		reader:  frame.NewReader(nc),
		writer:  frame.NewWriter(nc),
		writeMu: newTimedMutex(),
		logger:  logger,
		closed:  make(chan struct{}),
	}
}

// ID returns the connection's session id, assigned at Welcome time. Empty
// until the handshake has completed.
func (h *Handler) ID() string {
	return h.sessionID
}

// Run drives the connection to completion: handshake, then the envelope
// read/dispatch loop, then teardown. It returns once the connection is
// fully closed. ctx cancellation is observed between frame reads and
// aborts an in-progress handshake.
func (h *Handler) Run(ctx context.Context) {
	defer h.Close()

	if err := h.runHandshake(ctx); err != nil {
		h.logger.Infof("handshake failed: %v", err)
		return
	}

	h.runLoop(ctx)
}

func (h *Handler) runHandshake(ctx context.Context) error {
	hctx, cancel := context.WithTimeout(ctx, h.cfg.HandshakeFrameTimeout)
	defer cancel()

	payload, err := h.readFrame(hctx)
	if err != nil {
		return fmt.Errorf("reading hello frame: %w", err)
	}

	ctrl, err := proto.DecodeControl(payload)
	if err != nil || ctrl.Hello == nil {
		return fmt.Errorf("first frame is not a valid Hello: %w", proto.ErrMalformed)
	}

	h.logger.Infof("hello received from project %s, token=%s", redact.Path(ctrl.Hello.ProjectRoot), redact.Token(ctrl.Hello.Token))

	welcome, reject := h.cfg.Validator.Validate(ctx, ctrl.Hello)
	if reject != nil {
		_ = h.writeControlUnsynchronized(&proto.Control{Reject: reject})
		return fmt.Errorf("%w: %s: %s", ErrHandshakeRejected, reject.Code, reject.Message)
	}

	h.guard = feature.NewGuard(welcome.AcceptedFeatures)
	h.sessionID = welcome.SessionID

	// No envelope or control bytes precede Welcome; Welcome is the very
	// first frame this handler writes.
	if err := h.writeControlUnsynchronized(&proto.Control{Welcome: welcome}); err != nil {
		return fmt.Errorf("writing welcome: %w", err)
	}

	h.cfg.Registry.Register(h)
	return nil
}

func (h *Handler) runLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		payload, err := h.readFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.logger.Debugf("connection %s closed by peer", h.sessionID)
			} else {
				h.logger.Warnf("connection %s read error: %v", h.sessionID, err)
			}
			return
		}

		env, err := proto.DecodeEnvelope(payload)
		if err != nil {
			h.logger.Warnf("connection %s malformed envelope, terminating", h.sessionID)
			return
		}

		switch {
		case env.Request != nil:
			// Dispatched inline, not in its own goroutine: the background
			// loop enqueues onto the dispatcher and awaits the handle
			// before reading the next frame, so enqueue order equals
			// arrival order and response frames preserve request order
			// (spec.md §5, §4.8).
			h.dispatchRequest(ctx, env.Request)
		case env.Response != nil, env.Event != nil:
			h.logger.Warnf("connection %s sent unexpected response/event, ignoring", h.sessionID)
		}
	}
}

type handlerResult struct {
	body    []byte
	status  uint32
	message string
}

func (h *Handler) dispatchRequest(ctx context.Context, req *proto.Request) {
	sh, ok := h.cfg.Handlers.Lookup(req.VariantTag)
	if !ok {
		h.respond(req, StatusUnknownVariant, subhandler.ErrUnknownTag{Tag: req.VariantTag}.Error(), nil)
		return
	}

	if !h.guard.IsEnabled(sh.RequiredFeature) {
		h.respond(req, uint32(proto.RejectPermissionDenied), fmt.Sprintf("feature %q not enabled", sh.RequiredFeature), nil)
		return
	}

	future := h.cfg.Dispatcher.Enqueue(func() (any, error) {
		body, status, message := sh.Handle(req.Body)
		return handlerResult{body: body, status: status, message: message}, nil
	})

	// Per-call timeouts on handler execution are sub-handler policy, not
	// the core's; the core only guards against the dispatcher having
	// been stopped underneath an in-flight request. ctx is the
	// connection's read-loop context, not context.Background(), so a
	// shutdown signal unblocks an in-flight await rather than hanging it.
	result, err := future.Await(ctx)
	if err != nil {
		h.respond(req, uint32(proto.RejectInternal), "internal error", nil)
		return
	}

	r := result.(handlerResult)
	h.respond(req, r.status, r.message, r.body)
}

func (h *Handler) respond(req *proto.Request, status uint32, message string, body []byte) {
	resp := &proto.Response{
		CorrelationID: req.CorrelationID,
		VariantTag:    req.VariantTag,
		Status:        status,
		Message:       message,
		Body:          body,
	}
	if err := h.writeEnvelope(&proto.Envelope{Response: resp}); err != nil {
		h.logger.Warnf("connection %s: failed writing response: %v", h.sessionID, err)
	}
}

// WriteEvent frames and writes ev to this connection, serialized with any
// concurrent response write. It is called by the Event Publisher and
// never closes the connection on failure: the Connection Handler alone
// owns close semantics, so a broadcast write failure only removes the
// connection from the broadcast set, not closes it.
func (h *Handler) WriteEvent(ev *proto.Event) error {
	payload, err := proto.EncodeEnvelope(&proto.Envelope{Event: ev})
	if err != nil {
		return err
	}
	if !h.writeMu.TryLock(h.cfg.WriteTimeout) {
		return ErrWriteTimedOut
	}
	defer h.writeMu.Unlock()
	return h.writer.WriteFrame(payload)
}

func (h *Handler) writeEnvelope(e *proto.Envelope) error {
	payload, err := proto.EncodeEnvelope(e)
	if err != nil {
		return err
	}
	return h.writeFrame(payload)
}

func (h *Handler) writeFrame(payload []byte) error {
	if !h.writeMu.TryLock(h.cfg.WriteTimeout) {
		h.Close()
		return ErrWriteTimedOut
	}
	defer h.writeMu.Unlock()

	if err := h.writer.WriteFrame(payload); err != nil {
		h.Close()
		return err
	}
	return nil
}

// writeControlUnsynchronized writes a Control frame during handshake,
// before the connection is registered and before any other goroutine can
// contend for the write mutex — used only from runHandshake.
func (h *Handler) writeControlUnsynchronized(c *proto.Control) error {
	payload, err := proto.EncodeControl(c)
	if err != nil {
		return err
	}
	return h.writer.WriteFrame(payload)
}

func (h *Handler) readFrame(ctx context.Context) ([]byte, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = h.nc.SetReadDeadline(dl)
	} else {
		_ = h.nc.SetReadDeadline(time.Time{})
	}
	return h.reader.ReadFrame()
}

// Close idempotently tears the connection down: unregister from the
// broadcast set, then close the underlying stream. Safe to call from any
// goroutine and any number of times.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		h.cfg.Registry.Unregister(h)
		_ = h.nc.Close()
		close(h.closed)
	})
}

// Done returns a channel closed once the connection has been torn down.
func (h *Handler) Done() <-chan struct{} {
	return h.closed
}
