package conn

import (
	"context"
	"testing"
	"time"

	"github.com/pion/logging"

	"github.com/tsukushibito/unity-mcp-sub000/internal/conntest"
	"github.com/tsukushibito/unity-mcp-sub000/internal/dispatch"
	"github.com/tsukushibito/unity-mcp-sub000/internal/editor"
	"github.com/tsukushibito/unity-mcp-sub000/internal/frame"
	"github.com/tsukushibito/unity-mcp-sub000/internal/handshake"
	"github.com/tsukushibito/unity-mcp-sub000/internal/proto"
	"github.com/tsukushibito/unity-mcp-sub000/internal/schema"
	"github.com/tsukushibito/unity-mcp-sub000/internal/subhandler"
)

// testServer bundles the shared components a Handler needs, plus a
// background goroutine that drains the dispatcher until the test stops
// it, standing in for the Editor's per-frame tick.
type testServer struct {
	dispatcher *dispatch.Dispatcher
	mirror     *editor.Mirror
	validator  *handshake.Validator
	handlers   *subhandler.Registry
	registry   *Registry
	stop       chan struct{}
}

func newTestServer(t *testing.T, supportedFeatures []string) *testServer {
	t.Helper()
	d := dispatch.New()
	m := editor.NewMirror()
	m.Refresh(editor.State{EditorVersion: "2022.3.10f1"})

	v := handshake.New(handshake.Config{
		ServerToken:       "",
		SupportedFeatures: supportedFeatures,
		ServerName:        "unity-editor-bridge",
		ServerVersion:     "2026.1.0",
		Mirror:            m,
		Dispatcher:        d,
		Logger:            logging.NewDefaultLoggerFactory().NewLogger("handshake_test"),
	})

	handlers := subhandler.NewRegistry()
	handlers.Register(subhandler.Handler{
		Tag:             "health",
		RequiredFeature: "health.basic",
		Handle: func(body []byte) ([]byte, uint32, string) {
			return []byte("ready"), proto.StatusOK, ""
		},
	})
	handlers.Register(subhandler.Handler{
		Tag:             "assets",
		RequiredFeature: "assets.basic",
		Handle: func(body []byte) ([]byte, uint32, string) {
			return nil, proto.StatusOK, ""
		},
	})

	ts := &testServer{
		dispatcher: d,
		mirror:     m,
		validator:  v,
		handlers:   handlers,
		registry:   NewRegistry(),
		stop:       make(chan struct{}),
	}
	go func() {
		ticker := time.NewTicker(5 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ts.stop:
				return
			case <-ticker.C:
				ts.dispatcher.Drain()
			}
		}
	}()
	return ts
}

func (ts *testServer) close() {
	close(ts.stop)
}

func (ts *testServer) config() Config {
	return Config{
		Validator:  ts.validator,
		Handlers:   ts.handlers,
		Dispatcher: ts.dispatcher,
		Registry:   ts.registry,
		Logger:     logging.NewDefaultLoggerFactory().NewLogger("conn_test"),
	}
}

func sendHello(t *testing.T, w *frame.Writer, hello *proto.Hello) {
	t.Helper()
	payload, err := proto.EncodeControl(&proto.Control{Hello: hello})
	if err != nil {
		t.Fatalf("EncodeControl: %v", err)
	}
	if err := w.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame(hello): %v", err)
	}
}

func readControl(t *testing.T, r *frame.Reader) *proto.Control {
	t.Helper()
	payload, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	ctrl, err := proto.DecodeControl(payload)
	if err != nil {
		t.Fatalf("DecodeControl: %v", err)
	}
	return ctrl
}

func validHello() *proto.Hello {
	return &proto.Hello{
		Token:       "anything",
		IPCVersion:  "1.0",
		Features:    []string{"health.basic"},
		SchemaHash:  append([]byte(nil), schema.Digest[:]...),
		ProjectRoot: "/home/dev/project",
	}
}

func TestHappyPathHealthQuery(t *testing.T) {
	ts := newTestServer(t, []string{"health.basic", "assets.basic"})
	defer ts.close()

	pair := conntest.NewPair()
	defer pair.Close()

	h := NewHandler(pair.Server, ts.config())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	clientWriter := frame.NewWriter(pair.Client)
	clientReader := frame.NewReader(pair.Client)

	sendHello(t, clientWriter, validHello())

	ctrl := readControl(t, clientReader)
	if ctrl.Welcome == nil {
		t.Fatalf("expected Welcome, got %+v", ctrl)
	}
	if ctrl.Welcome.SessionID == "" {
		t.Fatal("Welcome.SessionID is empty")
	}

	req := &proto.Envelope{Request: &proto.Request{CorrelationID: "r1", VariantTag: "health"}}
	payload, err := proto.EncodeEnvelope(req)
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	if err := clientWriter.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame(request): %v", err)
	}

	respPayload, err := clientReader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame(response): %v", err)
	}
	env, err := proto.DecodeEnvelope(respPayload)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if env.Response == nil {
		t.Fatalf("expected Response, got %+v", env)
	}
	if env.Response.CorrelationID != "r1" {
		t.Fatalf("CorrelationID = %q, want r1", env.Response.CorrelationID)
	}
	if env.Response.Status != proto.StatusOK {
		t.Fatalf("Status = %d, want %d", env.Response.Status, proto.StatusOK)
	}
}

func TestSchemaMismatchRejectsAndCloses(t *testing.T) {
	ts := newTestServer(t, []string{"health.basic"})
	defer ts.close()

	pair := conntest.NewPair()
	defer pair.Close()

	h := NewHandler(pair.Server, ts.config())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	clientWriter := frame.NewWriter(pair.Client)
	clientReader := frame.NewReader(pair.Client)

	hello := validHello()
	hello.SchemaHash[0] ^= 0xff
	sendHello(t, clientWriter, hello)

	ctrl := readControl(t, clientReader)
	if ctrl.Reject == nil {
		t.Fatalf("expected Reject, got %+v", ctrl)
	}
	if ctrl.Reject.Code != proto.RejectFailedPrecondition {
		t.Fatalf("Reject.Code = %v, want FAILED_PRECONDITION", ctrl.Reject.Code)
	}

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handler did not close after reject")
	}
}

func TestFeatureGatingDeniesThenHealthStillWorks(t *testing.T) {
	ts := newTestServer(t, []string{"health.basic", "assets.basic"})
	defer ts.close()

	pair := conntest.NewPair()
	defer pair.Close()

	h := NewHandler(pair.Server, ts.config())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	clientWriter := frame.NewWriter(pair.Client)
	clientReader := frame.NewReader(pair.Client)

	hello := validHello()
	hello.Features = []string{"health.basic"} // assets.basic deliberately not requested
	sendHello(t, clientWriter, hello)
	_ = readControl(t, clientReader) // Welcome

	sendEnvelope := func(tag, corr string) {
		payload, err := proto.EncodeEnvelope(&proto.Envelope{Request: &proto.Request{CorrelationID: corr, VariantTag: tag}})
		if err != nil {
			t.Fatalf("EncodeEnvelope: %v", err)
		}
		if err := clientWriter.WriteFrame(payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	readResponse := func() *proto.Response {
		payload, err := clientReader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		env, err := proto.DecodeEnvelope(payload)
		if err != nil {
			t.Fatalf("DecodeEnvelope: %v", err)
		}
		return env.Response
	}

	sendEnvelope("assets", "r1")
	resp := readResponse()
	if resp.Status != uint32(proto.RejectPermissionDenied) {
		t.Fatalf("Status = %d, want %d (PERMISSION_DENIED)", resp.Status, proto.RejectPermissionDenied)
	}

	sendEnvelope("health", "r2")
	resp = readResponse()
	if resp.Status != proto.StatusOK {
		t.Fatalf("health Status = %d, want 0", resp.Status)
	}
}

func TestUngracefulDisconnectDuringDispatch(t *testing.T) {
	ts := newTestServer(t, []string{"health.basic"})
	defer ts.close()

	pair := conntest.NewPair()

	h := NewHandler(pair.Server, ts.config())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	clientWriter := frame.NewWriter(pair.Client)
	clientReader := frame.NewReader(pair.Client)

	sendHello(t, clientWriter, validHello())
	_ = readControl(t, clientReader)

	payload, err := proto.EncodeEnvelope(&proto.Envelope{Request: &proto.Request{CorrelationID: "r1", VariantTag: "health"}})
	if err != nil {
		t.Fatalf("EncodeEnvelope: %v", err)
	}
	if err := clientWriter.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	// Close the client's socket immediately, before the response can be
	// written; the handler must not panic and must still tear itself
	// down cleanly.
	pair.Client.Close()

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handler did not close after peer disconnect")
	}
	if ts.registry.Len() != 0 {
		t.Fatalf("registry.Len() = %d, want 0 after close", ts.registry.Len())
	}
}
