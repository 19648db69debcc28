// Package bridge wires the core components into one process-wide
// server with an idempotent, order-sensitive lifecycle: start the
// listener and event pump on load, and on Stop work through a fixed
// teardown order (stop accepting new connections, close the
// connections already established, let the broadcast set drain as a
// consequence) rather than tearing components down in parallel.
package bridge

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/tsukushibito/unity-mcp-sub000/internal/config"
	"github.com/tsukushibito/unity-mcp-sub000/internal/conn"
	"github.com/tsukushibito/unity-mcp-sub000/internal/dispatch"
	"github.com/tsukushibito/unity-mcp-sub000/internal/editor"
	"github.com/tsukushibito/unity-mcp-sub000/internal/events"
	"github.com/tsukushibito/unity-mcp-sub000/internal/handshake"
	"github.com/tsukushibito/unity-mcp-sub000/internal/listener"
	"github.com/tsukushibito/unity-mcp-sub000/internal/proto"
	"github.com/tsukushibito/unity-mcp-sub000/internal/subhandler"
)

// Config aggregates every sub-component's configuration into the one
// object a host builds to stand up a Server.
type Config struct {
	// Address is the loopback host:port to bind. Defaults to
	// listener.DefaultAddress.
	Address string

	// SupportedFeatures is the server's full feature catalog, independent
	// of what any one client requests.
	SupportedFeatures []string

	ServerName    string
	ServerVersion string

	// TokenSource supplies the expected handshake token. Nil is
	// equivalent to an always-empty token (check disabled).
	TokenSource config.TokenSource

	// StateSource, if set, is read once at Start and by every call to
	// RefreshState thereafter; a host drives RefreshState from its own
	// per-tick callback, the same way it drives Dispatcher().Drain.
	StateSource editor.StateSource

	// Handlers are registered against the Sub-Handler Registry at
	// construction time.
	Handlers []subhandler.Handler

	EventsSoftMax      int
	EventsPumpInterval time.Duration

	AcceptRetryDelay      time.Duration
	HandshakeFrameTimeout time.Duration
	WriteTimeout          time.Duration

	Logger        logging.LeveledLogger
	LoggerFactory logging.LoggerFactory
}

// Server is the process-wide singleton: an explicitly initialized
// lifecycle bound to the host's own load/quit events, with idempotent,
// order-sensitive teardown.
type Server struct {
	cfg    Config
	logger logging.LeveledLogger

	mirror     *editor.Mirror
	dispatcher *dispatch.Dispatcher
	registry   *conn.Registry
	handlers   *subhandler.Registry
	validator  *handshake.Validator
	publisher  *events.Publisher
	ln         *listener.Listener

	mu      sync.Mutex
	running bool
}

// New builds a Server and every component it composes. Call Start to
// bind and begin accepting.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		if cfg.LoggerFactory != nil {
			logger = cfg.LoggerFactory.NewLogger("bridge")
		} else {
			logger = logging.NewDefaultLoggerFactory().NewLogger("bridge")
		}
	}

	mirror := editor.NewMirror()
	dispatcher := dispatch.New()
	registry := conn.NewRegistry()

	handlers := subhandler.NewRegistry()
	for _, h := range cfg.Handlers {
		handlers.Register(h)
	}

	var token string
	if cfg.TokenSource != nil {
		token = cfg.TokenSource.Token()
	}
	validator := handshake.New(handshake.Config{
		ServerToken:       token,
		SupportedFeatures: cfg.SupportedFeatures,
		ServerName:        cfg.ServerName,
		ServerVersion:     cfg.ServerVersion,
		Mirror:            mirror,
		Dispatcher:        dispatcher,
		Logger:            logger,
	})

	publisher := events.New(events.Config{
		SoftMax:       cfg.EventsSoftMax,
		PumpInterval:  cfg.EventsPumpInterval,
		Registry:      registry,
		Logger:        logger,
		LoggerFactory: cfg.LoggerFactory,
	})

	ln := listener.New(listener.Config{
		Address: cfg.Address,
		ConnConfig: conn.Config{
			Validator:             validator,
			Handlers:              handlers,
			Dispatcher:            dispatcher,
			Registry:              registry,
			Logger:                logger,
			LoggerFactory:         cfg.LoggerFactory,
			HandshakeFrameTimeout: cfg.HandshakeFrameTimeout,
			WriteTimeout:          cfg.WriteTimeout,
		},
		AcceptRetryDelay: cfg.AcceptRetryDelay,
		Logger:           logger,
		LoggerFactory:    cfg.LoggerFactory,
	})

	return &Server{
		cfg:        cfg,
		logger:     logger,
		mirror:     mirror,
		dispatcher: dispatcher,
		registry:   registry,
		handlers:   handlers,
		validator:  validator,
		publisher:  publisher,
		ln:         ln,
	}
}

// Mirror returns the Editor State Mirror, for a host's own per-tick
// refresh callback when no StateSource was configured.
func (s *Server) Mirror() *editor.Mirror {
	return s.mirror
}

// Dispatcher returns the Main-Thread Dispatcher, for a host's per-tick
// loop to drain.
func (s *Server) Dispatcher() *dispatch.Dispatcher {
	return s.dispatcher
}

// RefreshState re-reads the configured StateSource, if any, and installs
// the result into the Mirror. A no-op if no StateSource was configured.
// Must only be called from the main thread, same as Mirror().Refresh.
func (s *Server) RefreshState() {
	if s.cfg.StateSource != nil {
		s.mirror.RefreshFrom(s.cfg.StateSource)
	}
}

// Publish hands ev to the Event Publisher for broadcast to every active
// connection.
func (s *Server) Publish(ev *proto.Event) {
	s.publisher.Publish(ev)
}

// RegisterHandler adds h to the Sub-Handler Registry. Safe to call any
// time, including after Start, though a host typically registers every
// handler before its first connection arrives. Exists so a handler that
// itself depends on the Server (like internal/handlers/diagnostics,
// which reads the Event Publisher's counters) can be constructed after
// New and wired in afterward, rather than needing a forward reference at
// Config-build time.
func (s *Server) RegisterHandler(h subhandler.Handler) {
	s.handlers.Register(h)
}

// CategoryCounts returns the Event Publisher's per-category log event
// counts. Lets a diagnostics-style sub-handler depend on the Server
// itself instead of reaching into its Event Publisher directly.
func (s *Server) CategoryCounts() map[string]uint64 {
	return s.publisher.CategoryCounts()
}

// DroppedCount returns the Event Publisher's soft-max drop count.
func (s *Server) DroppedCount() uint64 {
	return s.publisher.DroppedCount()
}

// PendingDispatch returns the Main-Thread Dispatcher's current queue
// depth. Diagnostic only; the value is stale the instant it is returned.
func (s *Server) PendingDispatch() int {
	return s.dispatcher.Pending()
}

// Addr returns the bound address. Only valid after a successful Start.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Start binds the listener and starts the event pump. Idempotent: a
// second call while already running is a no-op.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	s.RefreshState()
	s.publisher.Start()
	if err := s.ln.Start(ctx); err != nil {
		s.publisher.Stop()
		return err
	}
	s.running = true
	return nil
}

// Stop tears the server down in a fixed order: stop accepting new
// connections, close every connection already established, then stop
// the event pump (by then the broadcast set is already empty, since
// each closed connection unregistered itself). Idempotent.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}

	err := s.ln.StopAccept()
	for _, h := range s.registry.ActiveConnections() {
		h.Close()
	}
	s.publisher.Stop()
	s.running = false
	return err
}
