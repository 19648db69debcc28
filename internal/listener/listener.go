// Package listener implements the Listener: a loopback TCP accept loop
// that spawns a Connection Handler per accepted stream on the background
// executor.
package listener

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"

	"github.com/tsukushibito/unity-mcp-sub000/internal/conn"
)

// DefaultAddress is the compile-time default loopback endpoint.
const DefaultAddress = "127.0.0.1:7777"

// DefaultAcceptRetryDelay is the fixed delay between retries after an
// Accept error. Deliberately flat, not exponential — see DESIGN.md for
// why this isn't built on a generic backoff library.
const DefaultAcceptRetryDelay = 100 * time.Millisecond

// Config configures a Listener.
type Config struct {
	// Address is the loopback host:port to bind. Defaults to
	// DefaultAddress.
	Address string

	// ConnConfig is passed to every conn.Handler spawned for an accepted
	// stream.
	ConnConfig conn.Config

	// AcceptRetryDelay overrides DefaultAcceptRetryDelay.
	AcceptRetryDelay time.Duration

	Logger        logging.LeveledLogger
	LoggerFactory logging.LoggerFactory
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.AcceptRetryDelay == 0 {
		cfg.AcceptRetryDelay = DefaultAcceptRetryDelay
	}
	return cfg
}

// Listener binds exactly one loopback endpoint and accepts connections
// one at a time from the OS queue.
type Listener struct {
	cfg    Config
	logger logging.LeveledLogger

	ln net.Listener

	acceptWG sync.WaitGroup
	connWG   sync.WaitGroup
	closed   atomic.Bool
}

// New builds a Listener. Call Start to bind and begin accepting.
func New(cfg Config) *Listener {
	resolved := cfg.withDefaults()
	logger := resolved.Logger
	if logger == nil {
		if resolved.LoggerFactory != nil {
			logger = resolved.LoggerFactory.NewLogger("listener")
		} else {
			logger = logging.NewDefaultLoggerFactory().NewLogger("listener")
		}
	}
	return &Listener{cfg: resolved, logger: logger}
}

// Start binds the configured address and begins accepting in a
// background goroutine. It returns once bound; accept errors after that
// point are logged and retried, never returned to the caller.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return err
	}
	l.ln = ln
	l.logger.Infof("listening on %s", ln.Addr())

	l.acceptWG.Add(1)
	go l.acceptLoop(ctx)
	return nil
}

func (l *Listener) acceptLoop(ctx context.Context) {
	defer l.acceptWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		nc, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.logger.Warnf("accept error: %v", err)
			select {
			case <-time.After(l.cfg.AcceptRetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}

		l.connWG.Add(1)
		go func() {
			defer l.connWG.Done()
			h := conn.NewHandler(nc, l.cfg.ConnConfig)
			h.Run(ctx)
		}()
	}
}

// StopAccept closes the bound listener, preventing further accepts, and
// waits only for the accept loop itself to exit — not for any
// already-spawned connection handler goroutines, which may still be
// serving established connections. Idempotent. Callers that need to tear
// down established connections too (e.g. bridge.Server, which closes
// them explicitly in between) use this instead of Stop to avoid waiting
// on connections nothing has asked to close yet.
func (l *Listener) StopAccept() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := l.ln.Close()
	l.acceptWG.Wait()
	return err
}

// Stop closes the bound listener, preventing further accepts, and waits
// for the accept loop and every in-flight connection handler it spawned
// to exit. Idempotent. A standalone caller (not orchestrating a staged
// shutdown) wants this full drain.
func (l *Listener) Stop() error {
	err := l.StopAccept()
	l.connWG.Wait()
	return err
}

// Addr returns the bound address. Only valid after a successful Start.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}
