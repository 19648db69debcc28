// ipcbridged is a standalone demo host for the bridge server: it wires
// the health and diagnostics sub-handlers, a simulated Editor state
// source, and a ticker-driven main-thread loop, for local smoke-testing
// without a Unity Editor process.
//
// Usage:
//
//	ipcbridged [options]
//
// Options:
//
//	-address   loopback host:port to bind (default: 127.0.0.1:7777)
//	-token     expected handshake token (default: "", check disabled)
//	-version   simulated Editor version reported in Welcome/health (default: "2022.3.10f1")
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/tsukushibito/unity-mcp-sub000/bridge"
	"github.com/tsukushibito/unity-mcp-sub000/internal/config"
	"github.com/tsukushibito/unity-mcp-sub000/internal/editor"
	"github.com/tsukushibito/unity-mcp-sub000/internal/handlers/diagnostics"
	"github.com/tsukushibito/unity-mcp-sub000/internal/handlers/health"
	"github.com/tsukushibito/unity-mcp-sub000/internal/listener"
)

// simulatedEditor stands in for the real Unity Editor integration layer:
// it always reports the same idle state, configured at startup.
type simulatedEditor struct {
	version string
}

func (s simulatedEditor) ReadState() editor.State {
	return editor.State{EditorVersion: s.version}
}

func main() {
	address := flag.String("address", listener.DefaultAddress, "loopback host:port to bind")
	token := flag.String("token", "", "expected handshake token (empty disables the check)")
	version := flag.String("version", "2022.3.10f1", "simulated Editor version")
	flag.Parse()

	srv := bridge.New(bridge.Config{
		Address:           *address,
		SupportedFeatures: []string{"health.basic", "diagnostics.basic"},
		ServerName:        "unity-editor-bridge-demo",
		ServerVersion:     "2026.1.0",
		TokenSource:       config.StaticToken(*token),
		StateSource:       simulatedEditor{version: *version},
	})

	srv.RegisterHandler(health.New(srv.Mirror()))
	srv.RegisterHandler(diagnostics.New(srv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	log.Printf("listening on %s", srv.Addr())

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			srv.RefreshState()
			srv.Dispatcher().Drain()
		}
	}

	log.Printf("shutting down")
	if err := srv.Stop(); err != nil {
		log.Fatalf("stop: %v", err)
	}
}
