// Package handshake implements the Handshake Validator: the fixed-order
// token/version/editor-state/schema checks that decide whether a new
// connection's Hello is answered with a Welcome or a Reject.
package handshake

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/tsukushibito/unity-mcp-sub000/internal/dispatch"
	"github.com/tsukushibito/unity-mcp-sub000/internal/editor"
	"github.com/tsukushibito/unity-mcp-sub000/internal/proto"
	"github.com/tsukushibito/unity-mcp-sub000/internal/schema"
)

// ServerIPCMajor is the server's IPC protocol major version. A client
// whose Hello declares a different major is rejected with OUT_OF_RANGE.
const ServerIPCMajor = 1

// ServerIPCVersion is the version string the server negotiates in Welcome.
const ServerIPCVersion = "1.0"

// Config wires the Validator to the server's identity and shared state.
// Mirror and Dispatcher are required. An empty ServerToken disables the
// token equality check. Logger is accepted but the Validator does not
// log through it.
type Config struct {
	// ServerToken is read from the project-scoped "MCP.IpcToken" setting.
	// Empty disables the equality check, but a non-empty client token is
	// still required.
	ServerToken string

	// SupportedFeatures is the server's full catalog of feature tags,
	// independent of what any one client requests.
	SupportedFeatures []string

	ServerName    string
	ServerVersion string

	Mirror     *editor.Mirror
	Dispatcher *dispatch.Dispatcher
	Logger     logging.LeveledLogger
}

// Validator runs the four ordered handshake checks against a decoded
// Hello and produces either a Welcome or a Reject.
type Validator struct {
	cfg      Config
	features map[string]struct{}
}

// New builds a Validator from cfg.
func New(cfg Config) *Validator {
	features := make(map[string]struct{}, len(cfg.SupportedFeatures))
	for _, f := range cfg.SupportedFeatures {
		features[f] = struct{}{}
	}
	return &Validator{cfg: cfg, features: features}
}

func reject(code proto.RejectCode, format string, args ...any) *proto.Reject {
	return &proto.Reject{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validate runs the four checks in order and returns exactly one of
// (welcome, nil) or (nil, reject). ctx bounds the single dispatcher hop
// used to read editor state; a ctx deadline expiring there surfaces as an
// UNAVAILABLE reject rather than hanging the handshake indefinitely.
func (v *Validator) Validate(ctx context.Context, hello *proto.Hello) (*proto.Welcome, *proto.Reject) {
	if rej := v.checkToken(hello); rej != nil {
		return nil, rej
	}
	if rej := v.checkIPCVersion(hello); rej != nil {
		return nil, rej
	}

	// Steps 3 (editor busy) and the editor_version read folded into the
	// eventual Welcome are served by the same main-thread snapshot read,
	// so that "not compiling" and "the version we report" describe the
	// same instant rather than two racing observations.
	state, err := v.readEditorState(ctx)
	if err != nil {
		return nil, reject(proto.RejectUnavailable, "editor state unavailable")
	}
	if rej := checkEditorState(state); rej != nil {
		return nil, rej
	}

	if rej := v.checkSchema(hello); rej != nil {
		return nil, rej
	}

	accepted := v.intersectFeatures(hello.Features)
	welcome := &proto.Welcome{
		IPCVersion:       ServerIPCVersion,
		AcceptedFeatures: accepted,
		SchemaHash:       append([]byte(nil), schema.Digest[:]...),
		ServerName:       v.cfg.ServerName,
		ServerVersion:    v.cfg.ServerVersion,
		EditorVersion:    state.EditorVersion,
		SessionID:        uuid.NewString(),
		Meta:             map[string]string{},
	}
	return welcome, nil
}

func (v *Validator) checkToken(hello *proto.Hello) *proto.Reject {
	if hello.Token == "" {
		return reject(proto.RejectUnauthenticated, "Missing or empty token")
	}
	if v.cfg.ServerToken != "" && hello.Token != v.cfg.ServerToken {
		return reject(proto.RejectUnauthenticated, "Invalid token")
	}
	return nil
}

func (v *Validator) checkIPCVersion(hello *proto.Hello) *proto.Reject {
	if hello.IPCVersion == "" {
		return reject(proto.RejectFailedPrecondition, "missing ipc_version")
	}
	major, _, ok := parseMajorMinor(hello.IPCVersion)
	if !ok {
		return reject(proto.RejectOutOfRange, "ipc_version %q is not numeric MAJOR.MINOR", hello.IPCVersion)
	}
	if major != ServerIPCMajor {
		return reject(proto.RejectOutOfRange, "ipc_version %s not supported; server=%s", hello.IPCVersion, ServerIPCVersion)
	}
	return nil
}

func parseMajorMinor(s string) (major, minor int, ok bool) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return major, minor, true
}

func checkEditorState(state editor.State) *proto.Reject {
	if state.IsCompiling {
		return reject(proto.RejectUnavailable, "editor compiling")
	}
	if state.IsUpdating {
		return reject(proto.RejectUnavailable, "editor updating")
	}
	return nil
}

func (v *Validator) readEditorState(ctx context.Context) (editor.State, error) {
	future := v.cfg.Dispatcher.Enqueue(func() (any, error) {
		return v.cfg.Mirror.Snapshot(), nil
	})
	result, err := future.Await(ctx)
	if err != nil {
		return editor.State{}, err
	}
	return result.(editor.State), nil
}

func (v *Validator) checkSchema(hello *proto.Hello) *proto.Reject {
	switch {
	case len(hello.SchemaHash) == 0:
		return reject(proto.RejectFailedPrecondition, "schema hash missing")
	case len(hello.SchemaHash) != schema.Size:
		return reject(proto.RejectFailedPrecondition, "schema hash length mismatch")
	case !schema.Equal(hello.SchemaHash):
		return reject(proto.RejectFailedPrecondition, "schema hash mismatch")
	}
	return nil
}

// intersectFeatures returns requested ∩ server-supported, preserving
// requested's order and dropping duplicates and unknowns.
func (v *Validator) intersectFeatures(requested []string) []string {
	seen := make(map[string]struct{}, len(requested))
	accepted := make([]string, 0, len(requested))
	for _, tag := range requested {
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		if _, supported := v.features[tag]; supported {
			accepted = append(accepted, tag)
		}
	}
	return accepted
}
