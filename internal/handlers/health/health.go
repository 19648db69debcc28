// Package health provides a minimal reference sub-handler that reports
// whether the bridge process itself is reachable and what Editor state
// it currently mirrors.
package health

import (
	"github.com/tsukushibito/unity-mcp-sub000/internal/editor"
	"github.com/tsukushibito/unity-mcp-sub000/internal/proto"
	"github.com/tsukushibito/unity-mcp-sub000/internal/subhandler"
	"github.com/tsukushibito/unity-mcp-sub000/internal/wire"
)

// Tag is the payload variant this handler answers.
const Tag = "health"

// RequiredFeature gates dispatch to this handler.
const RequiredFeature = "health.basic"

// New returns a registerable Handler backed by mirror. Reaching this
// handler at all implies the process is ready; the response body also
// carries the Editor version and busy flags from the most recent
// refresh, so a caller can tell "reachable" from "reachable and idle"
// without a second round trip.
func New(mirror *editor.Mirror) subhandler.Handler {
	return subhandler.Handler{
		Tag:             Tag,
		RequiredFeature: RequiredFeature,
		Handle: func(body []byte) ([]byte, uint32, string) {
			snap := mirror.Snapshot()
			w := &wire.Writer{}
			w.WriteBool(true) // ready
			w.WriteString(snap.EditorVersion)
			w.WriteBool(snap.IsCompiling)
			w.WriteBool(snap.IsUpdating)
			return w.Bytes(), proto.StatusOK, ""
		},
	}
}
