// Package diagnostics provides a reference sub-handler that reports
// recent log-category activity, sourced read-only from the Event
// Publisher's own counters. It touches internal/events only through its
// exported API, never its internals, the same way any external
// sub-handler would.
package diagnostics

import (
	"sort"

	"github.com/tsukushibito/unity-mcp-sub000/internal/proto"
	"github.com/tsukushibito/unity-mcp-sub000/internal/subhandler"
	"github.com/tsukushibito/unity-mcp-sub000/internal/wire"
)

// Tag is the payload variant this handler answers.
const Tag = "diagnostics"

// RequiredFeature gates dispatch to this handler.
const RequiredFeature = "diagnostics.basic"

// counterSource is the slice of *bridge.Server this handler actually
// calls, kept narrow so tests can fake it without standing up a real
// Publisher, Dispatcher, and pump goroutine. bridge.Server satisfies it
// by composing its Event Publisher's CategoryCounts/DroppedCount with
// its Main-Thread Dispatcher's Pending.
type counterSource interface {
	CategoryCounts() map[string]uint64
	DroppedCount() uint64
	PendingDispatch() int
}

// New returns a registerable Handler backed by src. The response body is
// a count-prefixed list of (category, count) pairs in stable
// (category-sorted) order, followed by the total events dropped by the
// queue's soft-max policy and the Main-Thread Dispatcher's current queue
// depth, so an operator polling diagnostics can see both event
// back-pressure and main-thread backlog in one round trip.
func New(src counterSource) subhandler.Handler {
	return subhandler.Handler{
		Tag:             Tag,
		RequiredFeature: RequiredFeature,
		Handle: func(body []byte) ([]byte, uint32, string) {
			counts := src.CategoryCounts()
			categories := make([]string, 0, len(counts))
			for c := range counts {
				categories = append(categories, c)
			}
			sort.Strings(categories)

			w := &wire.Writer{}
			w.WriteUint32(uint32(len(categories)))
			for _, c := range categories {
				w.WriteString(c)
				w.WriteUint64(counts[c])
			}
			w.WriteUint64(src.DroppedCount())
			w.WriteUint32(uint32(src.PendingDispatch()))
			return w.Bytes(), proto.StatusOK, ""
		},
	}
}
