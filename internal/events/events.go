// Package events implements the Event Publisher: a process-wide sink that
// accepts event records from Editor-side producers and fans them out to
// every Active connection, with a bounded soft queue and a drop policy
// that never starves warn/error events.
package events

import (
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/tsukushibito/unity-mcp-sub000/internal/conn"
	"github.com/tsukushibito/unity-mcp-sub000/internal/proto"
)

// DefaultSoftMax is the event queue's soft length cap.
const DefaultSoftMax = 5000

// DefaultPumpInterval paces the background drain/broadcast loop.
const DefaultPumpInterval = 10 * time.Millisecond

// Config configures a Publisher.
type Config struct {
	// SoftMax is the queue length info/debug/trace events may fill before
	// being dropped: once the queue already holds more than SoftMax
	// entries, further low-severity events are dropped. Defaults to
	// DefaultSoftMax.
	SoftMax int

	// PumpInterval paces the background drain/broadcast loop. Defaults
	// to DefaultPumpInterval.
	PumpInterval time.Duration

	// Registry is the shared broadcast set; the Publisher both reads it
	// (to find connections to fan out to) and writes it (to drop a
	// connection whose write failed).
	Registry *conn.Registry

	Logger        logging.LeveledLogger
	LoggerFactory logging.LoggerFactory
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.SoftMax <= 0 {
		cfg.SoftMax = DefaultSoftMax
	}
	if cfg.PumpInterval <= 0 {
		cfg.PumpInterval = DefaultPumpInterval
	}
	return cfg
}

// Publisher is a many-producer, single-pump event sink: producers call
// Publish from any goroutine, and a background goroutine periodically
// drains the queue and fans it out to every active connection. The zero
// value is not usable; construct with New.
type Publisher struct {
	cfg    Config
	logger logging.LeveledLogger

	mu            sync.Mutex
	queue         []*proto.Event
	progressIndex map[string]int
	droppedCount  uint64

	countersMu sync.Mutex
	byCategory map[string]uint64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a Publisher. Call Start to begin the background pump.
func New(cfg Config) *Publisher {
	resolved := cfg.withDefaults()
	logger := resolved.Logger
	if logger == nil {
		if resolved.LoggerFactory != nil {
			logger = resolved.LoggerFactory.NewLogger("events")
		} else {
			logger = logging.NewDefaultLoggerFactory().NewLogger("events")
		}
	}
	return &Publisher{
		cfg:           resolved,
		logger:        logger,
		progressIndex: make(map[string]int),
		byCategory:    make(map[string]uint64),
		stopCh:        make(chan struct{}),
	}
}

// Start launches the background pump goroutine.
func (p *Publisher) Start() {
	p.wg.Add(1)
	go p.pumpLoop()
}

// Stop signals the pump to exit and waits for it to do so. Idempotent.
func (p *Publisher) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Publish enqueues ev per the drop policy: log events at trace/debug/info
// are dropped once the queue length exceeds SoftMax; warn/error log
// events, operation-progress events, and lifecycle events are always
// enqueued. An operation-progress event replaces any still-pending event
// for the same OperationID rather than appending a second one.
func (p *Publisher) Publish(ev *proto.Event) {
	if ev.Kind == proto.EventKindLog {
		p.bumpCategory(ev.Category)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.Kind {
	case proto.EventKindOperationProgress:
		if idx, ok := p.progressIndex[ev.OperationID]; ok {
			p.queue[idx] = ev
			return
		}
		p.progressIndex[ev.OperationID] = len(p.queue)
		p.queue = append(p.queue, ev)
	case proto.EventKindLog:
		if ev.Level == proto.LogWarn || ev.Level == proto.LogError {
			p.queue = append(p.queue, ev)
			return
		}
		if len(p.queue) > p.cfg.SoftMax {
			p.droppedCount++
			return
		}
		p.queue = append(p.queue, ev)
	default: // lifecycle
		p.queue = append(p.queue, ev)
	}
}

func (p *Publisher) bumpCategory(category string) {
	p.countersMu.Lock()
	defer p.countersMu.Unlock()
	p.byCategory[category]++
}

// CategoryCounts returns a snapshot of per-category log event counts
// observed since the Publisher was created. Used by the diagnostics
// reference sub-handler.
func (p *Publisher) CategoryCounts() map[string]uint64 {
	p.countersMu.Lock()
	defer p.countersMu.Unlock()
	out := make(map[string]uint64, len(p.byCategory))
	for k, v := range p.byCategory {
		out[k] = v
	}
	return out
}

// DroppedCount reports how many events have been dropped by the
// soft-max policy since the Publisher was created.
func (p *Publisher) DroppedCount() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.droppedCount
}

func (p *Publisher) pumpLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.PumpInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.drainAndBroadcast()
		}
	}
}

func (p *Publisher) drainAndBroadcast() {
	p.mu.Lock()
	batch := p.queue
	p.queue = nil
	p.progressIndex = make(map[string]int)
	p.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for _, h := range p.cfg.Registry.ActiveConnections() {
		for _, ev := range batch {
			if err := h.WriteEvent(ev); err != nil {
				p.logger.Warnf("removing connection %s from broadcast after write failure: %v", h.ID(), err)
				p.cfg.Registry.Unregister(h)
				break
			}
		}
	}
}
