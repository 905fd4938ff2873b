// Package realtime fans newly indexed records out to live followers (e.g.
// WebSocket sessions).
//
// A single Follower polls the index for records past the last sequence
// number it has seen and broadcasts them through a Hub. Delivery is best
// effort: a listener whose buffer is full misses the event, ingestion is
// never slowed down by a slow consumer.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/log"
	"github.com/rubiojr/logsearch/pkg/search"
)

// Event is a batch of records delivered to listeners in ingest order.
type Event struct {
	Collection string
	Records    []core.LogRecord
}

// Hub is an in-memory fan-out dispatcher. Each listener receives events on
// its own buffered channel. The hub is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan Event
	nextID    uint64
	bufSize   int
}

// NewHub constructs a hub with per-listener buffer size. If bufSize <= 0, a
// default of 32 is used.
func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &Hub{
		listeners: make(map[uint64]chan Event),
		bufSize:   bufSize,
	}
}

// Register adds a listener. Callers must Unregister it to release resources.
func (h *Hub) Register() (uint64, <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes the listener and closes its channel. Unknown ids are
// ignored.
func (h *Hub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers ev to every listener whose buffer has room.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			// Drop for slow listener.
		}
	}
}

// Size returns the current number of listeners.
func (h *Hub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Match reports whether r satisfies the time range and field filters of c.
// Followers receive the whole stream and narrow it with Match. The keyword
// is not checked here: it is matched by the index (see search.Engine.Matching).
func Match(c core.SearchCriteria, r core.LogRecord) bool {
	if c.From != nil && r.LogTime.Before(*c.From) {
		return false
	}
	if c.To != nil && r.LogTime.After(*c.To) {
		return false
	}
	for field, values := range c.Filters {
		if len(values) == 0 {
			continue
		}
		v, ok := r.Field(field)
		if !ok {
			return false
		}
		got := fmt.Sprint(v)
		found := false
		for _, want := range values {
			if got == want {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Follower polls an engine for new records and broadcasts them.
type Follower struct {
	engine   *search.Engine
	hub      *Hub
	interval time.Duration
	batch    int
	logger   *log.Logger

	mu      sync.Mutex
	lastSeq int64
}

// NewFollower creates a follower polling every interval.
func NewFollower(engine *search.Engine, hub *Hub, interval time.Duration) *Follower {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Follower{
		engine:   engine,
		hub:      hub,
		interval: interval,
		batch:    500,
		logger:   log.ForService("realtime"),
	}
}

// LastSequence returns the newest sequence number already broadcast.
func (f *Follower) LastSequence() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSeq
}

// Run starts following from the current end of the collection and polls
// until ctx is done.
func (f *Follower) Run(ctx context.Context) error {
	seq, err := f.engine.LastSequence(ctx)
	if err != nil {
		return fmt.Errorf("reading last sequence: %w", err)
	}
	f.mu.Lock()
	f.lastSeq = seq
	f.mu.Unlock()
	f.logger.Infof("Following %s from sequence %d every %v", f.engine.Collection(), seq, f.interval)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := f.Poll(ctx); err != nil && ctx.Err() == nil {
				f.logger.Warnf("Poll failed: %v", err)
			}
		}
	}
}

// Poll broadcasts every record past the last broadcast sequence number.
func (f *Follower) Poll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		records, err := f.engine.Since(ctx, core.SearchCriteria{}, f.lastSeq, f.batch)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		f.lastSeq = records[len(records)-1].SequenceNumber
		f.hub.Broadcast(Event{Collection: f.engine.Collection(), Records: records})
		if len(records) < f.batch {
			return nil
		}
	}
}
