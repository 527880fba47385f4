package pipeline

import (
	"sync"

	"github.com/smartx-rfid/smartx/pkg/tag"
)

// DefaultRingSize bounds the in-memory event history.
const DefaultRingSize = 20

// EventRing keeps the most recent events, newest first.
type EventRing struct {
	mu    sync.RWMutex
	cap   int
	items []tag.Event
}

// NewEventRing returns a ring bounded to size entries (DefaultRingSize when
// size is not positive).
func NewEventRing(size int) *EventRing {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &EventRing{cap: size}
}

// Push prepends an event, dropping the oldest entry when full.
func (r *EventRing) Push(e tag.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append([]tag.Event{e}, r.items...)
	if len(r.items) > r.cap {
		r.items = r.items[:r.cap]
	}
}

// Snapshot returns a copy of the ring contents, newest first.
func (r *EventRing) Snapshot() []tag.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]tag.Event, len(r.items))
	copy(out, r.items)
	return out
}
