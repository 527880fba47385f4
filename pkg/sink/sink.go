// Package sink contains the downstream publishers tag and device events fan
// out to. Each sink receives the canonical event envelope and decides for
// itself whether the event is relevant.
package sink

import (
	"github.com/smartx-rfid/smartx/pkg/tag"
)

// Sink publishes one event to a downstream consumer. Publish is called from
// a dedicated goroutine per event, so implementations may block; errors are
// logged by the caller and never propagate.
type Sink interface {
	Name() string
	Publish(e tag.Event) error
	Close() error
}
