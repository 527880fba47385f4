package driver

import (
	"sync/atomic"

	"github.com/smartx-rfid/smartx/pkg/config"
)

// Base carries the state every driver shares: identity, config, the event
// callbacks, and the connected/reading flags. Concrete drivers embed it.
type Base struct {
	name   string
	cfg    *config.DeviceConfig
	events Events
	rfid   bool

	connected atomic.Bool
	reading   atomic.Bool
}

// NewBase builds the shared driver state.
func NewBase(cfg *config.DeviceConfig, events Events, rfid bool) Base {
	return Base{name: cfg.Name, cfg: cfg, events: events, rfid: rfid}
}

// Name returns the device name.
func (b *Base) Name() string { return b.name }

// Kind returns the configured reader kind.
func (b *Base) Kind() config.ReaderKind { return b.cfg.Reader }

// Config returns the device configuration.
func (b *Base) Config() *config.DeviceConfig { return b.cfg }

// Events returns the event callback surface.
func (b *Base) Events() Events { return b.events }

// IsRFID reports whether the device is an RFID reader (as opposed to a
// generic line-emitting device).
func (b *Base) IsRFID() bool { return b.rfid }

// Connected reports the connection flag.
func (b *Base) Connected() bool { return b.connected.Load() }

// Reading reports the inventory flag.
func (b *Base) Reading() bool { return b.reading.Load() }

// SetConnected flips the connection flag, firing OnConnect/OnDisconnect on
// edges only.
func (b *Base) SetConnected(v bool) {
	if b.connected.Swap(v) == v {
		return
	}
	if v {
		b.events.OnConnect(b.name)
	} else {
		b.events.OnDisconnect(b.name)
	}
}

// SetReading flips the inventory flag, firing OnStart/OnStop on edges only.
func (b *Base) SetReading(v bool) {
	if b.reading.Swap(v) == v {
		return
	}
	if v {
		b.events.OnStart(b.name)
	} else {
		b.events.OnStop(b.name)
	}
}

// DropReading clears the reading flag without emitting events, for
// teardown paths where the session is already gone.
func (b *Base) DropReading() {
	b.reading.Store(false)
}
