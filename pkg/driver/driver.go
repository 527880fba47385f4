// Package driver defines the capability set every reader driver implements
// and the narrow event callback interface drivers publish into. The event
// pipeline implements Events; drivers never import it, which keeps the
// dependency direction one-way.
package driver

import (
	"context"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/tag"
)

// State is the coarse device state exposed on the control surface.
type State int

// Control surface state codes
const (
	StateNotFound     State = -1
	StateDisconnected State = 0
	StateConnected    State = 1
	StateReading      State = 2
)

// Events is the callback surface a driver publishes canonical events into.
// TIDForEPC lets write paths promote an EPC selector to the more reliable
// TID when the tag has already been seen.
type Events interface {
	OnConnect(device string)
	OnDisconnect(device string)
	OnStart(device string)
	OnStop(device string)
	OnTag(reading tag.Reading)
	OnEvent(device, eventType string, data interface{})
	TIDForEPC(device, epc string) string
}

// Driver is the capability set shared by all reader kinds. Run performs one
// full connect/serve cycle and returns when the session ends; the
// supervisor loops it with backoff. All other methods are safe to call
// concurrently with Run.
type Driver interface {
	Name() string
	Kind() config.ReaderKind
	Config() *config.DeviceConfig
	IsRFID() bool
	Connected() bool
	Reading() bool

	Run(ctx context.Context) error

	StartInventory(ctx context.Context) error
	StopInventory(ctx context.Context) error
	ClearTags(ctx context.Context) error
	WriteEPC(ctx context.Context, req tag.WriteRequest) error
	WriteGPO(ctx context.Context, req tag.GPORequest) error
}

// DeviceState derives the control surface state code from a driver.
func DeviceState(d Driver) State {
	switch {
	case d == nil:
		return StateNotFound
	case d.Reading():
		return StateReading
	case d.Connected():
		return StateConnected
	default:
		return StateDisconnected
	}
}
