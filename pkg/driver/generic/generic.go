// Package generic drives line-emitting auxiliary devices over serial or
// TCP. A received line that is exactly 24 hex characters is treated as an
// RFID tag; anything else becomes an opaque event of the configured type.
package generic

import (
	"context"
	"io"
	"strings"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/driver"
	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/transport"
	"github.com/smartx-rfid/smartx/pkg/util"
)

const defaultEventType = "generic_event"

// Driver is the passthrough reader for SERIAL and TCP device kinds.
type Driver struct {
	driver.Base
	eventType string
}

// New builds a generic driver for a SERIAL or TCP config.
func New(cfg *config.DeviceConfig, events driver.Events) *Driver {
	eventType := cfg.EventType
	if eventType == "" {
		eventType = defaultEventType
	}
	return &Driver{
		Base:      driver.NewBase(cfg, events, false),
		eventType: eventType,
	}
}

// Run performs one connect/read session.
func (d *Driver) Run(ctx context.Context) error {
	conn, err := d.dial()
	if err != nil {
		return err
	}

	d.SetConnected(true)
	defer d.SetConnected(false)
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	fb := transport.NewFrameBuffer(0)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
		if n == 0 {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		fb.Append(buf[:n])
		for {
			line, ok := fb.NextLine()
			if !ok {
				break
			}
			d.handleLine(strings.TrimSpace(string(line)))
		}
	}
}

func (d *Driver) dial() (io.ReadWriteCloser, error) {
	cfg := d.Config()
	if cfg.Reader == config.KindTCP {
		port := cfg.Port
		if port == 0 {
			port = 23
		}
		return transport.DialTCP(cfg.Connection, port)
	}
	return transport.OpenSerial(transport.SerialParams{
		Port: cfg.Connection,
		Baud: cfg.Baud,
		VID:  cfg.VID,
		PID:  cfg.PID,
	})
}

func (d *Driver) handleLine(line string) {
	if line == "" {
		return
	}
	if util.IsHexN(line, 24) {
		d.Events().OnTag(tag.Reading{Device: d.Name(), EPC: line, Ant: 1})
		return
	}
	d.Events().OnEvent(d.Name(), d.eventType, line)
}

// StartInventory is not supported on passthrough devices.
func (d *Driver) StartInventory(ctx context.Context) error { return util.ErrUnsupported }

// StopInventory is not supported on passthrough devices.
func (d *Driver) StopInventory(ctx context.Context) error { return util.ErrUnsupported }

// ClearTags is not supported on passthrough devices.
func (d *Driver) ClearTags(ctx context.Context) error { return util.ErrUnsupported }

// WriteEPC is not supported on passthrough devices.
func (d *Driver) WriteEPC(ctx context.Context, req tag.WriteRequest) error {
	return util.ErrUnsupported
}

// WriteGPO is not supported on passthrough devices.
func (d *Driver) WriteGPO(ctx context.Context, req tag.GPORequest) error {
	return util.ErrUnsupported
}
