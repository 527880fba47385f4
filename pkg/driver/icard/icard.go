// Package icard drives ICARD UHF modules over serial. Frames are length
// prefixed (first byte counts the bytes that follow) and carry a
// CRC-16/CCITT in the last two bytes, little endian.
package icard

import (
	"context"
	"encoding/hex"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/driver"
	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/transport"
	"github.com/smartx-rfid/smartx/pkg/util"
)

// Reply opcodes, also used to sequence the setup walk.
const (
	cmdInventory = 0x01
	cmdConfig    = 0x21
	cmdBand      = 0x22
	cmdPower     = 0x2F
)

// Setup steps: module config, band, power, then inventory-ready.
const (
	stepConfig = iota
	stepBand
	stepPower
	stepReady
)

const (
	minPower = 10
	maxPower = 26

	setupInterval     = 300 * time.Millisecond
	inventoryInterval = 150 * time.Millisecond
)

// Brazilian band limits pushed during setup.
var bandData = []byte{0x13, 0x00}

// Driver is the ICARD serial state machine.
type Driver struct {
	driver.Base

	mu   sync.Mutex
	conn io.ReadWriteCloser

	step atomic.Int32
}

// New builds an ICARD driver, clamping the configured power to the module
// range.
func New(cfg *config.DeviceConfig, events driver.Events) *Driver {
	return &Driver{Base: driver.NewBase(cfg, events, true)}
}

func (d *Driver) power() byte {
	p := d.Config().Power
	if p == 0 {
		p = maxPower
	}
	if p > maxPower {
		p = maxPower
	}
	if p < minPower {
		p = minPower
	}
	return byte(p)
}

// Run performs one connect/configure/poll session.
func (d *Driver) Run(ctx context.Context) error {
	cfg := d.Config()
	conn, err := transport.OpenSerial(transport.SerialParams{
		Port: cfg.Connection,
		Baud: cfg.Baud,
		VID:  cfg.VID,
		PID:  cfg.PID,
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	d.step.Store(stepConfig)
	d.SetConnected(true)
	defer func() {
		d.mu.Lock()
		d.conn = nil
		d.mu.Unlock()
		d.DropReading()
		conn.Close()
		d.SetConnected(false)
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go d.commandLoop(ctx, done)

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
			frame := fb.NextLengthPrefixed()
			if frame == nil {
				break
			}
			d.handleFrame(frame)
		}
	}
}

// commandLoop walks the setup checklist, then keeps the inventory opcode
// flowing while the reader is active. The step only advances when the
// module acknowledges, so a lost reply just retries the same command.
func (d *Driver) commandLoop(ctx context.Context, done <-chan struct{}) {
	for {
		interval := setupInterval
		switch d.step.Load() {
		case stepConfig:
			d.write(buildFrame(cmdConfig, nil))
		case stepBand:
			d.write(buildFrame(cmdBand, bandData))
		case stepPower:
			d.write(buildFrame(cmdPower, []byte{d.power()}))
		default:
			if d.Reading() {
				d.write(inventoryFrame(byte(d.Config().Session)))
				interval = inventoryInterval
			}
		}
		select {
		case <-time.After(interval):
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Driver) write(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return util.ErrNotConnected
	}
	_, err := d.conn.Write(frame)
	return err
}

func (d *Driver) handleFrame(frame []byte) {
	if len(frame) < 3 {
		return
	}
	switch frame[2] {
	case cmdConfig:
		util.WithDevice(d.Name()).Info("module connected")
		d.step.Store(stepBand)
	case cmdBand:
		d.step.Store(stepPower)
	case cmdPower:
		d.step.Store(stepReady)
		if d.Config().StartReading {
			d.SetReading(true)
		}
	case cmdInventory:
		d.handleTags(frame)
	}
}

// handleTags unpacks the concatenated EPC list from an inventory reply:
// a 7-byte header, then 14-byte chunks of which the first 12 are the EPC.
func (d *Driver) handleTags(frame []byte) {
	if len(frame) <= 20 {
		return
	}
	data := frame[7:]
	for len(data) >= 15 {
		epc := hex.EncodeToString(data[:12])
		data = data[14:]
		d.Events().OnTag(tag.Reading{Device: d.Name(), EPC: epc, Ant: 1})
	}
}

// StartInventory activates the polling loop.
func (d *Driver) StartInventory(ctx context.Context) error {
	if !d.Connected() {
		return util.ErrNotConnected
	}
	d.SetReading(true)
	return nil
}

// StopInventory halts the polling loop.
func (d *Driver) StopInventory(ctx context.Context) error {
	d.SetReading(false)
	return nil
}

// ClearTags has no module-side state to reset.
func (d *Driver) ClearTags(ctx context.Context) error { return util.ErrUnsupported }

// WriteEPC is not available on this module.
func (d *Driver) WriteEPC(ctx context.Context, req tag.WriteRequest) error {
	return util.ErrUnsupported
}

// WriteGPO is not available on this module.
func (d *Driver) WriteGPO(ctx context.Context, req tag.GPORequest) error {
	return util.ErrUnsupported
}
