// Package ur4 drives UR4 fixed readers over TCP. Frames are delimited by
// A5 5A ... 0D 0A with a BCC byte (XOR of the payload) at position -3.
// After connecting, an ordered setup checklist configures the reader; a
// step that goes unanswered for 500 ms fails closed and drops the
// connection.
package ur4

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"net"
	"sync"
	"time"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/driver"
	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/transport"
	"github.com/smartx-rfid/smartx/pkg/util"
)

const (
	defaultPort = 8888

	setupTick    = 50 * time.Millisecond
	setupTimeout = 500 * time.Millisecond

	temperatureInterval = 10 * time.Second
	gpiPollInterval     = 200 * time.Millisecond
	ensureInterval      = time.Second

	antennaCount = 4
	minPower     = 10
	maxPower     = 30
)

// Driver is the UR4 state machine.
type Driver struct {
	driver.Base

	mu   sync.Mutex
	conn net.Conn

	setupMu    sync.Mutex
	setupDone  bool
	setupStep  int
	waitAnswer bool
	deadline   time.Time

	tempMu      sync.Mutex
	temperature int

	gpiMu sync.Mutex
	gpi   map[int]bool
}

// New builds a UR4 driver.
func New(cfg *config.DeviceConfig, events driver.Events) *Driver {
	return &Driver{
		Base: driver.NewBase(cfg, events, true),
		gpi:  map[int]bool{1: false, 2: false},
	}
}

// Temperature returns the last polled module temperature in °C.
func (d *Driver) Temperature() int {
	d.tempMu.Lock()
	defer d.tempMu.Unlock()
	return d.temperature
}

// Run performs one connect/configure/read session.
func (d *Driver) Run(ctx context.Context) error {
	cfg := d.Config()
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	conn, err := transport.DialTCP(cfg.Connection, port)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	d.resetSetup()
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

	go d.setupLoop(ctx, done, conn)
	go d.pollLoop(ctx, done, temperatureInterval, frameTemperature)
	go d.pollLoop(ctx, done, gpiPollInterval, frameGPIState)
	go d.ensureReadingLoop(ctx, done)

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
		fb.Append(buf[:n])
		for {
			frame := fb.NextDelimited(framePrefix, frameSuffix)
			if frame == nil {
				break
			}
			d.handleFrame(frame)
		}
	}
}

// send seals the BCC byte and writes the frame.
func (d *Driver) send(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return util.ErrNotConnected
	}
	sealBCC(frame)
	_, err := d.conn.Write(frame)
	return err
}

// pollLoop periodically sends a fixed query once setup has completed.
func (d *Driver) pollLoop(ctx context.Context, done <-chan struct{}, interval time.Duration, frame func() []byte) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !d.setupComplete() {
				continue
			}
			d.send(frame())
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// ensureReadingLoop re-asserts the inventory state every second so a
// reader that silently dropped out of inventory mode recovers.
func (d *Driver) ensureReadingLoop(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(ensureInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if !d.setupComplete() {
				continue
			}
			if d.Reading() {
				d.send(frameStartInventory())
				continue
			}
			d.send(frameStopInventory1())
			d.send(frameStopInventory2())
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Driver) handleFrame(frame []byte) {
	if len(frame) < 6 {
		return
	}
	cmd := frame[4]
	switch {
	case cmd == 0x83 && len(frame) == tagFrameLen:
		d.handleTagFrame(frame)

	case cmd == 0x34 && len(frame) >= 8:
		d.tempMu.Lock()
		d.temperature = (int(frame[6])<<8 | int(frame[7])) / 100
		d.tempMu.Unlock()

	case cmd == 0xA1 && len(frame) >= 8 && frame[5] == 0x0A:
		d.handleGPIFrame(frame)

	default:
		d.acknowledgeSetup()
	}
}

func (d *Driver) handleTagFrame(frame []byte) {
	epc := hex.EncodeToString(frame[7:19])
	tid := hex.EncodeToString(frame[19:31])
	rssi := int(int16(binary.BigEndian.Uint16(frame[31:33]))) / 10
	ant := int(frame[33])

	if floor := d.Config().Antenna(ant).MinRSSI; floor < 0 && rssi < floor {
		return
	}
	d.Events().OnTag(tag.Reading{Device: d.Name(), EPC: epc, TID: tid, Ant: ant, RSSI: &rssi})
}

// handleGPIFrame folds the polled pin levels and applies the configured
// inventory triggers. When both rules match, stop takes precedence.
func (d *Driver) handleGPIFrame(frame []byte) {
	states := map[int]bool{
		1: frame[6] != 0,
		2: frame[7] != 0,
	}

	d.gpiMu.Lock()
	changed := states[1] != d.gpi[1] || states[2] != d.gpi[2]
	d.gpi = states
	d.gpiMu.Unlock()

	trigger := d.Config().GPI
	if !changed || trigger == nil || !trigger.Active {
		return
	}
	if states[trigger.Stop.Pin] == trigger.Stop.State {
		d.StopInventory(context.Background())
		return
	}
	if states[trigger.Start.Pin] == trigger.Start.State {
		d.StartInventory(context.Background())
	}
}

// StartInventory puts the reader in continuous read mode.
func (d *Driver) StartInventory(ctx context.Context) error {
	if d.Reading() {
		return nil
	}
	if err := d.send(frameStartInventory()); err != nil {
		return err
	}
	d.SetReading(true)
	return nil
}

// StopInventory takes the reader out of read mode.
func (d *Driver) StopInventory(ctx context.Context) error {
	if !d.Reading() {
		return nil
	}
	if err := d.send(frameStopInventory1()); err != nil {
		return err
	}
	if err := d.send(frameStopInventory2()); err != nil {
		return err
	}
	d.SetReading(false)
	return nil
}

// ClearTags has no reader-side state to reset.
func (d *Driver) ClearTags(ctx context.Context) error { return util.ErrUnsupported }

// WriteGPO drives the reader's output pin.
func (d *Driver) WriteGPO(ctx context.Context, req tag.GPORequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := d.send(frameGPO(req.State)); err != nil {
		return err
	}
	if req.Control == "pulsed" {
		time.Sleep(time.Duration(req.TimeMS) * time.Millisecond)
		return d.send(frameGPO(!req.State))
	}
	return nil
}
