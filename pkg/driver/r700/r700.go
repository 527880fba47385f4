// Package r700 drives Impinj R700 readers through their REST interface.
// Control commands go to /api/v1 endpoints with basic auth; detections
// arrive on the long-lived NDJSON stream at /data/stream.
package r700

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/driver"
	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/transport"
	"github.com/smartx-rfid/smartx/pkg/util"
)

const (
	defaultUsername = "root"
	defaultPassword = "impinj"

	pathInterface = "/api/v1/system/rfid/interface"
	pathStart     = "/api/v1/profiles/inventory/start"
	pathStop      = "/api/v1/profiles/stop"
	pathStream    = "/api/v1/data/stream"
	pathGPO       = "/api/v1/device/gpos"
	pathTagAccess = "/api/v1/profiles/inventory/tag-access"

	streamBufferSize = 1 << 20
)

// Driver is the R700 REST client.
type Driver struct {
	driver.Base
	client *transport.HTTPSClient
}

// New builds an R700 driver.
func New(cfg *config.DeviceConfig, events driver.Events) *Driver {
	username := cfg.Username
	if username == "" {
		username = defaultUsername
	}
	password := cfg.Password
	if password == "" {
		password = defaultPassword
	}
	return &Driver{
		Base:   driver.NewBase(cfg, events, true),
		client: transport.NewHTTPSClient(cfg.Connection, username, password),
	}
}

// Run performs one configure/stream session: switch the reader to the
// REST interface, stop any running profile, optionally start inventory,
// force the outputs low, then consume the event stream until it drops.
func (d *Driver) Run(ctx context.Context) error {
	cfg := d.Config()

	if _, err := d.client.Do(ctx, http.MethodPut, pathInterface, map[string]string{"rfidInterface": "rest"}); err != nil {
		return err
	}
	if _, err := d.client.Do(ctx, http.MethodPost, pathStop, nil); err != nil {
		return err
	}
	if cfg.StartReading || hasStartTriggers(cfg.ReadingProfile) {
		if _, err := d.client.Do(ctx, http.MethodPost, pathStart, profileBody(cfg)); err != nil {
			return err
		}
	}
	if cfg.StartReading {
		d.SetReading(true)
	}
	for pin := 1; pin <= 3; pin++ {
		if err := d.putGPO(ctx, pin, "low", "static", 0); err != nil {
			util.WithDevice(d.Name()).Warnf("forcing gpo %d low: %v", pin, err)
		}
	}

	d.SetConnected(true)
	defer func() {
		d.DropReading()
		d.SetConnected(false)
	}()

	stream, err := d.client.Stream(ctx, pathStream)
	if err != nil {
		return err
	}
	defer stream.Close()

	sc := bufio.NewScanner(stream)
	sc.Buffer(make([]byte, 64*1024), streamBufferSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		d.handleLine(line)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

type streamEvent struct {
	InventoryStatus *struct {
		InventoryStatus string `json:"inventoryStatus"`
	} `json:"inventoryStatusEvent"`
	TagInventory *struct {
		EPCHex       string `json:"epcHex"`
		TIDHex       string `json:"tidHex"`
		AntennaPort  int    `json:"antennaPort"`
		PeakRSSICdbm int    `json:"peakRssiCdbm"`
	} `json:"tagInventoryEvent"`
}

func (d *Driver) handleLine(line []byte) {
	var ev streamEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		util.WithDevice(d.Name()).Warnf("unparseable stream event: %v", err)
		return
	}

	switch {
	case ev.InventoryStatus != nil:
		d.SetReading(ev.InventoryStatus.InventoryStatus == "running")

	case ev.TagInventory != nil:
		te := ev.TagInventory
		rssi := te.PeakRSSICdbm / 100
		d.Events().OnTag(tag.Reading{
			Device: d.Name(),
			EPC:    te.EPCHex,
			TID:    te.TIDHex,
			Ant:    te.AntennaPort,
			RSSI:   &rssi,
		})
	}
}

// StartInventory starts the configured inventory profile. The reading
// state follows the stream's inventoryStatusEvent.
func (d *Driver) StartInventory(ctx context.Context) error {
	if !d.Connected() {
		return util.ErrNotConnected
	}
	_, err := d.client.Do(ctx, http.MethodPost, pathStart, profileBody(d.Config()))
	return err
}

// StopInventory stops all profiles.
func (d *Driver) StopInventory(ctx context.Context) error {
	if !d.Connected() {
		return util.ErrNotConnected
	}
	_, err := d.client.Do(ctx, http.MethodPost, pathStop, nil)
	return err
}

// ClearTags has no reader-side state to reset.
func (d *Driver) ClearTags(ctx context.Context) error { return nil }

// WriteGPO drives one output pin.
func (d *Driver) WriteGPO(ctx context.Context, req tag.GPORequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	state := "low"
	if req.State {
		state = "high"
	}
	pulse := 0
	if req.Control == "pulsed" {
		pulse = req.TimeMS
	}
	return d.putGPO(ctx, req.Pin, state, req.Control, pulse)
}

func (d *Driver) putGPO(ctx context.Context, pin int, state, control string, pulseMS int) error {
	payload := map[string]interface{}{
		"gpoConfigurations": []map[string]interface{}{gpoConfiguration(pin, state, control, pulseMS)},
	}
	_, err := d.client.Do(ctx, http.MethodPut, pathGPO, payload)
	return err
}

func gpoConfiguration(pin int, state, control string, pulseMS int) map[string]interface{} {
	cfg := map[string]interface{}{
		"gpo":     pin,
		"state":   state,
		"control": control,
	}
	if control == "pulsed" {
		cfg["pulseDurationMilliseconds"] = pulseMS
	}
	return cfg
}

func profileBody(cfg *config.DeviceConfig) interface{} {
	if len(cfg.ReadingProfile) == 0 {
		return nil
	}
	return cfg.ReadingProfile
}

func hasStartTriggers(profile json.RawMessage) bool {
	if len(profile) == 0 {
		return false
	}
	var p struct {
		StartTriggers []json.RawMessage `json:"startTriggers"`
	}
	if err := json.Unmarshal(profile, &p); err != nil {
		return false
	}
	return len(p.StartTriggers) > 0
}
