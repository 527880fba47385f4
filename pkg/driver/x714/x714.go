// Package x714 drives X714 handheld readers speaking the ASCII line
// protocol over SERIAL, BLE, or TCP.
package x714

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/driver"
	"github.com/smartx-rfid/smartx/pkg/tag"
	"github.com/smartx-rfid/smartx/pkg/util"
)

const autoClearInterval = 30 * time.Second

// Driver is the X714 line-protocol state machine. The connection back-end
// is selected by CONNECTION_TYPE (SERIAL default, BLE, TCP).
type Driver struct {
	driver.Base

	mu   sync.Mutex
	send func([]byte) error
}

// New builds an X714 driver.
func New(cfg *config.DeviceConfig, events driver.Events) *Driver {
	return &Driver{Base: driver.NewBase(cfg, events, true)}
}

// Run performs one connect/configure/read session on the configured
// back-end.
func (d *Driver) Run(ctx context.Context) error {
	switch strings.ToUpper(d.Config().ConnectionType) {
	case "BLE":
		return d.runBLE(ctx)
	case "TCP":
		return d.runTCP(ctx)
	default:
		return d.runSerial(ctx)
	}
}

func (d *Driver) setSender(fn func([]byte) error) {
	d.mu.Lock()
	d.send = fn
	d.mu.Unlock()
}

func (d *Driver) writeLine(line string, verbose bool) error {
	d.mu.Lock()
	fn := d.send
	d.mu.Unlock()
	if fn == nil {
		return util.ErrNotConnected
	}
	if verbose {
		util.WithDevice(d.Name()).Debugf("-> %s", line)
	}
	return fn([]byte(line + "\n"))
}

// session runs the shared post-connect sequence: push the reader config,
// apply START_READING, and keep the periodic #CLEAR alive until done.
func (d *Driver) session(ctx context.Context, done <-chan struct{}) {
	d.configReader()

	go func() {
		ticker := time.NewTicker(autoClearInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if d.Connected() {
					d.writeLine("#CLEAR", true)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// configReader pushes the compound #set_cmd line mirroring the device
// config, then forces the inventory state to match START_READING.
func (d *Driver) configReader() {
	cfg := d.Config()

	var b strings.Builder
	b.WriteString("#set_cmd:")

	ports := make([]string, 0, len(cfg.Antennas))
	for port := range cfg.Antennas {
		ports = append(ports, port)
	}
	sort.Strings(ports)
	for _, port := range ports {
		ant := cfg.Antennas[port]
		fmt.Fprintf(&b, "|set_ant:%s,%s,%d,%d", port, onOff(ant.Active), ant.Power, abs(ant.MinRSSI))
	}
	fmt.Fprintf(&b, "|session:%d", cfg.Session)
	fmt.Fprintf(&b, "|start_reading:%s", onOff(cfg.StartReading))
	fmt.Fprintf(&b, "|buzzer:%s", onOff(cfg.Buzzer))
	b.WriteString("|decode_gtin:off")

	d.writeLine(b.String(), true)

	if cfg.StartReading {
		d.writeLine("#READ:ON", true)
	} else {
		d.writeLine("#READ:OFF", true)
	}
}

func (d *Driver) handleLine(raw []byte) {
	line := strings.ToLower(strings.TrimSpace(string(raw)))

	switch {
	case line == "":

	case strings.HasPrefix(line, "#read:"):
		d.SetReading(strings.HasSuffix(line, "on"))

	case strings.HasPrefix(line, "#t+@"):
		d.handleTag(line[len("#t+@"):])

	case len(line) == 24:
		zero := 0
		d.Events().OnTag(tag.Reading{Device: d.Name(), EPC: line, Ant: 1, RSSI: &zero})

	case strings.HasPrefix(line, "#set_cmd:"):
		util.WithDevice(d.Name()).Infof("config ack: %s", line[len("#set_cmd:"):])
	}
}

func (d *Driver) handleTag(payload string) {
	parts := strings.Split(payload, "|")
	if len(parts) != 4 {
		util.WithDevice(d.Name()).Warnf("malformed tag line: %q", payload)
		return
	}
	ant, _ := strconv.Atoi(parts[2])
	reading := tag.Reading{Device: d.Name(), EPC: parts[0], TID: parts[1], Ant: ant}
	if rssi, err := strconv.Atoi(parts[3]); err == nil {
		neg := -abs(rssi)
		reading.RSSI = &neg
	}
	d.Events().OnTag(reading)
}

// StartInventory asks the reader to begin reporting tags. The reading flag
// flips when the #read:on echo arrives.
func (d *Driver) StartInventory(ctx context.Context) error {
	return d.writeLine("#READ:ON", true)
}

// StopInventory asks the reader to stop reporting tags.
func (d *Driver) StopInventory(ctx context.Context) error {
	return d.writeLine("#READ:OFF", true)
}

// ClearTags resets the reader's internal dedup list.
func (d *Driver) ClearTags(ctx context.Context) error {
	return d.writeLine("#CLEAR", true)
}

// WriteEPC writes a new EPC, preferring a TID selector when the target tag
// has already been seen.
func (d *Driver) WriteEPC(ctx context.Context, req tag.WriteRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if req.TargetIdentifier == "epc" {
		if tid := d.Events().TIDForEPC(d.Name(), strings.ToLower(req.TargetValue)); tid != "" {
			req.TargetIdentifier = "tid"
			req.TargetValue = strings.ToUpper(tid)
		}
	}
	if req.TargetIdentifier == "" {
		return d.writeLine(fmt.Sprintf("#WRITE:%s;%s", req.NewEPC, req.Password), false)
	}
	return d.writeLine(
		fmt.Sprintf("#WRITE:%s;%s;%s;%s", req.NewEPC, req.Password, req.TargetIdentifier, req.TargetValue),
		false,
	)
}

// WriteGPO is not available on this reader.
func (d *Driver) WriteGPO(ctx context.Context, req tag.GPORequest) error {
	return util.ErrUnsupported
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
