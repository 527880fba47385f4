package transport

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/gousb"
	"github.com/tarm/serial"

	"github.com/smartx-rfid/smartx/pkg/util"
)

// SerialParams selects a serial port, either explicitly or by USB VID/PID
// when Port is "AUTO".
type SerialParams struct {
	Port string
	Baud int
	VID  int
	PID  int
}

const (
	defaultBaud       = 115200
	serialReadTimeout = 100 * time.Millisecond
)

// OpenSerial opens the configured port. With Port="AUTO" the system USB
// bus is scanned for the VID/PID pair and the matching tty resolved.
func OpenSerial(p SerialParams) (io.ReadWriteCloser, error) {
	port := p.Port
	if strings.EqualFold(port, "AUTO") {
		found, err := detectPort(p.VID, p.PID)
		if err != nil {
			return nil, util.WrapTransport(err)
		}
		port = found
		util.Debugf("auto-detected %04x:%04x at %s", p.VID, p.PID, port)
	}

	baud := p.Baud
	if baud == 0 {
		baud = defaultBaud
	}
	s, err := serial.OpenPort(&serial.Config{
		Name:        port,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	})
	if err != nil {
		return nil, util.WrapTransport(err)
	}
	return s, nil
}

// detectPort finds the tty device node for a USB serial adapter. gousb
// confirms the adapter is actually on the bus before sysfs is walked, so
// a stale device node never matches.
func detectPort(vid, pid int) (string, error) {
	if vid == 0 && pid == 0 {
		return "", util.NewConfigError("PORT", "AUTO requires VID and PID")
	}

	ctx := gousb.NewContext()
	defer ctx.Close()

	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(vid) && desc.Product == gousb.ID(pid)
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil && len(devs) == 0 {
		return "", fmt.Errorf("scanning usb bus: %w", err)
	}
	if len(devs) == 0 {
		return "", fmt.Errorf("no usb device %04x:%04x present", vid, pid)
	}

	if port := sysfsTTY(vid, pid); port != "" {
		return port, nil
	}
	return "", fmt.Errorf("usb device %04x:%04x has no tty node", vid, pid)
}

// sysfsTTY walks /sys/bus/usb/devices matching idVendor/idProduct and
// returns the first tty registered under the interface.
func sysfsTTY(vid, pid int) string {
	root := "/sys/bus/usb/devices"
	entries, err := os.ReadDir(root)
	if err != nil {
		return ""
	}
	want := func(path, hex string) bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 16, 32)
		return err == nil && fmt.Sprintf("%04x", v) == hex
	}
	for _, e := range entries {
		base := filepath.Join(root, e.Name())
		if !want(filepath.Join(base, "idVendor"), fmt.Sprintf("%04x", vid)) ||
			!want(filepath.Join(base, "idProduct"), fmt.Sprintf("%04x", pid)) {
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(base, "*", "tty*"))
		more, _ := filepath.Glob(filepath.Join(base, "*", "tty", "tty*"))
		for _, m := range append(matches, more...) {
			return "/dev/" + filepath.Base(m)
		}
	}
	return ""
}
