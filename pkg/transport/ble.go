package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/smartx-rfid/smartx/pkg/util"
)

// Nordic UART service triple the BLE readers expose.
const (
	nusServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	nusWriteUUID   = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	nusNotifyUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

const (
	// BLEConnectTimeout bounds scanning plus connecting.
	BLEConnectTimeout = 10 * time.Second
	// BLEKeepAlive is the interval drivers should write a keep-alive on.
	BLEKeepAlive = 5 * time.Second
)

// BLEConn is a connected BLE reader: a write characteristic plus a
// notification stream.
type BLEConn struct {
	device bluetooth.Device
	write  bluetooth.DeviceCharacteristic
	notify chan []byte
}

// DialBLE scans for a peripheral whose advertised name contains the given
// substring and wires up the UART characteristics. The whole sequence is
// bounded by BLEConnectTimeout.
func DialBLE(ctx context.Context, nameSubstr string) (*BLEConn, error) {
	if nameSubstr == "" {
		return nil, util.NewConfigError("BLE_NAME", "required for BLE connections")
	}

	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, util.WrapTransport(fmt.Errorf("enabling adapter: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, BLEConnectTimeout)
	defer cancel()

	found := make(chan bluetooth.ScanResult, 1)
	go func() {
		err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if strings.Contains(result.LocalName(), nameSubstr) {
				a.StopScan()
				select {
				case found <- result:
				default:
				}
			}
		})
		if err != nil {
			util.Debugf("ble scan: %v", err)
		}
	}()

	var result bluetooth.ScanResult
	select {
	case result = <-found:
	case <-ctx.Done():
		adapter.StopScan()
		return nil, util.WrapTransport(fmt.Errorf("no peripheral matching %q", nameSubstr))
	}

	device, err := adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, util.WrapTransport(fmt.Errorf("connecting %s: %w", result.Address, err))
	}

	conn := &BLEConn{device: device, notify: make(chan []byte, 64)}
	if err := conn.discover(); err != nil {
		device.Disconnect()
		return nil, util.WrapTransport(err)
	}
	return conn, nil
}

func (c *BLEConn) discover() error {
	svcUUID, _ := bluetooth.ParseUUID(nusServiceUUID)
	services, err := c.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(services) == 0 {
		return fmt.Errorf("uart service not found: %w", err)
	}

	writeUUID, _ := bluetooth.ParseUUID(nusWriteUUID)
	notifyUUID, _ := bluetooth.ParseUUID(nusNotifyUUID)
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{writeUUID, notifyUUID})
	if err != nil || len(chars) < 2 {
		return fmt.Errorf("uart characteristics not found: %w", err)
	}
	for _, ch := range chars {
		switch ch.UUID().String() {
		case nusWriteUUID:
			c.write = ch
		case nusNotifyUUID:
			notify := ch
			err = notify.EnableNotifications(func(buf []byte) {
				data := make([]byte, len(buf))
				copy(data, buf)
				select {
				case c.notify <- data:
				default:
				}
			})
			if err != nil {
				return fmt.Errorf("enabling notifications: %w", err)
			}
		}
	}
	return nil
}

// Write sends bytes through the write characteristic.
func (c *BLEConn) Write(p []byte) (int, error) {
	n, err := c.write.WriteWithoutResponse(p)
	if err != nil {
		return n, util.WrapTransport(err)
	}
	return n, nil
}

// Notifications returns the inbound notification stream.
func (c *BLEConn) Notifications() <-chan []byte {
	return c.notify
}

// Close disconnects the peripheral.
func (c *BLEConn) Close() error {
	return c.device.Disconnect()
}
