// Package registry owns the device table: one config, one driver, and one
// supervisor goroutine per named device. Mutations (create, update,
// delete) are serialized by a single updating flag and cancel only the
// affected supervisor; read paths never block on a mutation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/driver"
	"github.com/smartx-rfid/smartx/pkg/transport"
	"github.com/smartx-rfid/smartx/pkg/util"
)

const (
	// DisconnectGrace bounds how long a cancelled supervisor is awaited.
	DisconnectGrace = 5 * time.Second

	restartDelay = 3 * time.Second
)

type supervised struct {
	driver driver.Driver
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager supervises all configured devices.
type Manager struct {
	dir    string
	events driver.Events
	base   context.Context

	mu      sync.RWMutex
	devices map[string]*supervised

	updating atomic.Bool
}

// New builds a manager over a device config directory.
func New(dir string, events driver.Events) *Manager {
	return &Manager{
		dir:     dir,
		events:  events,
		devices: map[string]*supervised{},
	}
}

// Start scans the config directory and spawns one supervisor per valid
// device file. ctx is the parent of every supervisor; cancelling it stops
// them all.
func (m *Manager) Start(ctx context.Context) error {
	m.base = ctx
	configs, err := config.LoadDeviceDir(m.dir)
	if err != nil {
		return fmt.Errorf("loading device configs: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cfg := range configs {
		if err := m.startLocked(cfg); err != nil {
			util.WithDevice(cfg.Name).Warnf("skipping device: %v", err)
		}
	}
	return nil
}

// startLocked instantiates the driver and its supervisor. Callers hold mu.
func (m *Manager) startLocked(cfg *config.DeviceConfig) error {
	d, err := NewDriver(cfg, m.events)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(m.base)
	sup := &supervised{driver: d, cancel: cancel, done: make(chan struct{})}
	m.devices[cfg.Name] = sup
	go m.supervise(ctx, sup)
	return nil
}

// supervise loops the driver's Run with reconnect backoff: transport
// failures double the delay up to the cap, anything else restarts on the
// base delay.
func (m *Manager) supervise(ctx context.Context, sup *supervised) {
	defer close(sup.done)
	log := util.WithDevice(sup.driver.Name())
	backoff := transport.NewBackoff()

	for {
		err := sup.driver.Run(ctx)
		if ctx.Err() != nil {
			return
		}

		var delay time.Duration
		switch {
		case err != nil && errors.Is(err, util.ErrTransport):
			delay = backoff.Next()
			log.Warnf("connection failed: %v, retrying in %s", err, delay)
		case err != nil:
			backoff.Reset()
			delay = restartDelay
			log.Warnf("session ended: %v", err)
		default:
			backoff.Reset()
			delay = restartDelay
			log.Info("session ended, reconnecting")
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// Names lists the registered device names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.devices))
	for name := range m.devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Driver returns the driver for a device.
func (m *Manager) Driver(name string) (driver.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sup, ok := m.devices[strings.ToUpper(name)]
	if !ok {
		return nil, util.NewNotFoundError(name)
	}
	return sup.driver, nil
}

// Config returns the stored configuration of a device.
func (m *Manager) Config(name string) (*config.DeviceConfig, error) {
	d, err := m.Driver(name)
	if err != nil {
		return nil, err
	}
	return d.Config(), nil
}

// State returns the control surface state code for a device.
func (m *Manager) State(name string) driver.State {
	d, err := m.Driver(name)
	if err != nil {
		return driver.StateNotFound
	}
	return driver.DeviceState(d)
}

// Create stores a new device config and starts supervising it. When the
// name is taken, a numeric suffix is appended. Returns the stored name.
func (m *Manager) Create(name string, data []byte) (string, error) {
	if err := m.beginUpdate(); err != nil {
		return "", err
	}
	defer m.endUpdate()

	name = m.uniqueName(strings.ToUpper(name))
	stored, err := config.SaveDeviceConfig(m.dir, name, data)
	if err != nil {
		return "", err
	}
	cfg, err := config.ParseDeviceConfig(stored, data, false)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return stored, m.startLocked(cfg)
}

// Update replaces a device's config, recreating its driver and
// supervisor. The new config is validated before the old driver is
// touched.
func (m *Manager) Update(name string, data []byte) error {
	if err := m.beginUpdate(); err != nil {
		return err
	}
	defer m.endUpdate()

	name = strings.ToUpper(name)
	d, err := m.Driver(name)
	if err != nil {
		return err
	}
	cfg, err := config.ParseDeviceConfig(name, data, false)
	if err != nil {
		return err
	}

	old := d.Config()
	m.stopDevice(name)
	if _, err := config.SaveDeviceConfig(m.dir, name, data); err != nil {
		m.mu.Lock()
		if restartErr := m.startLocked(old); restartErr != nil {
			util.WithDevice(name).Errorf("restart with previous config failed: %v", restartErr)
		}
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startLocked(cfg)
}

// Delete stops a device's supervisor and removes its config file.
func (m *Manager) Delete(name string) error {
	if err := m.beginUpdate(); err != nil {
		return err
	}
	defer m.endUpdate()

	name = strings.ToUpper(name)
	if _, err := m.Driver(name); err != nil {
		return err
	}
	m.stopDevice(name)
	return config.DeleteDeviceConfig(m.dir, name)
}

// Shutdown cancels every supervisor and waits for each within the
// disconnect grace period.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sups := make(map[string]*supervised, len(m.devices))
	for name, sup := range m.devices {
		sups[name] = sup
	}
	m.devices = map[string]*supervised{}
	m.mu.Unlock()

	for _, sup := range sups {
		sup.cancel()
	}
	for name, sup := range sups {
		select {
		case <-sup.done:
		case <-time.After(DisconnectGrace):
			util.WithDevice(name).Warn("driver did not stop within grace period")
		}
	}
}

func (m *Manager) beginUpdate() error {
	if !m.updating.CompareAndSwap(false, true) {
		return util.ErrBusy
	}
	return nil
}

func (m *Manager) endUpdate() {
	m.updating.Store(false)
}

// stopDevice cancels one supervisor and waits for it, bounded by the
// grace period.
func (m *Manager) stopDevice(name string) {
	m.mu.Lock()
	sup, ok := m.devices[name]
	delete(m.devices, name)
	m.mu.Unlock()
	if !ok {
		return
	}

	sup.cancel()
	select {
	case <-sup.done:
	case <-time.After(DisconnectGrace):
		util.WithDevice(name).Warn("driver did not stop within grace period")
	}
}

// uniqueName appends a numeric suffix while the name is taken.
func (m *Manager) uniqueName(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, taken := m.devices[name]; !taken {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if _, taken := m.devices[candidate]; !taken {
			return candidate
		}
	}
}
