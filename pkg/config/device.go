package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/smartx-rfid/smartx/pkg/util"
)

// ReaderKind identifies the protocol family a device config targets.
type ReaderKind string

// Supported reader kinds
const (
	KindUR4    ReaderKind = "UR4"
	KindX714   ReaderKind = "X714"
	KindR700   ReaderKind = "R700_IOT"
	KindICARD  ReaderKind = "ICARD"
	KindSerial ReaderKind = "SERIAL"
	KindTCP    ReaderKind = "TCP"
)

// Valid reports whether k names a known reader kind.
func (k ReaderKind) Valid() bool {
	switch k {
	case KindUR4, KindX714, KindR700, KindICARD, KindSerial, KindTCP:
		return true
	}
	return false
}

// Antenna holds the per-antenna reader parameters.
type Antenna struct {
	Active  bool `json:"active"`
	Power   int  `json:"power"`
	MinRSSI int  `json:"rssi"`
}

// GPIPinRule ties a GPI pin to the level that fires its action.
type GPIPinRule struct {
	Pin   int  `json:"pin"`
	State bool `json:"state"`
}

// GPITrigger configures inventory control from GPI edges. When both the
// start and stop conditions match, stop takes precedence.
type GPITrigger struct {
	Active bool       `json:"active"`
	Start  GPIPinRule `json:"start"`
	Stop   GPIPinRule `json:"stop"`
}

// AutoPort is the serial CONNECTION value requesting VID/PID detection.
const AutoPort = "AUTO"

// DeviceConfig is the immutable per-device record loaded from
// config/devices/<NAME>.json (or .yaml). Field names follow the on-disk
// uppercase convention.
type DeviceConfig struct {
	Name string `json:"-" yaml:"-"`

	Reader     ReaderKind `json:"READER"`
	Connection string     `json:"CONNECTION,omitempty"`
	Port       int        `json:"PORT,omitempty"`
	Baud       int        `json:"BAUDRATE,omitempty"`
	VID        int        `json:"VID,omitempty"`
	PID        int        `json:"PID,omitempty"`

	ConnectionType string `json:"CONNECTION_TYPE,omitempty"`
	BLEName        string `json:"BLE_NAME,omitempty"`

	Username string `json:"USERNAME,omitempty"`
	Password string `json:"PASSWORD,omitempty"`

	Session      int  `json:"SESSION,omitempty"`
	StartReading bool `json:"START_READING,omitempty"`
	Buzzer       bool `json:"BUZZER,omitempty"`
	Power        int  `json:"POWER,omitempty"`

	EventType  string `json:"EVENT_TYPE,omitempty"`
	WriteRetry int    `json:"WRITE_RETRY_COUNT,omitempty"`

	Antennas map[string]Antenna `json:"ANT,omitempty"`
	GPI      *GPITrigger        `json:"GPI,omitempty"`

	// ReadingProfile is the reader-specific inventory profile, passed
	// through verbatim (R700 start payload).
	ReadingProfile json.RawMessage `json:"READING_CONFIG,omitempty"`

	raw []byte
}

// Raw returns the original file contents the config was parsed from.
func (c *DeviceConfig) Raw() []byte {
	return c.raw
}

// Antenna returns the configuration for an antenna port, defaulting to an
// inactive entry when the port is not configured.
func (c *DeviceConfig) Antenna(port int) Antenna {
	if c.Antennas == nil {
		return Antenna{}
	}
	return c.Antennas[fmt.Sprintf("%d", port)]
}

// Validate checks the fields every reader kind requires.
func (c *DeviceConfig) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(c.Name != "", "device name is required")
	v.Add(c.Reader.Valid(), fmt.Sprintf("unknown reader kind %q", c.Reader))
	v.Add(c.Session >= 0 && c.Session <= 3, "session must be in 0..3")
	return v.Build()
}

// ParseDeviceConfig decodes a device config from JSON or YAML bytes.
func ParseDeviceConfig(name string, data []byte, isYAML bool) (*DeviceConfig, error) {
	jsonData := data
	if isYAML {
		var generic map[string]interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
		var err error
		jsonData, err = json.Marshal(generic)
		if err != nil {
			return nil, err
		}
	}

	cfg := &DeviceConfig{}
	if err := json.Unmarshal(jsonData, cfg); err != nil {
		return nil, err
	}
	cfg.Name = strings.ToUpper(name)
	cfg.raw = jsonData
	if cfg.Reader == "" {
		return nil, util.NewConfigError("READER", "missing required field")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDeviceConfig reads a single device config file.
func LoadDeviceConfig(path string) (*DeviceConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return ParseDeviceConfig(name, data, isYAMLFile(path))
}

// LoadDeviceDir scans a directory of per-device config files. Files missing
// the required READER field are removed; other parse failures are logged
// and skipped. The directory is created when absent.
func LoadDeviceDir(dir string) ([]*DeviceConfig, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var configs []*DeviceConfig
	for _, entry := range entries {
		if entry.IsDir() || !isConfigFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		cfg, err := LoadDeviceConfig(path)
		if err != nil {
			if isMissingReader(err) {
				util.Warnf("removing device config without READER: %s", path)
				_ = os.Remove(path)
			} else {
				util.Warnf("skipping device config %s: %v", path, err)
			}
			continue
		}
		configs = append(configs, cfg)
	}

	sort.Slice(configs, func(i, j int) bool { return configs[i].Name < configs[j].Name })
	return configs, nil
}

// SaveDeviceConfig writes a device config file under dir, upper-casing the
// device name, and returns the stored name.
func SaveDeviceConfig(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name = strings.ToUpper(name)
	if _, err := ParseDeviceConfig(name, data, false); err != nil {
		return "", err
	}

	var pretty map[string]interface{}
	if err := json.Unmarshal(data, &pretty); err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return "", err
	}
	return name, os.WriteFile(filepath.Join(dir, name+".json"), out, 0o644)
}

// DeleteDeviceConfig removes a device config file by name.
func DeleteDeviceConfig(dir, name string) error {
	name = strings.ToUpper(name)
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return os.Remove(path)
		}
	}
	return util.NewNotFoundError(name)
}

// ListExamples lists example config names (without extension) under dir.
func ListExamples(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !isConfigFile(entry.Name()) {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
	}
	sort.Strings(names)
	return names
}

// LoadExample reads a read-only example config by name.
func LoadExample(dir, name string) (json.RawMessage, error) {
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if isYAMLFile(path) {
			var generic map[string]interface{}
			if err := yaml.Unmarshal(data, &generic); err != nil {
				return nil, err
			}
			return json.Marshal(generic)
		}
		return data, nil
	}
	return nil, util.NewNotFoundError(name)
}

func isConfigFile(name string) bool {
	switch filepath.Ext(name) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func isYAMLFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func isMissingReader(err error) bool {
	var cfgErr *util.ConfigError
	return errors.As(err, &cfgErr) && cfgErr.Field == "READER"
}
