package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Actions maps sink kinds to their endpoints (config/actions.json).
// An empty endpoint disables the corresponding sink.
type Actions struct {
	DatabaseURL          string `json:"DATABASE_URL,omitempty"`
	HTTPPost             string `json:"HTTP_POST,omitempty"`
	MQTTURL              string `json:"MQTT_URL,omitempty"`
	XTrackURL            string `json:"XTRACK_URL,omitempty"`
	RedisURL             string `json:"REDIS_URL,omitempty"`
	StorageDays          int    `json:"STORAGE_DAYS,omitempty"`
	LogPath              string `json:"LOG_PATH,omitempty"`
	Beep                 bool   `json:"BEEP,omitempty"`
	ClearOldTagsInterval int    `json:"CLEAR_OLD_TAGS_INTERVAL,omitempty"`
}

// DefaultStorageDays applies when actions.json carries no STORAGE_DAYS.
const DefaultStorageDays = 7

// LoadActions reads the actions file. A missing file yields the zero value
// with the default retention window.
func LoadActions(path string) (*Actions, error) {
	a := &Actions{StorageDays: DefaultStorageDays}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return a, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Save writes the actions file.
func (a *Actions) Save(path string) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
