// Package config loads and persists the middleware configuration files:
// the main settings, the sink actions, and the per-device reader configs.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Settings holds the main application configuration (config/config.json).
// Unknown keys are preserved across load/save cycles.
type Settings struct {
	Title       string
	Port        int
	LogPath     string
	OpenBrowser bool
	Beep        bool
	SecretKey   string

	raw map[string]json.RawMessage
}

// DefaultPort is used when config.json carries no PORT entry.
const DefaultPort = 5000

// LoadSettings reads the main settings file. A missing file yields defaults.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{Port: DefaultPort, raw: map[string]json.RawMessage{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, &s.raw); err != nil {
		return nil, err
	}

	s.Title = s.rawString("TITLE")
	if v, ok := s.rawInt("PORT"); ok {
		s.Port = v
	}
	s.LogPath = s.rawString("LOG_PATH")
	s.OpenBrowser = s.rawBool("OPEN_BROWSER")
	s.Beep = s.rawBool("BEEP")
	s.SecretKey = s.rawString("SECRET_KEY")
	return s, nil
}

// Save writes the settings back, keeping unrecognized keys intact.
func (s *Settings) Save(path string) error {
	if s.raw == nil {
		s.raw = map[string]json.RawMessage{}
	}
	s.setRaw("TITLE", s.Title)
	s.setRaw("PORT", s.Port)
	s.setRaw("LOG_PATH", s.LogPath)
	s.setRaw("OPEN_BROWSER", s.OpenBrowser)
	s.setRaw("BEEP", s.Beep)
	s.setRaw("SECRET_KEY", s.SecretKey)

	data, err := json.MarshalIndent(s.raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Settings) rawString(key string) string {
	var v string
	if msg, ok := s.raw[key]; ok {
		_ = json.Unmarshal(msg, &v)
	}
	return v
}

func (s *Settings) rawInt(key string) (int, bool) {
	if msg, ok := s.raw[key]; ok {
		var v int
		if json.Unmarshal(msg, &v) == nil {
			return v, true
		}
	}
	return 0, false
}

func (s *Settings) rawBool(key string) bool {
	var v bool
	if msg, ok := s.raw[key]; ok {
		_ = json.Unmarshal(msg, &v)
	}
	return v
}

func (s *Settings) setRaw(key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.raw[key] = data
}
