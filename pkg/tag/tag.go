// Package tag defines the canonical tag and event types exchanged between
// reader drivers, the event pipeline, and the sinks.
package tag

import (
	"strings"
	"time"

	"github.com/smartx-rfid/smartx/pkg/util"
)

// Tag is the canonical, deduplicated record for one EPC.
type Tag struct {
	Timestamp time.Time `json:"timestamp"`
	Device    string    `json:"device"`
	EPC       string    `json:"epc"`
	TID       string    `json:"tid,omitempty"`
	Ant       int       `json:"ant"`
	RSSI      *int      `json:"rssi"`
	GTIN      string    `json:"gtin"`
	Count     int       `json:"count"`
}

// Reading is a raw detection as reported by a driver, before validation.
type Reading struct {
	Device string `json:"device"`
	EPC    string `json:"epc"`
	TID    string `json:"tid,omitempty"`
	Ant    int    `json:"ant"`
	RSSI   *int   `json:"rssi"`
}

// Validate normalizes the reading in place: EPC and TID lower-cased 24-hex,
// antenna defaulted to 1, RSSI stored as a negative dBm value.
func (r *Reading) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(r.Device != "", "device is required")
	v.Add(util.IsHexN(r.EPC, 24), "epc must be exactly 24 hexadecimal characters")
	if r.TID != "" {
		v.Add(util.IsHexN(r.TID, 24), "tid must be exactly 24 hexadecimal characters")
	}
	if err := v.Build(); err != nil {
		return err
	}

	r.EPC = strings.ToLower(r.EPC)
	r.TID = strings.ToLower(r.TID)
	if r.Ant < 1 {
		r.Ant = 1
	}
	if r.RSSI != nil && *r.RSSI > 0 {
		neg := -*r.RSSI
		r.RSSI = &neg
	}
	return nil
}

// Event is a generic middleware event (inventory, connection, custom).
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Device    string      `json:"device"`
	EventType string      `json:"event_type"`
	EventData interface{} `json:"event_data"`
}

// Event type names shared across the pipeline and sinks.
const (
	EventTypeTag        = "tag"
	EventTypeInventory  = "inventory"
	EventTypeConnection = "connection_event"
)

// WriteRequest carries the parameters of a write_epc operation.
type WriteRequest struct {
	TargetIdentifier string `json:"target_identifier"`
	TargetValue      string `json:"target_value"`
	NewEPC           string `json:"new_epc"`
	Password         string `json:"password"`
}

// Validate checks and normalizes a write request. Targets and the new EPC
// are upper-cased 24-hex, the password 8-hex. An empty target identifier
// means "write whatever single tag is in the field".
func (w *WriteRequest) Validate() error {
	w.TargetIdentifier = strings.ToLower(w.TargetIdentifier)
	if w.TargetIdentifier == "none" || w.TargetIdentifier == "null" {
		w.TargetIdentifier = ""
	}

	v := &util.ValidationBuilder{}
	switch w.TargetIdentifier {
	case "", "epc", "tid":
	default:
		v.AddErrorf("target_identifier must be epc, tid, or empty")
	}
	if w.TargetValue == "" {
		w.TargetValue = strings.Repeat("0", 24)
	}
	v.Add(util.IsHexN(w.TargetValue, 24), "target_value must be exactly 24 hexadecimal characters")
	v.Add(util.IsHexN(w.NewEPC, 24), "new_epc must be exactly 24 hexadecimal characters")
	v.Add(util.IsHexN(w.Password, 8), "password must be exactly 8 hexadecimal characters")
	if err := v.Build(); err != nil {
		return err
	}

	w.TargetValue = strings.ToUpper(w.TargetValue)
	w.NewEPC = strings.ToUpper(w.NewEPC)
	w.Password = strings.ToUpper(w.Password)
	return nil
}

// GPORequest carries the parameters of a write_gpo operation.
type GPORequest struct {
	Pin     int    `json:"pin"`
	State   bool   `json:"state"`
	Control string `json:"control"`
	TimeMS  int    `json:"time_ms"`
}

// Validate checks a GPO request. Pulse time applies only to pulsed control.
func (g *GPORequest) Validate() error {
	v := &util.ValidationBuilder{}
	v.Add(g.Pin >= 1, "pin must be >= 1")
	if g.Control == "" {
		g.Control = "static"
	}
	v.Add(g.Control == "static" || g.Control == "pulsed", "control must be static or pulsed")
	if g.Control == "pulsed" && g.TimeMS <= 0 {
		g.TimeMS = 1000
	}
	return v.Build()
}
