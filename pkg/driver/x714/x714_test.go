package x714

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/smartx-rfid/smartx/pkg/config"
	"github.com/smartx-rfid/smartx/pkg/tag"
)

type eventRec struct {
	mu       sync.Mutex
	tags     []tag.Reading
	starts   int
	stops    int
	connects int
	drops    int
	tids     map[string]string
}

func (r *eventRec) OnConnect(device string)    { r.mu.Lock(); r.connects++; r.mu.Unlock() }
func (r *eventRec) OnDisconnect(device string) { r.mu.Lock(); r.drops++; r.mu.Unlock() }
func (r *eventRec) OnStart(device string)      { r.mu.Lock(); r.starts++; r.mu.Unlock() }
func (r *eventRec) OnStop(device string)       { r.mu.Lock(); r.stops++; r.mu.Unlock() }
func (r *eventRec) OnTag(reading tag.Reading) {
	r.mu.Lock()
	r.tags = append(r.tags, reading)
	r.mu.Unlock()
}
func (r *eventRec) OnEvent(device, eventType string, data interface{}) {}
func (r *eventRec) TIDForEPC(device, epc string) string                { return r.tids[epc] }

func newTestDriver(t *testing.T, rec *eventRec) (*Driver, *[]string) {
	t.Helper()
	cfg, err := config.ParseDeviceConfig("gate1", []byte(`{
		"READER": "X714",
		"CONNECTION_TYPE": "TCP",
		"CONNECTION": "10.0.0.9",
		"SESSION": 1,
		"BUZZER": true,
		"ANT": {"1": {"active": true, "power": 20, "rssi": -75}}
	}`), false)
	if err != nil {
		t.Fatal(err)
	}
	d := New(cfg, rec)
	sent := &[]string{}
	d.setSender(func(p []byte) error {
		*sent = append(*sent, strings.TrimRight(string(p), "\n"))
		return nil
	})
	return d, sent
}

func TestReadEchoTogglesInventory(t *testing.T) {
	rec := &eventRec{}
	d, _ := newTestDriver(t, rec)

	d.handleLine([]byte("#READ:ON\r"))
	if !d.Reading() || rec.starts != 1 {
		t.Fatalf("reading=%v starts=%d, want true/1", d.Reading(), rec.starts)
	}
	// duplicate echo is not a new edge
	d.handleLine([]byte("#read:on"))
	if rec.starts != 1 {
		t.Errorf("starts = %d after duplicate echo, want 1", rec.starts)
	}
	d.handleLine([]byte("#read:off"))
	if d.Reading() || rec.stops != 1 {
		t.Errorf("reading=%v stops=%d, want false/1", d.Reading(), rec.stops)
	}
}

func TestTagLineParsing(t *testing.T) {
	rec := &eventRec{}
	d, _ := newTestDriver(t, rec)

	d.handleLine([]byte("#t+@A1B2C3D4E5F60718293A4B5C|000000000000000000000001|1|70"))
	if len(rec.tags) != 1 {
		t.Fatalf("tags = %d, want 1", len(rec.tags))
	}
	got := rec.tags[0]
	if got.EPC != "a1b2c3d4e5f60718293a4b5c" || got.TID != "000000000000000000000001" || got.Ant != 1 {
		t.Errorf("reading = %+v", got)
	}
	if got.RSSI == nil || *got.RSSI != -70 {
		t.Errorf("rssi = %v, want -70", got.RSSI)
	}
}

func TestBareHexLineIsMinimalTag(t *testing.T) {
	rec := &eventRec{}
	d, _ := newTestDriver(t, rec)

	d.handleLine([]byte("a1b2c3d4e5f60718293a4b5c"))
	if len(rec.tags) != 1 {
		t.Fatalf("tags = %d, want 1", len(rec.tags))
	}
	got := rec.tags[0]
	if got.Ant != 1 || got.RSSI == nil || *got.RSSI != 0 || got.TID != "" {
		t.Errorf("reading = %+v", got)
	}
}

func TestMalformedTagLineDropped(t *testing.T) {
	rec := &eventRec{}
	d, _ := newTestDriver(t, rec)
	d.handleLine([]byte("#t+@a1b2|missing|fields"))
	if len(rec.tags) != 0 {
		t.Errorf("malformed line produced a tag: %+v", rec.tags)
	}
}

func TestConfigReaderLine(t *testing.T) {
	rec := &eventRec{}
	d, sent := newTestDriver(t, rec)

	d.configReader()
	if len(*sent) < 2 {
		t.Fatalf("sent = %v, want set_cmd plus read command", *sent)
	}
	setCmd := (*sent)[0]
	for _, want := range []string{"#set_cmd:", "|set_ant:1,on,20,75", "|session:1", "|buzzer:on", "|start_reading:off", "|decode_gtin:off"} {
		if !strings.Contains(setCmd, want) {
			t.Errorf("set_cmd missing %q: %s", want, setCmd)
		}
	}
	if (*sent)[1] != "#READ:OFF" {
		t.Errorf("second command = %q, want #READ:OFF", (*sent)[1])
	}
}

func TestWriteEPCPromotesToTID(t *testing.T) {
	rec := &eventRec{tids: map[string]string{"a1b2c3d4e5f60718293a4b5c": "e200001122334455667788aa"}}
	d, sent := newTestDriver(t, rec)

	err := d.WriteEPC(context.Background(), tag.WriteRequest{
		TargetIdentifier: "epc",
		TargetValue:      "A1B2C3D4E5F60718293A4B5C",
		NewEPC:           "300833b2ddd9014000000002",
		Password:         "00000000",
	})
	if err != nil {
		t.Fatalf("WriteEPC() error = %v", err)
	}
	got := (*sent)[len(*sent)-1]
	want := "#WRITE:300833B2DDD9014000000002;00000000;tid;E200001122334455667788AA"
	if got != want {
		t.Errorf("command = %q, want %q", got, want)
	}
}

func TestWriteEPCNoTarget(t *testing.T) {
	rec := &eventRec{}
	d, sent := newTestDriver(t, rec)

	err := d.WriteEPC(context.Background(), tag.WriteRequest{
		NewEPC:   "300833B2DDD9014000000002",
		Password: "12345678",
	})
	if err != nil {
		t.Fatalf("WriteEPC() error = %v", err)
	}
	if got := (*sent)[len(*sent)-1]; got != "#WRITE:300833B2DDD9014000000002;12345678" {
		t.Errorf("command = %q", got)
	}
}

func TestWriteEPCRejectsBadInput(t *testing.T) {
	rec := &eventRec{}
	d, _ := newTestDriver(t, rec)

	tests := []tag.WriteRequest{
		{NewEPC: "xyz", Password: "00000000"},
		{NewEPC: "300833B2DDD9014000000002", Password: "123"},
		{TargetIdentifier: "serial", TargetValue: strings.Repeat("0", 24), NewEPC: "300833B2DDD9014000000002", Password: "00000000"},
	}
	for i, req := range tests {
		if err := d.WriteEPC(context.Background(), req); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}
